// Package recovery keeps open document handles associated with files that are renamed,
// moved, or replaced while the process runs.
//
// # Ownership
//
// The Engine owns the document table, the watch registry, and the per-document recovery
// state. All three are mutated only on the goroutine running Engine.Run. Other goroutines
// reach them by posting closures onto the engine queue (Open, Close, Relocate, State,
// Documents, Stats), so a re-key and its watch move are always observed together.
//
// # State machine
//
// Each tracked document is in one of four states:
//
//	Present    the file exists at the tracked path
//	Missing    a watch event found the path absent
//	Recovering the settling delay is in flight; the attempt has not run yet
//	Unresolved no candidate matched; nothing happens until the next event for the directory
//
// Missing only lasts until the attempt is scheduled, which happens in the same engine
// step, so callers of State see Recovering for a document whose file is gone.
//
// The settling delay is a deferred callback, not a sleep. When it fires the attempt is
// re-validated against the table: a document closed or already re-keyed in the meantime
// is left alone, which is also what makes duplicate events harmless.
//
// # Matching
//
// See FindMatch. An inode+device match is taken immediately; otherwise the closest
// size+mtime match is used; otherwise the document becomes Unresolved.
package recovery
