package recovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aditya/vertview/pkg/documents"
	"github.com/aditya/vertview/pkg/monitoring"
	"github.com/aditya/vertview/pkg/watcher"
	"github.com/sirupsen/logrus"
)

// DefaultSettleDelay lets multi-step save sequences finish before a directory scan.
const DefaultSettleDelay = 250 * time.Millisecond

// ErrStopped is returned by engine calls made after Run has returned.
var ErrStopped = errors.New("recovery engine stopped")

// State is the recovery state of one tracked document.
type State int

const (
	Present State = iota
	Missing
	Recovering
	Unresolved
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Missing:
		return "missing"
	case Recovering:
		return "recovering"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Config holds configuration for the Engine.
type Config struct {
	SettleDelay time.Duration
	Logger      *logrus.Logger
	Metrics     *monitoring.Metrics

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())

	// OnRenamed and OnUnresolved run on the engine goroutine and must not call back into the Engine.
	OnRenamed    func(oldPath, newPath string)
	OnUnresolved func(path string)
}

// Stats summarizes the engine's owned state.
type Stats struct {
	Tracked      int
	Unresolved   int
	WatchedFiles int
	WatchedDirs  int
}

// Engine reconciles tracked documents with the filesystem.
type Engine struct {
	cfg      Config
	opener   documents.Opener
	table    *documents.Table
	registry *watcher.Registry
	states   map[string]State
	logger   *logrus.Logger
	metrics  *monitoring.Metrics

	queue   chan func()
	done    chan struct{}
	started atomic.Bool
}

// New creates an engine. native may be nil, in which case no OS watches are registered.
func New(opener documents.Opener, native watcher.Native, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitoring.NewMetrics(cfg.Logger)
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}

	return &Engine{
		cfg:      cfg,
		opener:   opener,
		table:    documents.NewTable(),
		registry: watcher.NewRegistry(native, cfg.Logger, cfg.Metrics),
		states:   make(map[string]State),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		queue:    make(chan func()),
		done:     make(chan struct{}),
	}
}

// Run owns the engine state until ctx is cancelled. Watch events are consumed from events;
// a nil channel is allowed. On return every tracked document is closed.
func (e *Engine) Run(ctx context.Context, events <-chan watcher.Event) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("recovery engine already running")
	}
	defer close(e.done)
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(ev)

		case fn := <-e.queue:
			fn()
		}
	}
}

// Open opens and tracks path. Opening an already-tracked path activates it instead.
func (e *Engine) Open(ctx context.Context, path string) error {
	var openErr error
	if err := e.call(ctx, func() { openErr = e.open(path) }); err != nil {
		return err
	}
	return openErr
}

// OpenAll opens each path, logging failures. It returns how many are tracked afterwards.
func (e *Engine) OpenAll(ctx context.Context, paths []string) (int, error) {
	opened := 0
	err := e.call(ctx, func() {
		for _, path := range paths {
			if err := e.open(path); err == nil {
				opened++
			}
		}
	})
	return opened, err
}

// Close untracks path and closes its handle.
func (e *Engine) Close(ctx context.Context, path string) error {
	var closeErr error
	if err := e.call(ctx, func() { closeErr = e.closeDocument(documents.NormalizePath(path)) }); err != nil {
		return err
	}
	return closeErr
}

// Relocate re-keys a document the application itself moved, e.g. after "save as".
func (e *Engine) Relocate(ctx context.Context, oldPath, newPath string) error {
	var relocErr error
	err := e.call(ctx, func() {
		oldPath, newPath = documents.NormalizePath(oldPath), documents.NormalizePath(newPath)
		if !e.table.Has(oldPath) {
			relocErr = fmt.Errorf("relocating %s: %w", oldPath, documents.ErrNotTracked)
			return
		}
		if oldPath == newPath {
			e.check(oldPath)
			return
		}
		e.reassociate(oldPath, newPath)
	})
	if err != nil {
		return err
	}
	return relocErr
}

// State returns the recovery state of path and whether it is tracked.
func (e *Engine) State(ctx context.Context, path string) (State, bool, error) {
	var (
		state   State
		tracked bool
	)
	err := e.call(ctx, func() {
		path = documents.NormalizePath(path)
		if e.table.Has(path) {
			state, tracked = e.states[path], true
		}
	})
	return state, tracked, err
}

// Documents returns snapshots of all tracked documents, most recently activated first.
func (e *Engine) Documents(ctx context.Context) ([]documents.Snapshot, error) {
	var out []documents.Snapshot
	err := e.call(ctx, func() { out = e.table.Snapshot() })
	return out, err
}

// Stats returns counts of the engine's owned state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := e.call(ctx, func() {
		s.Tracked = e.table.Len()
		for _, state := range e.states {
			if state == Unresolved {
				s.Unresolved++
			}
		}
		s.WatchedFiles, s.WatchedDirs = e.registry.Counts()
	})
	return s, err
}

// call runs fn on the engine goroutine and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.queue <- wrapped:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post queues fn without waiting. It is dropped once the engine has stopped.
func (e *Engine) post(fn func()) {
	select {
	case e.queue <- fn:
	case <-e.done:
	}
}

func (e *Engine) open(path string) error {
	path = documents.NormalizePath(path)
	if e.table.Activate(path) {
		return nil
	}

	handle, err := e.opener.Open(path)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("Failed to open document")
		return err
	}
	td, err := e.table.Add(path, handle)
	if err != nil {
		handle.Close()
		return err
	}
	e.registry.AddWatch(path)
	e.states[path] = Present

	e.logger.WithFields(logrus.Fields{
		"path":  path,
		"label": td.Label,
		"pages": handle.PageCount(),
	}).Info("📄 Document opened")
	return nil
}

func (e *Engine) closeDocument(path string) error {
	err := e.table.Remove(path)
	if errors.Is(err, documents.ErrNotTracked) {
		return err
	}
	e.registry.RemoveWatch(path)
	delete(e.states, path)

	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("Document handle did not close cleanly")
		return err
	}
	e.logger.WithField("path", path).Debug("Document closed")
	return nil
}

func (e *Engine) handleEvent(ev watcher.Event) {
	switch ev.Kind {
	case watcher.FileChanged:
		path := filepath.Clean(ev.Path)
		if e.table.Has(path) {
			e.check(path)
		}
	case watcher.DirectoryChanged:
		for _, path := range e.table.InDirectory(ev.Path) {
			e.check(path)
		}
	}
}

// check refreshes a present document or schedules recovery for a missing one.
func (e *Engine) check(path string) {
	td, ok := e.table.Get(path)
	if !ok {
		return
	}

	if fp, ok := watcher.Compute(path); ok {
		td.Fingerprint = fp
		if e.states[path] != Present {
			e.logger.WithField("path", path).Debug("Tracked file present again")
		}
		e.states[path] = Present
		e.registry.Refresh(path)
		return
	}

	switch e.states[path] {
	case Missing, Recovering:
		return
	}
	e.states[path] = Missing
	e.logger.WithField("path", path).Debug("Tracked file missing, scheduling recovery")

	e.cfg.AfterFunc(e.cfg.SettleDelay, func() {
		e.post(func() { e.attemptRecovery(path) })
	})
	e.states[path] = Recovering
	e.metrics.IncrementRecoveriesScheduled()
}

func (e *Engine) attemptRecovery(path string) {
	td, ok := e.table.Get(path)
	if !ok || e.states[path] != Recovering {
		return
	}

	if fp, ok := watcher.Compute(path); ok {
		td.Fingerprint = fp
		e.states[path] = Present
		e.registry.Refresh(path)
		return
	}
	if td.Fingerprint.IsZero() {
		e.unresolve(path, nil)
		return
	}

	candidate, err := FindMatch(filepath.Dir(path), td.Fingerprint, path)
	if err != nil || candidate == "" {
		e.unresolve(path, err)
		return
	}

	candidate = documents.NormalizePath(candidate)
	if candidate == path {
		e.states[path] = Present
		return
	}
	e.reassociate(path, candidate)
	e.metrics.IncrementRecoveriesSucceeded()
}

// reassociate moves a tracked document to newPath. When newPath is already tracked the
// entry at oldPath is discarded instead.
func (e *Engine) reassociate(oldPath, newPath string) {
	log := e.logger.WithFields(logrus.Fields{"from": oldPath, "to": newPath})

	if e.table.Has(newPath) {
		e.metrics.IncrementCollisions()
		log.Info("Renamed file is already open, dropping duplicate")
		e.closeDocument(oldPath)
		return
	}

	e.registry.RemoveWatch(oldPath)
	td, err := e.table.Rekey(oldPath, newPath)
	if err != nil {
		log.WithError(err).Warn("Re-key failed")
		e.registry.AddWatch(oldPath)
		return
	}
	e.registry.AddWatch(newPath)
	if fp, ok := watcher.Compute(newPath); ok {
		td.Fingerprint = fp
	}
	delete(e.states, oldPath)
	e.states[newPath] = Present

	log.Info("🔁 Document re-keyed to renamed file")
	if e.cfg.OnRenamed != nil {
		e.cfg.OnRenamed(oldPath, newPath)
	}
}

func (e *Engine) unresolve(path string, err error) {
	e.states[path] = Unresolved
	e.metrics.IncrementRecoveriesUnresolved()

	log := e.logger.WithField("path", path)
	if err != nil {
		log = log.WithError(err)
	}
	log.Debug("No match for missing file, leaving document unresolved")

	if e.cfg.OnUnresolved != nil {
		e.cfg.OnUnresolved(path)
	}
}

func (e *Engine) shutdown() {
	for _, path := range e.table.Paths() {
		e.closeDocument(path)
	}
}
