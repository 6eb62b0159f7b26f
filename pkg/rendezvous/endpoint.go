// Package rendezvous lets the first process of a user session become the primary instance
// and later processes hand their arguments to it over a local socket.
package rendezvous

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

const endpointPrefix = "vertview-"

var unsafeChars = strings.NewReplacer(`\`, "_", "/", "_", " ", "_")

// EndpointName derives the per-user endpoint name from an account name.
func EndpointName(username string) string {
	return endpointPrefix + unsafeChars.Replace(username)
}

// CurrentUserEndpoint returns the endpoint name for the invoking user.
func CurrentUserEndpoint() string {
	return EndpointName(currentUsername())
}

// DefaultDir returns the directory holding endpoint sockets: $XDG_RUNTIME_DIR when set,
// otherwise the OS temp directory.
func DefaultDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// SocketPath returns the socket file for endpoint name inside dir.
func SocketPath(dir, name string) string {
	return filepath.Join(dir, name+".sock")
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	return "unknown"
}
