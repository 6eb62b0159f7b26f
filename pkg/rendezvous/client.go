package rendezvous

import (
	"context"
	"net"
	"time"
)

// DefaultForwardTimeout bounds connecting to and writing to a primary.
const DefaultForwardTimeout = 500 * time.Millisecond

// Forward hands paths to the primary listening on socketPath. It reports whether the
// payload was written; false means the caller should become primary itself.
func Forward(ctx context.Context, socketPath string, paths []string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}

	payload, err := EncodePaths(paths)
	if err != nil {
		return false
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(payload); err != nil {
		return false
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return false
		}
	}
	return true
}
