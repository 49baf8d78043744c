package signals

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// defaultGracefulTimeout bounds the pre-shutdown phase.
const defaultGracefulTimeout = 10 * time.Second

// ShutdownHandler runs before the interrupt handlers. ctx expires when the
// graceful timeout does; handlers that wait on the lower layer should give up
// then.
type ShutdownHandler func(ctx context.Context)

var (
	preShutdownMu       sync.RWMutex
	preShutdownHandlers []ShutdownHandler
	gracefulTimeout     = defaultGracefulTimeout
)

// RegisterPreShutdownHandler adds a handler to the pre-shutdown phase. The CLI
// uses it to disconnect open sessions so the lower layer sees a clean
// disassociation before the worker stops. Handlers run in registration order.
func RegisterPreShutdownHandler(f ShutdownHandler) {
	if f == nil {
		return
	}
	preShutdownMu.Lock()
	defer preShutdownMu.Unlock()
	preShutdownHandlers = append(preShutdownHandlers, f)
}

// SetGracefulTimeout sets the pre-shutdown deadline. Non-positive values
// restore the default.
func SetGracefulTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultGracefulTimeout
	}
	preShutdownMu.Lock()
	gracefulTimeout = timeout
	preShutdownMu.Unlock()
}

// handlePreShutdown reports whether every handler returned before the
// deadline. Handlers still running after it are abandoned.
func handlePreShutdown() bool {
	preShutdownMu.RLock()
	handlers := append([]ShutdownHandler(nil), preShutdownHandlers...)
	timeout := gracefulTimeout
	preShutdownMu.RUnlock()

	if len(handlers) == 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, h := range handlers {
			if ctx.Err() != nil {
				return
			}
			runProtected("pre-shutdown", func() { h(ctx) })
		}
	}()

	select {
	case <-done:
		return ctx.Err() == nil
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "signals: pre-shutdown handlers timed out after %s\n", timeout)
		return false
	}
}
