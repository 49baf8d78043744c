// Package signals dispatches process signals to registered handlers. A reload
// signal (SIGHUP) runs the reload handlers. A stop signal (SIGINT, SIGTERM)
// runs the pre-shutdown handlers under a deadline, then the interrupt handlers.
package signals

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
)

// sigChan is buffered so a signal arriving before Handle starts is kept.
var sigChan = make(chan os.Signal, 1)

var stopOnce sync.Once

func init() {
	signal.Notify(sigChan, slices.Concat(stopSignals, reloadSignals)...)
}

// Handler is called when a signal arrives.
type Handler func()

// HandlerID identifies a registered handler for deregistration.
type HandlerID int

// registry is an ordered handler list safe for concurrent registration.
type registry struct {
	kind     string
	mu       sync.RWMutex
	handlers []registeredHandler
}

type registeredHandler struct {
	id HandlerID
	fn Handler
}

var (
	idMu   sync.Mutex
	nextID HandlerID

	reloaders    = &registry{kind: "reload"}
	interrupters = &registry{kind: "interrupt"}
)

func newID() HandlerID {
	idMu.Lock()
	defer idMu.Unlock()
	id := nextID
	nextID++
	return id
}

func (r *registry) add(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	id := newID()
	r.mu.Lock()
	r.handlers = append(r.handlers, registeredHandler{id: id, fn: f})
	r.mu.Unlock()
	return id
}

func (r *registry) remove(id HandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = slices.DeleteFunc(r.handlers, func(h registeredHandler) bool { return h.id == id })
}

func (r *registry) reset() {
	r.mu.Lock()
	r.handlers = nil
	r.mu.Unlock()
}

// run calls every handler in registration order. A panic in one handler is
// reported and the rest still run.
func (r *registry) run() {
	r.mu.RLock()
	handlers := slices.Clone(r.handlers)
	r.mu.RUnlock()
	for _, h := range handlers {
		runProtected(r.kind, h.fn)
	}
}

// RegisterReloadHandler registers a handler for the reload signal.
// Nil handlers are ignored and return -1.
func RegisterReloadHandler(f Handler) HandlerID { return reloaders.add(f) }

// DeregisterReloadHandler removes a reload handler by ID.
func DeregisterReloadHandler(id HandlerID) { reloaders.remove(id) }

// RegisterInterruptHandler registers a handler for stop signals. It runs after
// the pre-shutdown phase. Nil handlers are ignored and return -1.
func RegisterInterruptHandler(f Handler) HandlerID { return interrupters.add(f) }

// DeregisterInterruptHandler removes an interrupt handler by ID.
func DeregisterInterruptHandler(id HandlerID) { interrupters.remove(id) }

// runProtected calls fn and reports a panic on stderr. The package has no
// logger of its own so handler failures stay visible during shutdown.
func runProtected(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "signals: panic in %s handler: %v\n", kind, r)
		}
	}()
	fn()
}

func handleReload() { reloaders.run() }

func handleInterrupted() {
	handlePreShutdown()
	interrupters.run()
}

func dispatch(sig os.Signal) {
	switch {
	case slices.Contains(reloadSignals, sig):
		handleReload()
	case slices.Contains(stopSignals, sig):
		handleInterrupted()
	}
}

// Handle dispatches signals until StopHandle is called.
func Handle() {
	for sig := range sigChan {
		dispatch(sig)
	}
}

// StopHandle stops signal delivery and makes Handle return.
// Safe to call multiple times.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
