package signals

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHandlers(t *testing.T) {
	t.Helper()
	reset := func() {
		reloaders.reset()
		interrupters.reset()
		preShutdownMu.Lock()
		preShutdownHandlers = nil
		gracefulTimeout = defaultGracefulTimeout
		preShutdownMu.Unlock()
	}
	reset()
	t.Cleanup(reset)
}

func TestReloadHandlersRunAndDeregister(t *testing.T) {
	resetHandlers(t)
	var calls int32
	id := RegisterReloadHandler(func() { atomic.AddInt32(&calls, 1) })
	assert.GreaterOrEqual(t, int(id), 0)
	assert.Equal(t, HandlerID(-1), RegisterReloadHandler(nil))

	handleReload()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	DeregisterReloadHandler(id)
	handleReload()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHandlerIDsAreUniqueAcrossKinds(t *testing.T) {
	resetHandlers(t)
	a := RegisterReloadHandler(func() {})
	b := RegisterInterruptHandler(func() {})
	assert.NotEqual(t, a, b)

	// removing an id from the wrong registry is a no-op
	DeregisterReloadHandler(b)
	var ran bool
	RegisterInterruptHandler(func() { ran = true })
	interrupters.run()
	assert.True(t, ran)
}

func TestInterruptRunsPreShutdownFirst(t *testing.T) {
	resetHandlers(t)
	var order []string
	RegisterPreShutdownHandler(func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		order = append(order, "disconnect")
	})
	RegisterInterruptHandler(func() { order = append(order, "stop") })

	handleInterrupted()
	assert.Equal(t, []string{"disconnect", "stop"}, order)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	resetHandlers(t)
	var ran bool
	RegisterInterruptHandler(func() { panic("boom") })
	RegisterInterruptHandler(func() { ran = true })

	assert.NotPanics(t, handleInterrupted)
	assert.True(t, ran)
}

func TestPreShutdownTimeout(t *testing.T) {
	resetHandlers(t)
	var second atomic.Bool
	RegisterPreShutdownHandler(func(ctx context.Context) { <-ctx.Done() })
	RegisterPreShutdownHandler(func(context.Context) { second.Store(true) })
	SetGracefulTimeout(20 * time.Millisecond)

	start := time.Now()
	assert.False(t, handlePreShutdown())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, second.Load(), "handlers after the deadline are skipped")

	SetGracefulTimeout(0)
	preShutdownMu.RLock()
	assert.Equal(t, defaultGracefulTimeout, gracefulTimeout)
	preShutdownMu.RUnlock()
}

func TestPreShutdownWithoutHandlers(t *testing.T) {
	resetHandlers(t)
	RegisterPreShutdownHandler(nil)
	assert.True(t, handlePreShutdown())
}

func TestDispatchBySignalKind(t *testing.T) {
	resetHandlers(t)
	var reloads, stops int32
	RegisterReloadHandler(func() { atomic.AddInt32(&reloads, 1) })
	RegisterInterruptHandler(func() { atomic.AddInt32(&stops, 1) })

	require.NotEmpty(t, stopSignals)
	dispatch(stopSignals[0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
	assert.Zero(t, atomic.LoadInt32(&reloads))

	for _, sig := range reloadSignals {
		dispatch(sig)
	}
	assert.Equal(t, int32(len(reloadSignals)), atomic.LoadInt32(&reloads))

	dispatch(os.Kill)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops), "other signals are ignored")
}
