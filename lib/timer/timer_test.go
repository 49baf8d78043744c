package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

type fired struct {
	session wlan.SessionID
	name    Name
}

func newTestSet(clock Clock) (*Set, *[]fired, *[]func()) {
	var got []fired
	var queued []func()
	s := NewSet(3, clock,
		func(f func()) { queued = append(queued, f) },
		func(id wlan.SessionID, n Name) { got = append(got, fired{id, n}) })
	return s, &got, &queued
}

func drain(queued *[]func()) {
	for len(*queued) > 0 {
		f := (*queued)[0]
		*queued = (*queued)[1:]
		f()
	}
}

func TestTimerFires(t *testing.T) {
	clock := NewManualClock()
	s, got, queued := newTestSet(clock)
	s.Start(WaitForKey, 5*time.Second)
	assert.True(t, s.Running(WaitForKey))

	clock.Advance(4 * time.Second)
	drain(queued)
	assert.Empty(t, *got)

	clock.Advance(time.Second)
	drain(queued)
	require.Len(t, *got, 1)
	assert.Equal(t, fired{3, WaitForKey}, (*got)[0])
	assert.False(t, s.Running(WaitForKey))
}

func TestStopIsIdempotent(t *testing.T) {
	clock := NewManualClock()
	s, got, queued := newTestSet(clock)
	assert.False(t, s.Stop(RoamingWindow), "never started, so it was not running")
	assert.False(t, s.Running(RoamingWindow))

	s.Start(RoamingWindow, time.Second)
	assert.True(t, s.Stop(RoamingWindow))
	assert.False(t, s.Stop(RoamingWindow))

	clock.Advance(2 * time.Second)
	drain(queued)
	assert.Empty(t, *got)

	// stopping after expiry is also a no-op
	s.Start(RoamingWindow, time.Second)
	clock.Advance(time.Second)
	drain(queued)
	assert.False(t, s.Stop(RoamingWindow))
	assert.Len(t, *got, 1)

	// a stopped timer can be started again
	s.Start(RoamingWindow, time.Second)
	clock.Advance(time.Second)
	drain(queued)
	assert.Len(t, *got, 2)
}

func TestStaleExpiryIsDropped(t *testing.T) {
	clock := NewManualClock()
	s, got, queued := newTestSet(clock)
	s.Start(JoinRetry, time.Second)
	clock.Advance(time.Second) // expiry posted but not yet run
	require.Len(t, *queued, 1)

	s.Start(JoinRetry, 10*time.Second) // restart before the worker runs it
	drain(queued)
	assert.Empty(t, *got, "expiry of the previous arming must not fire")
	assert.True(t, s.Running(JoinRetry))

	clock.Advance(10 * time.Second)
	drain(queued)
	assert.Len(t, *got, 1)
}

func TestStopAll(t *testing.T) {
	clock := NewManualClock()
	s, got, queued := newTestSet(clock)
	s.Start(IBSSJoin, time.Second)
	s.Start(Rescan, time.Second)
	s.StopAll()
	assert.Zero(t, clock.Pending())
	clock.Advance(time.Minute)
	drain(queued)
	assert.Empty(t, *got)
}

func TestRealClock(t *testing.T) {
	done := make(chan Name, 1)
	s := NewSet(0, nil, func(f func()) { f() }, func(_ wlan.SessionID, n Name) { done <- n })
	s.Start(IBSSJoin, time.Millisecond)
	select {
	case n := <-done:
		assert.Equal(t, IBSSJoin, n)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestManualClockOrdering(t *testing.T) {
	c := NewManualClock()
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	h := c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	assert.True(t, h.Stop())
	assert.False(t, h.Stop())
	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 3}, order)
	assert.Equal(t, 5*time.Second, c.Now())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "wait_for_key", WaitForKey.String())
	assert.Equal(t, "timer(9)", Name(9).String())
}
