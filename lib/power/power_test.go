package power

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func TestFullPowerNeedsNothing(t *testing.T) {
	m := NewManager()
	pool := command.NewPool(2)
	cmd, err := pool.Acquire(0, &command.RoamPayload{Reason: wlan.ReasonConnect})
	require.NoError(t, err)

	needed, _ := m.IsFullPowerNeeded(cmd)
	assert.False(t, needed)
	pending, err := m.RequestFullPower(func(error) { t.Fatal("done must not be called") })
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestOnlyRoamCommandsNeedPower(t *testing.T) {
	m := NewManager(WithInitialState(StatePowerSave))
	pool := command.NewPool(2)
	roam, _ := pool.Acquire(0, &command.RoamPayload{})
	key, _ := pool.Acquire(0, command.NewSetKey(&security.KeyMaterial{Cipher: security.CipherCCMP, Key: make([]byte, 16)}))

	needed, reason := m.IsFullPowerNeeded(roam)
	assert.True(t, needed)
	assert.Equal(t, "radio_in_power_save", reason)
	needed, _ = m.IsFullPowerNeeded(key)
	assert.False(t, needed)
}

func TestAsyncTransition(t *testing.T) {
	m := NewManager(WithInitialState(StatePowerSave), WithTransitionDelay(5*time.Millisecond))
	done := make(chan error, 2)

	pending, err := m.RequestFullPower(func(err error) { done <- err })
	require.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, StateTransitioning, m.State())
	assert.ErrorIs(t, m.EnterPowerSave(), wlan.ErrWrongState)

	// second requester joins the same transition
	pending, err = m.RequestFullPower(func(err error) { done <- err })
	require.NoError(t, err)
	assert.True(t, pending)

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("transition did not complete")
		}
	}
	assert.Equal(t, StateFullPower, m.State())
}

func TestSyncTransitionAndFailure(t *testing.T) {
	m := NewManager(WithInitialState(StatePowerSave))
	boom := errors.New("pmu timeout")
	m.FailNextTransition(boom)
	_, err := m.RequestFullPower(nil)
	assert.ErrorIs(t, err, boom)

	pending, err := m.RequestFullPower(nil)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, StateFullPower, m.State())
}

func TestCloseAbortsWaiters(t *testing.T) {
	m := NewManager(WithInitialState(StatePowerSave), WithTransitionDelay(time.Hour))
	var got error
	_, err := m.RequestFullPower(func(err error) { got = err })
	require.NoError(t, err)
	m.Close()
	assert.ErrorIs(t, got, wlan.ErrAborted)
	assert.Equal(t, StatePowerSave, m.State())
}
