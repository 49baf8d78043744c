// Package power is the reference power collaborator. Manager tracks whether
// the radio is at full power or in power save and performs the transition to
// full power asynchronously, the way a firmware power-management handshake
// would.
package power

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// State is the radio power state.
type State uint8

const (
	StateFullPower State = iota
	StatePowerSave
	StateTransitioning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFullPower:
		return "full_power"
	case StatePowerSave:
		return "power_save"
	case StateTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Reason explains why a command needs a power transition.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonPowerSave
	ReasonTransitionInProgress
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonPowerSave:
		return "radio_in_power_save"
	case ReasonTransitionInProgress:
		return "transition_in_progress"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransitionDelay sets how long a wake-up takes. Zero makes
// RequestFullPower synchronous.
func WithTransitionDelay(d time.Duration) Option { return func(m *Manager) { m.delay = d } }

// WithInitialState sets the starting power state.
func WithInitialState(s State) Option { return func(m *Manager) { m.state = s } }

// Manager implements command.PowerGate.
type Manager struct {
	mu       sync.Mutex
	state    State
	delay    time.Duration
	waiters  []func(error)
	timer    *time.Timer
	failNext error
}

// NewManager creates a manager at full power unless configured otherwise.
func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current power state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Required reports whether a roam needs a transition, and why.
func (m *Manager) Required() (bool, Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StatePowerSave:
		return true, ReasonPowerSave
	case StateTransitioning:
		return true, ReasonTransitionInProgress
	default:
		return false, ReasonNone
	}
}

// IsFullPowerNeeded implements command.PowerGate. Only roam commands drive
// the radio through association handshakes that need full power.
func (m *Manager) IsFullPowerNeeded(cmd *command.Command) (bool, string) {
	if cmd.Kind() != command.KindRoam {
		return false, ReasonNone.String()
	}
	needed, reason := m.Required()
	return needed, reason.String()
}

// RequestFullPower implements command.PowerGate.
func (m *Manager) RequestFullPower(done func(error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFullPower:
		return false, nil
	case StateTransitioning:
		m.waiters = append(m.waiters, done)
		return true, nil
	}

	if m.delay <= 0 {
		if err := m.takeFailure(); err != nil {
			return false, err
		}
		m.state = StateFullPower
		log.WithField("at", "power.Manager.RequestFullPower").Debug("full_power")
		return false, nil
	}

	m.state = StateTransitioning
	m.waiters = append(m.waiters, done)
	m.timer = time.AfterFunc(m.delay, m.finishTransition)
	log.WithFields(logger.Fields{
		"at":    "power.Manager.RequestFullPower",
		"delay": m.delay.String(),
	}).Debug("power_transition_started")
	return true, nil
}

func (m *Manager) finishTransition() {
	m.mu.Lock()
	if m.state != StateTransitioning {
		m.mu.Unlock()
		return
	}
	err := m.takeFailure()
	if err != nil {
		m.state = StatePowerSave
	} else {
		m.state = StateFullPower
	}
	waiters := m.waiters
	m.waiters = nil
	m.timer = nil
	m.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("at", "power.Manager.finishTransition").Error("power transition failed")
	} else {
		log.WithField("at", "power.Manager.finishTransition").Debug("full_power")
	}
	for _, done := range waiters {
		done(err)
	}
}

func (m *Manager) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// EnterPowerSave moves the radio to power save. It fails with
// wlan.ErrWrongState while a wake-up is in progress.
func (m *Manager) EnterPowerSave() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateTransitioning {
		return oops.Wrapf(wlan.ErrWrongState, "power transition in progress")
	}
	m.state = StatePowerSave
	log.WithField("at", "power.Manager.EnterPowerSave").Debug("power_save")
	return nil
}

// FailNextTransition makes the next wake-up fail with err.
func (m *Manager) FailNextTransition(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Close cancels a pending transition. Waiters are told wlan.ErrAborted.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	waiters := m.waiters
	m.waiters = nil
	if m.state == StateTransitioning {
		m.state = StatePowerSave
	}
	m.mu.Unlock()
	for _, done := range waiters {
		done(wlan.ErrAborted)
	}
}

var _ command.PowerGate = (*Manager)(nil)
