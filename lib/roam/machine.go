package roam

import (
	"sync"

	"github.com/go-i2p/logger"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/candidate"
	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// Option configures a Machine.
type Option func(*Machine)

// WithPowerGate makes roam commands wait for the radio to reach full power.
func WithPowerGate(g command.PowerGate) Option { return func(m *Machine) { m.power = g } }

// WithClock replaces the real clock used by the session timers.
func WithClock(c timer.Clock) Option { return func(m *Machine) { m.clock = c } }

// WithFilter replaces the filter built from Config.Admission. It is applied
// to every walk before the scan collaborator's ShouldRoamTo.
func WithFilter(f candidate.Filter) Option { return func(m *Machine) { m.filter = f } }

// WithRequester sets the collaborator used for scan commands and lost-link
// rescans. By default the scan collaborator is used if it implements
// scan.Requester.
func WithRequester(r scan.Requester) Option { return func(m *Machine) { m.requester = r } }

// inflight is the wire request the active command is waiting on.
type inflight struct {
	cmd     *command.Command
	session wlan.SessionID
	op      wire.Op
	token   uuid.UUID
}

// Machine is the roam state machine. All fields below the mailbox are owned
// by the worker goroutine.
type Machine struct {
	cfg       Config
	engine    wire.Engine
	scanner   scan.Collaborator
	requester scan.Requester
	sink      notify.Sink
	power     command.PowerGate
	clock     timer.Clock
	filter    candidate.Filter

	mu       sync.Mutex
	mailbox  []func()
	stopped  bool
	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	store   *session.Store
	pool    *command.Pool
	queue   *command.Queue
	timers  map[wlan.SessionID]*timer.Set
	closing map[wlan.SessionID]bool
	// current is the command the queue dispatched last, until it completes
	// or is abandoned.
	current *command.Command
	flight  *inflight
	roamSeq uint32
}

// New creates a machine and starts its worker. Close stops it.
func New(cfg Config, engine wire.Engine, scanner scan.Collaborator, sink notify.Sink, opts ...Option) (*Machine, error) {
	if engine == nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "roam machine needs a wire engine")
	}
	if scanner == nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "roam machine needs a scan collaborator")
	}
	if sink == nil {
		sink = notify.NoopSink{}
	}
	if cfg.CommandPoolSize <= 0 {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "command pool size %d", cfg.CommandPoolSize)
	}

	m := &Machine{
		cfg:      cfg,
		engine:   engine,
		scanner:  scanner,
		sink:     sink,
		clock:    timer.RealClock{},
		filter:   cfg.Admission.Filter(),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		timers:   make(map[wlan.SessionID]*timer.Set),
		closing:  make(map[wlan.SessionID]bool),
	}
	if r, ok := scanner.(scan.Requester); ok {
		m.requester = r
	}
	for _, opt := range opts {
		opt(m)
	}

	m.store = session.NewStore(session.StoreConfig{
		MaxSessions:       cfg.MaxSessions,
		AllowMultiChannel: cfg.AllowMultiChannel,
		LostLinkRate:      cfg.LostLinkRate,
		LostLinkBurst:     cfg.LostLinkBurst,
	})
	m.pool = command.NewPool(cfg.CommandPoolSize)
	queueOpts := []command.Option{
		command.WithExecutor(func(f func()) { m.post(f) }),
		command.WithReadyCheck(m.ready),
		command.WithReleaseHook(m.released),
	}
	if m.power != nil {
		queueOpts = append(queueOpts, command.WithPowerGate(m.power))
	}
	m.queue = command.NewQueue(m.pool, m, queueOpts...)

	m.wg.Add(1)
	go m.run()

	log.WithFields(logger.Fields{
		"at":           "roam.New",
		"max_sessions": m.store.Capacity(),
		"pool":         cfg.CommandPoolSize,
	}).Debug("roam_machine_started")
	return m, nil
}

// post appends f to the mailbox. It returns false once the machine is closed.
func (m *Machine) post(f func()) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.mailbox = append(m.mailbox, f)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs f on the worker and waits for its result.
func (m *Machine) do(f func() error) error {
	done := make(chan error, 1)
	if !m.post(func() { done <- f() }) {
		return oops.Wrapf(wlan.ErrAborted, "roam machine closed")
	}
	select {
	case err := <-done:
		return err
	case <-m.stopChan:
		select {
		case err := <-done:
			return err
		default:
			return oops.Wrapf(wlan.ErrAborted, "roam machine closed")
		}
	}
}

func (m *Machine) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.mailbox
	m.mailbox = nil
	return batch
}

func (m *Machine) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopChan:
			m.shutdown()
			return
		case <-m.wake:
			for batch := m.take(); len(batch) > 0; batch = m.take() {
				for _, f := range batch {
					f()
				}
			}
		}
	}
}

// Sync waits until everything posted before the call has run.
func (m *Machine) Sync() error {
	return m.do(func() error { return nil })
}

// Close stops the worker. Pending commands are aborted and their requesters
// told so; the active command is aborted as well.
func (m *Machine) Close() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.stopChan)
		m.wg.Wait()
		log.WithField("at", "roam.Machine.Close").Debug("roam_machine_stopped")
	})
	return nil
}

// shutdown runs on the worker as its last act.
func (m *Machine) shutdown() {
	for _, set := range m.timers {
		set.StopAll()
	}
	m.queue.Drain(oops.Wrapf(wlan.ErrAborted, "roam machine closing"))
	m.flight = nil
	m.current = nil
}

// Stats is a snapshot of the queue.
type Stats struct {
	Active    string `json:"active,omitempty"`
	Pending   int    `json:"pending"`
	PoolInUse int    `json:"pool_in_use"`
	PowerWait bool   `json:"power_wait"`
	Sessions  int    `json:"sessions"`
}

// Snapshot returns the state of every open session and of the queue.
func (m *Machine) Snapshot() ([]session.Info, Stats, error) {
	var infos []session.Info
	var stats Stats
	err := m.do(func() error {
		m.store.Each(func(s *session.Session) { infos = append(infos, s.Info()) })
		if a := m.queue.Active(); a != nil {
			stats.Active = a.String()
		}
		stats.Pending = m.queue.Len()
		stats.PoolInUse = m.pool.InUse()
		stats.PowerWait = m.queue.PowerWait()
		stats.Sessions = len(infos)
		return nil
	})
	return infos, stats, err
}

// Session returns the state of one session.
func (m *Machine) Session(id wlan.SessionID) (session.Info, error) {
	var info session.Info
	err := m.do(func() error {
		s, err := m.store.Get(id)
		if err != nil {
			return err
		}
		info = s.Info()
		return nil
	})
	return info, err
}

// sessionFor returns an open session that is not being torn down.
func (m *Machine) sessionFor(id wlan.SessionID) (*session.Session, error) {
	s, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if m.closing[id] {
		return nil, oops.Wrapf(wlan.ErrWrongState, "session %s is closing", id)
	}
	return s, nil
}

func (m *Machine) nextRoamID() uint32 {
	m.roamSeq++
	if m.roamSeq == 0 {
		m.roamSeq++
	}
	return m.roamSeq
}

// ready holds join attempts of a session that is waiting for its keys.
func (m *Machine) ready(cmd *command.Command) bool {
	if !cmd.JoinType() {
		return true
	}
	s, err := m.store.Get(cmd.Session())
	if err != nil {
		return true
	}
	return !s.State().WaitForKey()
}

// released returns candidate lists to the scan collaborator. Lists with
// handle 0 were built locally and are not the collaborator's.
func (m *Machine) released(cmd *command.Command) {
	if p := cmd.Roam(); p != nil {
		m.releaseList(p)
	}
}

func (m *Machine) releaseList(p *command.RoamPayload) {
	if p.Candidates != nil && p.Candidates.Handle() != 0 {
		m.scanner.ReleaseCandidates(p.Candidates)
	}
	p.Candidates = nil
	p.Walker = nil
}

var _ command.Dispatcher = (*Machine)(nil)
