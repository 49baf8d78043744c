package sim

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/power"
	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// DefaultExpectTimeout bounds expect steps when neither the step nor the
// scenario sets a timeout.
const DefaultExpectTimeout = 2 * time.Second

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSink also delivers every notification to s, e.g. a trace file or the
// terminal view.
func WithSink(s notify.Sink) RunnerOption { return func(r *Runner) { r.sink = s } }

// WithMachineOptions passes extra options to every machine the runner builds.
func WithMachineOptions(opts ...roam.Option) RunnerOption {
	return func(r *Runner) { r.machineOpts = append(r.machineOpts, opts...) }
}

// WithPower gates roam commands behind a power manager built from p for
// every run. A scenario's own power section takes precedence.
func WithPower(p PowerSpec) RunnerOption { return func(r *Runner) { r.power = &p } }

// WithObserver is called with every machine the runner builds, before the
// first step runs. Watchers use it to take snapshots of a live run.
func WithObserver(fn func(*roam.Machine)) RunnerOption {
	return func(r *Runner) { r.observe = fn }
}

// Runner plays scenarios. Each Run builds a fresh engine, cache and machine.
type Runner struct {
	cfg         roam.Config
	sink        notify.Sink
	machineOpts []roam.Option
	observe     func(*roam.Machine)
	power       *PowerSpec
}

// NewRunner creates a runner whose machines start from cfg.
func NewRunner(cfg roam.Config, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report describes a finished run.
type Report struct {
	Name   string
	Passed bool
	// Failed is the index of the failing step, or -1.
	Failed        int
	Err           error
	Steps         int
	Requests      []wire.Op
	Notifications []notify.Notification
	Elapsed       time.Duration
}

// run is the state of one scenario execution.
type run struct {
	sc     *Scenario
	m      *roam.Machine
	engine *Engine
	cache  *scan.Cache
	rec    *notify.Recorder
	// power is nil when roam commands are not power gated.
	power   *power.Manager
	timeout time.Duration
	// cursor is the index of the first notification expect has not consumed.
	cursor int

	mu  sync.Mutex
	air map[wlan.BSSID]BSSSpec
}

type action func(r *run, ctx context.Context, st Step) error

var actions = map[string]action{
	"open":               (*run).open,
	"close":              (*run).close,
	"connect":            (*run).connect,
	"reassociate":        (*run).reassociate,
	"disconnect":         (*run).disconnect,
	"force_disassociate": (*run).forceDisassociate,
	"deauthenticate":     (*run).deauthenticate,
	"stop_bss":           (*run).stopBss,
	"power_save":         (*run).powerSave,
	"set_key":            (*run).setKey,
	"remove_key":         (*run).removeKey,
	"scan":               (*run).scan,
	"indicate":           (*run).indicate,
	"add_bss":            (*run).addBSS,
	"remove_bss":         (*run).removeBSS,
	"rule":               (*run).rule,
	"expect":             (*run).expect,
	"absent":             (*run).absent,
	"state":              (*run).state,
	"sleep":              (*run).sleep,
}

// Run plays sc to the end or to the first failing step. The report is filled
// in either way.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	start := time.Now()
	rep := &Report{Name: sc.Name, Failed: -1}

	ru, err := r.setup(sc)
	if err != nil {
		rep.Err = err
		return rep, err
	}
	defer ru.shutdown()

	for i, st := range sc.Steps {
		fn, ok := actions[st.Action]
		if !ok {
			err = oops.Wrapf(wlan.ErrInvalidParameter, "unknown action %q", st.Action)
		} else {
			err = fn(ru, ctx, st)
		}
		if err != nil {
			err = oops.Wrapf(err, "scenario %s step %d (%s)", sc.Name, i, st.Action)
			rep.Failed = i
			rep.Err = err
			ru.fill(rep, start)
			log.WithFields(logger.Fields{
				"at":       "sim.Runner.Run",
				"scenario": sc.Name,
				"step":     i,
				"action":   st.Action,
			}).WithError(err).Warn("scenario_failed")
			return rep, err
		}
		rep.Steps++
	}
	rep.Passed = true
	ru.fill(rep, start)
	log.WithFields(logger.Fields{
		"at":       "sim.Runner.Run",
		"scenario": sc.Name,
		"steps":    rep.Steps,
		"elapsed":  rep.Elapsed.String(),
	}).Debug("scenario_passed")
	return rep, nil
}

func (r *Runner) setup(sc *Scenario) (*run, error) {
	ru := &run{
		sc:      sc,
		rec:     notify.NewRecorder(),
		timeout: sc.Timeout,
		air:     make(map[wlan.BSSID]BSSSpec),
	}
	if ru.timeout <= 0 {
		ru.timeout = DefaultExpectTimeout
	}

	var rules []Rule
	for _, rs := range sc.Rules {
		rule, err := rs.Rule()
		if err != nil {
			return nil, oops.Wrapf(err, "scenario %s rule", sc.Name)
		}
		rules = append(rules, rule)
	}
	ru.engine = NewEngine(WithLatency(sc.Latency), WithRules(rules...))
	ru.cache = scan.NewCache(scan.WithSource(ru.listen))

	now := time.Now()
	for _, b := range sc.BSS {
		desc, err := b.Description(now)
		if err != nil {
			return nil, oops.Wrapf(err, "scenario %s bss", sc.Name)
		}
		ru.air[desc.BSSID] = b
		ru.cache.Update(desc)
	}

	var sink notify.Sink = ru.rec
	if r.sink != nil {
		sink = notify.MultiSink{ru.rec, r.sink}
	}
	cfg, err := sc.Config.apply(r.cfg)
	if err != nil {
		return nil, oops.Wrapf(err, "scenario %s config", sc.Name)
	}
	opts := slices.Clone(r.machineOpts)
	if ps := sc.Config.Power; ps != nil || r.power != nil {
		if ps == nil {
			ps = r.power
		}
		ru.power = ps.Manager()
		opts = append(opts, roam.WithPowerGate(ru.power))
	}
	m, err := roam.New(cfg, ru.engine, ru.cache, sink, opts...)
	if err != nil {
		if ru.power != nil {
			ru.power.Close()
		}
		return nil, err
	}
	ru.m = m
	ru.engine.Attach(m)
	if r.observe != nil {
		r.observe(m)
	}
	return ru, nil
}

// Manager builds a power manager in the configured starting state.
func (p *PowerSpec) Manager() *power.Manager {
	state := power.StateFullPower
	if p.StartInPowerSave {
		state = power.StatePowerSave
	}
	return power.NewManager(power.WithTransitionDelay(p.TransitionDelay), power.WithInitialState(state))
}

func (c ConfigSpec) apply(cfg roam.Config) (roam.Config, error) {
	if c.MaxSessions > 0 {
		cfg.MaxSessions = c.MaxSessions
	}
	if c.MaxRescans > 0 {
		cfg.MaxRescans = c.MaxRescans
	}
	if c.RoamingWindow > 0 {
		cfg.Timers.RoamingWindow = c.RoamingWindow
	}
	if c.WaitForKey > 0 {
		cfg.Timers.WaitForKey = c.WaitForKey
	}
	if c.IBSSJoin > 0 {
		cfg.Timers.IBSSJoin = c.IBSSJoin
	}
	if c.JoinRetry > 0 {
		cfg.Timers.JoinRetry = c.JoinRetry
	}
	if c.RescanInitial > 0 {
		cfg.Rescan.Initial = c.RescanInitial
	}
	if c.RescanMax > 0 {
		cfg.Rescan.Max = c.RescanMax
	}
	if c.RoamOnLostLink != nil {
		cfg.RoamOnLostLink = *c.RoamOnLostLink
	}
	if c.MinRSSI != 0 {
		cfg.Admission.MinRSSI = c.MinRSSI
	}
	if len(c.Bands) > 0 {
		cfg.Admission.Bands = nil
		for _, s := range c.Bands {
			b, err := wlan.ParseBand(s)
			if err != nil {
				return cfg, err
			}
			cfg.Admission.Bands = append(cfg.Admission.Bands, b)
		}
	}
	if len(c.Exclude) > 0 {
		cfg.Admission.Exclude = nil
		for _, s := range c.Exclude {
			b, err := wlan.ParseBSSID(s)
			if err != nil {
				return cfg, err
			}
			cfg.Admission.Exclude = append(cfg.Admission.Exclude, b)
		}
	}
	return cfg, nil
}

// listen is the cache's scan source: whatever is on the air right now.
func (r *run) listen(ctx context.Context, filter scan.Filter) ([]*scan.BSSDescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*scan.BSSDescription
	for _, b := range r.air {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := b.Description(now)
		if err != nil {
			return nil, err
		}
		if filter.Match(desc) {
			out = append(out, desc)
		}
	}
	return out, nil
}

func (r *run) fill(rep *Report, start time.Time) {
	rep.Requests = r.engine.Ops()
	rep.Notifications = r.rec.All()
	rep.Elapsed = time.Since(start)
}

func (r *run) shutdown() {
	if err := r.m.Close(); err != nil {
		log.WithError(err).WithField("at", "sim.run.shutdown").Warn("machine_close_failed")
	}
	r.engine.Close()
	if r.power != nil {
		r.power.Close()
	}
}

func (r *run) open(_ context.Context, st Step) error {
	self := wlan.BSSID{0x02, 0, 0, 0, 0, byte(st.Session) + 1}
	if st.Self != "" {
		var err error
		if self, err = wlan.ParseBSSID(st.Self); err != nil {
			return err
		}
	}
	id, err := r.m.OpenSession(self)
	if err != nil {
		return err
	}
	if id != st.Session {
		return oops.Wrapf(wlan.ErrWrongState, "opened %s, scenario expected %s", id, st.Session)
	}
	return nil
}

func (r *run) close(_ context.Context, st Step) error {
	return r.m.CloseSession(st.Session)
}

func (r *run) connect(_ context.Context, st Step) error {
	prof, err := st.Profile.Profile()
	if err != nil {
		return err
	}
	_, err = r.m.Connect(st.Session, prof)
	return err
}

func (r *run) reassociate(_ context.Context, st Step) error {
	var prof *security.Profile
	if st.Profile != nil {
		var err error
		if prof, err = st.Profile.Profile(); err != nil {
			return err
		}
	}
	_, err := r.m.Reassociate(st.Session, prof)
	return err
}

func (r *run) disconnect(_ context.Context, st Step) error {
	return r.m.Disconnect(st.Session)
}

func (r *run) peer(st Step) (wlan.BSSID, error) {
	if st.Peer == "" {
		return wlan.BSSID{}, nil
	}
	return wlan.ParseBSSID(st.Peer)
}

func (r *run) forceDisassociate(_ context.Context, st Step) error {
	peer, err := r.peer(st)
	if err != nil {
		return err
	}
	_, err = r.m.ForceDisassociate(st.Session, peer, st.ReasonCode)
	return err
}

func (r *run) deauthenticate(_ context.Context, st Step) error {
	peer, err := r.peer(st)
	if err != nil {
		return err
	}
	_, err = r.m.Deauthenticate(st.Session, peer, st.ReasonCode)
	return err
}

func (r *run) stopBss(_ context.Context, st Step) error {
	_, err := r.m.StopBss(st.Session)
	return err
}

// powerSave puts the radio back into power save, so the next roam command
// waits for a wake-up.
func (r *run) powerSave(_ context.Context, _ Step) error {
	if r.power == nil {
		return oops.Wrapf(wlan.ErrWrongState, "scenario %s has no power manager", r.sc.Name)
	}
	return r.power.EnterPowerSave()
}

func (r *run) setKey(_ context.Context, st Step) error {
	key, err := st.Key.Material()
	if err != nil {
		return err
	}
	return r.m.SetKey(st.Session, key)
}

func (r *run) removeKey(_ context.Context, st Step) error {
	key, err := st.Key.Material()
	if err != nil {
		return err
	}
	return r.m.RemoveKey(st.Session, key)
}

func (r *run) scan(_ context.Context, st Step) error {
	return r.m.RequestScan(st.Session, scan.Filter{}, nil)
}

func (r *run) indicate(_ context.Context, st Step) error {
	kind, err := wire.ParseIndicationKind(st.Indication)
	if err != nil {
		return err
	}
	peer, err := r.peer(st)
	if err != nil {
		return err
	}
	return r.engine.Indicate(&wire.Indication{Kind: kind, Session: st.Session, Peer: peer, ReasonCode: st.ReasonCode})
}

func (r *run) addBSS(_ context.Context, st Step) error {
	if st.BSS == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "add_bss needs a bss")
	}
	desc, err := st.BSS.Description(time.Now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.air[desc.BSSID] = *st.BSS
	r.mu.Unlock()
	return nil
}

// removeBSS takes a BSS off the air and out of the scan cache.
func (r *run) removeBSS(_ context.Context, st Step) error {
	if st.BSS == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "remove_bss needs a bss")
	}
	bssid, err := wlan.ParseBSSID(st.BSS.BSSID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.air, bssid)
	r.mu.Unlock()
	r.cache.Remove(bssid)
	return nil
}

func (r *run) rule(_ context.Context, st Step) error {
	if st.Rule == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "rule step needs a rule")
	}
	rule, err := st.Rule.Rule()
	if err != nil {
		return err
	}
	r.engine.AddRule(rule)
	return nil
}

// matcher returns the event kind and optional result a step waits for.
func matcher(st Step) (notify.EventKind, *wlan.Result, error) {
	kind, err := notify.ParseEventKind(st.Event)
	if err != nil {
		return 0, nil, err
	}
	if st.Result == "" {
		return kind, nil, nil
	}
	res, err := wlan.ParseResult(st.Result)
	if err != nil {
		return 0, nil, err
	}
	return kind, &res, nil
}

// expect waits for the next notification of the step's kind for its session
// and checks its result.
func (r *run) expect(ctx context.Context, st Step) error {
	kind, want, err := matcher(st)
	if err != nil {
		return err
	}
	timeout := st.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		all := r.rec.All()
		for i := r.cursor; i < len(all); i++ {
			n := all[i]
			if n.Session != st.Session || n.Event != kind {
				continue
			}
			r.cursor = i + 1
			if want != nil && n.Result != *want {
				return oops.Wrapf(wlan.ErrFailure, "%s for %s: result %s, want %s", kind, st.Session, n.Result, *want)
			}
			return nil
		}
		select {
		case <-r.rec.Wake():
		case <-deadline.C:
			return oops.Wrapf(wlan.ErrTimeout, "no %s for %s within %s", kind, st.Session, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// absent waits For and fails if a matching notification arrived meanwhile.
func (r *run) absent(ctx context.Context, st Step) error {
	kind, want, err := matcher(st)
	if err != nil {
		return err
	}
	if err := r.sleep(ctx, st); err != nil {
		return err
	}
	all := r.rec.All()
	for _, n := range all[r.cursor:] {
		if n.Session == st.Session && n.Event == kind && (want == nil || n.Result == *want) {
			return oops.Wrapf(wlan.ErrFailure, "unexpected %s for %s", kind, st.Session)
		}
	}
	return nil
}

func (r *run) state(_ context.Context, st Step) error {
	if err := r.m.Sync(); err != nil {
		return err
	}
	info, err := r.m.Session(st.Session)
	if err != nil {
		return err
	}
	if info.Kind.String() != st.State {
		return oops.Wrapf(wlan.ErrWrongState, "%s is %s, want %s", st.Session, info.State, st.State)
	}
	return nil
}

func (r *run) sleep(ctx context.Context, st Step) error {
	if st.For <= 0 {
		return nil
	}
	t := time.NewTimer(st.For)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
