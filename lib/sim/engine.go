package sim

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// reasonUnspecified is the 802.11 reason code reported with failed confirms.
const reasonUnspecified = 1

// Receiver is the side of the roam machine that takes engine traffic.
type Receiver interface {
	Confirm(c *wire.Confirm)
	Indicate(ind *wire.Indication)
}

// Rule overrides the outcome of matching requests.
type Rule struct {
	Op wire.Op
	// Target restricts the rule to one BSS or peer. Zero matches any.
	Target wlan.BSSID
	Status wire.Status
	// Drop swallows the request so that only the request timer ends it.
	Drop bool
	// Times is how often the rule applies. Zero means every time.
	Times int

	used int
}

func (r *Rule) matches(req *wire.Request) bool {
	if r.Op != req.Op {
		return false
	}
	if r.Times > 0 && r.used >= r.Times {
		return false
	}
	return r.Target.IsZero() || r.Target == target(req)
}

// target is the address a request is aimed at.
func target(req *wire.Request) wlan.BSSID {
	if req.BSS != nil {
		return req.BSS.BSSID
	}
	return req.Peer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLatency delays every confirmation by d. Zero confirms from within Send.
func WithLatency(d time.Duration) EngineOption { return func(e *Engine) { e.latency = d } }

// WithRules installs outcome rules. Earlier rules win.
func WithRules(rules ...Rule) EngineOption {
	return func(e *Engine) {
		for i := range rules {
			r := rules[i]
			e.rules = append(e.rules, &r)
		}
	}
}

// Engine is a wire.Engine that succeeds by default.
type Engine struct {
	mu      sync.Mutex
	recv    Receiver
	latency time.Duration
	rules   []*Rule
	sent    []*wire.Request
	pending map[*time.Timer]struct{}
	closed  bool
}

// NewEngine creates an engine. Attach must be called before the first Send.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{pending: make(map[*time.Timer]struct{})}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attach sets where confirmations and indications go.
func (e *Engine) Attach(r Receiver) {
	e.mu.Lock()
	e.recv = r
	e.mu.Unlock()
}

// AddRule appends an outcome rule.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, &r)
	e.mu.Unlock()
}

// Send implements wire.Engine.
func (e *Engine) Send(req *wire.Request) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return oops.Wrapf(wlan.ErrTransportFailure, "simulated engine closed")
	}
	recv := e.recv
	if recv == nil {
		e.mu.Unlock()
		return oops.Wrapf(wlan.ErrTransportFailure, "simulated engine has no receiver")
	}
	e.sent = append(e.sent, req)
	status, drop := e.outcome(req)
	e.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":      "sim.Engine.Send",
		"session": req.Session.String(),
		"op":      req.Op.String(),
		"target":  target(req).String(),
		"status":  status.String(),
		"drop":    drop,
	}).Debug("request")

	if drop {
		return nil
	}
	c := req.Confirm(status)
	if status != wire.StatusSuccess {
		c.ReasonCode = reasonUnspecified
	}
	if req.Op == wire.OpJoin && status == wire.StatusSuccess {
		c.BSS = req.BSS
	}
	e.deliver(func() { recv.Confirm(c) })
	return nil
}

// outcome applies the first matching rule. Callers hold e.mu.
func (e *Engine) outcome(req *wire.Request) (wire.Status, bool) {
	for _, r := range e.rules {
		if r.matches(req) {
			r.used++
			return r.Status, r.Drop
		}
	}
	return wire.StatusSuccess, false
}

func (e *Engine) deliver(f func()) {
	if e.latency <= 0 {
		f()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(e.latency, func() {
		e.mu.Lock()
		_, live := e.pending[t]
		delete(e.pending, t)
		e.mu.Unlock()
		if live {
			f()
		}
	})
	e.pending[t] = struct{}{}
}

// Indicate injects an unsolicited event, subject to the same latency as
// confirmations.
func (e *Engine) Indicate(ind *wire.Indication) error {
	e.mu.Lock()
	recv, closed := e.recv, e.closed
	e.mu.Unlock()
	if closed || recv == nil {
		return oops.Wrapf(wlan.ErrWrongState, "simulated engine cannot deliver %s", ind.Kind)
	}
	e.deliver(func() { recv.Indicate(ind) })
	return nil
}

// Requests returns everything sent so far.
func (e *Engine) Requests() []*wire.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*wire.Request, len(e.sent))
	copy(out, e.sent)
	return out
}

// Ops returns the ops of everything sent so far.
func (e *Engine) Ops() []wire.Op {
	reqs := e.Requests()
	out := make([]wire.Op, len(reqs))
	for i, r := range reqs {
		out[i] = r.Op
	}
	return out
}

// Close drops undelivered confirmations and fails later sends.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for t := range e.pending {
		t.Stop()
	}
	e.pending = make(map[*time.Timer]struct{})
	return nil
}

var _ wire.Engine = (*Engine)(nil)
