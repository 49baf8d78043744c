package command

import (
	"slices"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Dispatcher executes commands handed out by the queue.
type Dispatcher interface {
	// Dispatch starts cmd. A nil return means cmd is now active and the
	// dispatcher will eventually call CompleteActive (possibly before Dispatch
	// returns). An error means cmd was refused; the queue then calls Abandon
	// and releases it.
	Dispatch(cmd *Command) error
	// Abandon is called for every command that leaves the queue without
	// completing: refused by Dispatch, aborted, or dropped on power failure.
	Abandon(cmd *Command, err error)
}

// PowerGate decides whether a roam command needs the radio at full power.
type PowerGate interface {
	IsFullPowerNeeded(cmd *Command) (needed bool, reason string)
	// RequestFullPower starts the transition. pending=false means the radio
	// is at full power when the call returns and done will not be called.
	RequestFullPower(done func(error)) (pending bool, err error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithPowerGate installs the power collaborator.
func WithPowerGate(g PowerGate) Option { return func(q *Queue) { q.power = g } }

// WithExecutor sets how asynchronous callbacks are brought back onto the
// goroutine that owns the queue. The default runs them inline.
func WithExecutor(post func(func())) Option { return func(q *Queue) { q.post = post } }

// WithReadyCheck installs a gate consulted for the command at the head of the
// pending list. A command that is not ready blocks the queue until Kick is
// called again.
func WithReadyCheck(ready func(*Command) bool) Option { return func(q *Queue) { q.ready = ready } }

// WithReleaseHook installs a function called for every command just before it
// is returned to the pool.
func WithReleaseHook(hook func(*Command)) Option { return func(q *Queue) { q.onRelease = hook } }

// Queue holds the single active command and the ordered pending list.
type Queue struct {
	pool       *Pool
	dispatcher Dispatcher
	power      PowerGate
	post       func(func())
	ready      func(*Command) bool
	onRelease  func(*Command)

	active  *Command
	pending []*Command
	// parked is the roam command waiting for the radio to reach full power.
	parked *Command

	kicking bool
	rekick  bool
	closed  bool
}

// NewQueue creates a queue that draws from pool and dispatches to d.
func NewQueue(pool *Pool, d Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		pool:       pool,
		dispatcher: d,
		post:       func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Pool returns the pool the queue releases into.
func (q *Queue) Pool() *Pool { return q.pool }

// Active returns the command currently dispatched, or nil.
func (q *Queue) Active() *Command { return q.active }

// Pending returns a copy of the pending list in dispatch order.
func (q *Queue) Pending() []*Command { return slices.Clone(q.pending) }

// Len returns the number of pending commands.
func (q *Queue) Len() int { return len(q.pending) }

// PowerWait reports whether a roam command is parked on a power transition.
func (q *Queue) PowerWait() bool { return q.parked != nil }

// Submit enqueues cmd using its own priority flag.
func (q *Queue) Submit(cmd *Command) {
	q.Enqueue(cmd, cmd.priority)
}

// Enqueue inserts cmd at the head (priority) or tail of the pending list and
// dispatches immediately if nothing is active.
func (q *Queue) Enqueue(cmd *Command, priority bool) {
	if q.closed {
		q.abandon(cmd, oops.Wrapf(wlan.ErrAborted, "queue drained"))
		return
	}
	cmd.priority = priority
	if priority {
		q.pending = slices.Insert(q.pending, 0, cmd)
	} else {
		q.pending = append(q.pending, cmd)
	}
	log.WithFields(logger.Fields{
		"at":       "command.Queue.Enqueue",
		"command":  cmd.String(),
		"priority": priority,
		"pending":  len(q.pending),
	}).Debug("command_enqueued")
	q.Kick()
}

// CompleteActive releases the active command and dispatches the next one.
func (q *Queue) CompleteActive(cmd *Command) error {
	if cmd == nil || cmd != q.active {
		log.WithFields(logger.Fields{
			"at":      "command.Queue.CompleteActive",
			"command": describe(cmd),
			"active":  describe(q.active),
		}).Warn("completion for a command that is not active")
		return oops.Wrapf(wlan.ErrWrongState, "command %s is not active", describe(cmd))
	}
	q.active = nil
	log.WithFields(logger.Fields{
		"at":      "command.Queue.CompleteActive",
		"command": cmd.String(),
		"age":     cmd.Age().String(),
	}).Debug("command_completed")
	q.release(cmd)
	q.Kick()
	return nil
}

// Abort removes cmd from the queue, active or pending, and releases it. A
// Scan command's requester is told synchronously before the release.
func (q *Queue) Abort(cmd *Command, reason error) {
	if reason == nil {
		reason = wlan.ErrAborted
	}
	wasActive := false
	switch {
	case cmd == q.active:
		q.active = nil
		wasActive = true
	default:
		i := slices.Index(q.pending, cmd)
		if i < 0 {
			log.WithFields(logger.Fields{
				"at":      "command.Queue.Abort",
				"command": describe(cmd),
			}).Warn("abort of a command not in the queue")
			return
		}
		q.pending = slices.Delete(q.pending, i, i+1)
		if q.parked == cmd {
			q.parked = nil
		}
	}
	log.WithFields(logger.Fields{
		"at":      "command.Queue.Abort",
		"command": cmd.String(),
		"active":  wasActive,
		"reason":  reason.Error(),
	}).Debug("command_aborted")
	if s := cmd.Scan(); s != nil {
		s.Finish(oops.Wrapf(wlan.ErrAborted, "%s", reason.Error()))
	}
	q.abandon(cmd, reason)
	q.Kick()
}

// AbortSession aborts every pending command of session that match accepts.
// A nil match aborts all of them. The active command is left alone. Returns
// the number of commands aborted.
func (q *Queue) AbortSession(session wlan.SessionID, reason error, match func(*Command) bool) int {
	var victims []*Command
	for _, cmd := range q.pending {
		if cmd.session == session && (match == nil || match(cmd)) {
			victims = append(victims, cmd)
		}
	}
	for _, cmd := range victims {
		q.Abort(cmd, reason)
	}
	return len(victims)
}

// Drain aborts every pending command and then the active one. Nothing is
// dispatched afterwards; Enqueue abandons new commands right away.
func (q *Queue) Drain(reason error) {
	q.closed = true
	for len(q.pending) > 0 {
		q.Abort(q.pending[0], reason)
	}
	if q.active != nil {
		q.Abort(q.active, reason)
	}
}

// Kick dispatches pending commands until one stays active or nothing can be
// dispatched. It is safe to call from within Dispatch.
func (q *Queue) Kick() {
	if q.closed {
		return
	}
	if q.kicking {
		q.rekick = true
		return
	}
	q.kicking = true
	defer func() { q.kicking = false }()

	for {
		q.rekick = false
		q.dispatchNext()
		if !q.rekick {
			return
		}
	}
}

// dispatchNext dispatches until a command stays active or the head is blocked.
func (q *Queue) dispatchNext() {
	for q.active == nil && len(q.pending) > 0 {
		cmd := q.pending[0]

		if q.parked != nil {
			// Only priority non-roam work may overtake a parked roam command.
			if cmd == q.parked || cmd.Kind() == KindRoam {
				return
			}
		} else if cmd.Kind() == KindRoam && !cmd.powerReady && q.power != nil {
			if q.holdForPower(cmd) {
				continue
			}
		}

		if q.ready != nil && !q.ready(cmd) {
			log.WithFields(logger.Fields{
				"at":      "command.Queue.dispatchNext",
				"command": cmd.String(),
			}).Debug("head of queue not ready")
			return
		}

		q.pending = q.pending[1:]
		q.active = cmd
		log.WithFields(logger.Fields{
			"at":      "command.Queue.dispatchNext",
			"command": cmd.String(),
			"pending": len(q.pending),
		}).Debug("command_dispatched")
		if err := q.dispatcher.Dispatch(cmd); err != nil {
			if q.active == cmd {
				q.active = nil
			}
			log.WithFields(logger.Fields{
				"at":      "command.Queue.dispatchNext",
				"command": cmd.String(),
				"reason":  err.Error(),
			}).Warn("dispatch refused")
			q.abandon(cmd, err)
		}
	}
}

// holdForPower consults the power gate for a roam command at the head.
// It returns true when the head changed and the loop should look again.
func (q *Queue) holdForPower(cmd *Command) bool {
	needed, reason := q.power.IsFullPowerNeeded(cmd)
	if !needed {
		cmd.powerReady = true
		return false
	}
	q.parked = cmd
	pending, err := q.power.RequestFullPower(func(err error) {
		q.post(func() { q.powerDone(cmd, err) })
	})
	if err != nil {
		q.parked = nil
		q.pending = slices.DeleteFunc(q.pending, func(c *Command) bool { return c == cmd })
		log.WithFields(logger.Fields{
			"at":      "command.Queue.holdForPower",
			"command": cmd.String(),
			"reason":  err.Error(),
		}).Error("full power request failed")
		q.abandon(cmd, err)
		return true
	}
	if !pending {
		q.parked = nil
		cmd.powerReady = true
		return false
	}
	log.WithFields(logger.Fields{
		"at":      "command.Queue.holdForPower",
		"command": cmd.String(),
		"reason":  reason,
	}).Debug("command parked until full power")
	return true
}

func (q *Queue) powerDone(cmd *Command, err error) {
	if q.parked != cmd {
		// aborted while waiting
		q.Kick()
		return
	}
	q.parked = nil
	if err != nil {
		q.pending = slices.DeleteFunc(q.pending, func(c *Command) bool { return c == cmd })
		log.WithFields(logger.Fields{
			"at":      "command.Queue.powerDone",
			"command": cmd.String(),
			"reason":  err.Error(),
		}).Error("full power transition failed")
		q.abandon(cmd, err)
	} else {
		cmd.powerReady = true
	}
	q.Kick()
}

func (q *Queue) abandon(cmd *Command, err error) {
	if s := cmd.Scan(); s != nil {
		s.Finish(err)
	}
	q.dispatcher.Abandon(cmd, err)
	q.release(cmd)
}

func (q *Queue) release(cmd *Command) {
	if q.onRelease != nil {
		q.onRelease(cmd)
	}
	q.pool.Release(cmd)
}

func describe(cmd *Command) string {
	if cmd == nil {
		return "<nil>"
	}
	return cmd.String()
}
