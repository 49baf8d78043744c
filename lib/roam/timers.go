package roam

import (
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// timerSet returns the timers of session id, creating them on first use.
func (m *Machine) timerSet(id wlan.SessionID) *timer.Set {
	set, ok := m.timers[id]
	if !ok {
		set = timer.NewSet(id, m.clock, func(f func()) { m.post(f) }, m.onTimer)
		m.timers[id] = set
	}
	return set
}

// freeSession stops the timers of id and gives its slot back.
func (m *Machine) freeSession(id wlan.SessionID) {
	if set, ok := m.timers[id]; ok {
		set.StopAll()
		delete(m.timers, id)
	}
	delete(m.closing, id)
	m.store.Close(id)
}

// startRequestTimer bounds the wait for a join or start-BSS confirmation.
func (m *Machine) startRequestTimer(s *session.Session, bss *scan.BSSDescription) {
	set := m.timerSet(s.ID())
	if bss != nil && bss.BSSType == wlan.BSSIndependent {
		set.Start(timer.IBSSJoin, m.cfg.Timers.IBSSJoin)
		return
	}
	set.Start(timer.JoinRetry, m.cfg.Timers.JoinRetry)
}

func (m *Machine) stopRequestTimers(s *session.Session) {
	set := m.timerSet(s.ID())
	set.Stop(timer.IBSSJoin)
	set.Stop(timer.JoinRetry)
}

// onTimer runs on the worker when timer n of session id fires.
func (m *Machine) onTimer(id wlan.SessionID, n timer.Name) {
	s, err := m.store.Get(id)
	if err != nil {
		return
	}
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.onTimer",
		"session": id.String(),
		"timer":   n.String(),
		"state":   s.State().String(),
	}).Debug("timer_fired")

	switch n {
	case timer.RoamingWindow:
		m.onRoamingWindow(s)
	case timer.WaitForKey:
		m.onWaitForKey(s)
	case timer.IBSSJoin, timer.JoinRetry:
		m.onRequestTimeout(s, n)
	case timer.Rescan:
		m.onRescan(s)
	}
}

// onRoamingWindow ends a lost-link recovery that ran out of time. A request
// on the wire is allowed to confirm first.
func (m *Machine) onRoamingWindow(s *session.Session) {
	if cmd := m.recoveryCommand(s); cmd != nil && cmd.Roam().RoamID == s.RoamID() {
		if s.State().Awaiting() {
			s.ExpireRoamWindow()
			return
		}
		m.timerSet(s.ID()).Stop(timer.Rescan)
		m.fail(s, cmd, oops.Wrapf(wlan.ErrTimeout, "roaming window closed"))
		return
	}
	for _, cmd := range m.queue.Pending() {
		if cmd.Session() != s.ID() {
			continue
		}
		if p := cmd.Roam(); p != nil && p.Reason == wlan.ReasonLostLink && p.RoamID == s.RoamID() {
			m.queue.Abort(cmd, oops.Wrapf(wlan.ErrTimeout, "roaming window closed before the recovery ran"))
			return
		}
	}
	s.StopRoaming()
}

func (m *Machine) onWaitForKey(s *session.Session) {
	if !s.State().WaitForKey() {
		return
	}
	s.SetState(session.Joined())
	s.WithholdLink()
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.onWaitForKey",
		"session": s.ID().String(),
	}).Warn("no key arrived in time")
	m.emit(s.ID(), s.RoamID(), notify.EventKeyWaitExpired, wlan.ResultTimeout, bssInfo(wlan.ReasonConnect, s.ConnectedBSS()))
	m.queue.Kick()
}

// onRequestTimeout gives up on a join, configure or start-BSS request. A
// confirmation arriving later is stray.
func (m *Machine) onRequestTimeout(s *session.Session, n timer.Name) {
	cmd := m.current
	if cmd == nil || cmd.Session() != s.ID() || cmd.Kind() != command.KindRoam {
		return
	}
	o := s.State().Outstanding()
	if o == session.OutstandingNone || o.Teardown() {
		return
	}
	if m.flight != nil && m.flight.cmd == cmd {
		m.flight = nil
	}
	s.SetState(m.restingState(s))
	p := cmd.Roam()
	err := oops.Wrapf(wlan.ErrTimeout, "%s timed out waiting for %s", n, o)
	if o == session.StartBssRequested {
		m.fail(s, cmd, err)
		return
	}
	m.joinFailed(s, cmd, p, err)
}
