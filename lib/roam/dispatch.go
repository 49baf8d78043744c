package roam

import (
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Dispatch implements command.Dispatcher. It refuses a command only before
// any side effect; everything after that ends in a completion.
func (m *Machine) Dispatch(cmd *command.Command) error {
	s, err := m.store.Get(cmd.Session())
	if err != nil {
		return err
	}
	m.current = cmd

	switch cmd.Kind() {
	case command.KindRoam:
		err = m.dispatchRoam(s, cmd)
	case command.KindSetKey, command.KindRemoveKey:
		err = m.dispatchKey(s, cmd)
	case command.KindWmStatusChange:
		err = m.dispatchStatus(s, cmd)
	case command.KindAddStation:
		err = m.dispatchAddStation(s, cmd)
	case command.KindDeleteStation:
		err = m.dispatchDeleteStation(s, cmd)
	case command.KindScan:
		err = m.dispatchScan(s, cmd)
	default:
		err = oops.Wrapf(wlan.ErrInvalidParameter, "unknown command kind %s", cmd.Kind())
	}
	if err != nil && m.current == cmd {
		m.current = nil
	}
	return err
}

// Abandon implements command.Dispatcher. Every command that leaves the queue
// without completing still produces its terminal notification.
func (m *Machine) Abandon(cmd *command.Command, err error) {
	active := cmd == m.current
	if active {
		m.current = nil
		if m.flight != nil && m.flight.cmd == cmd {
			m.flight = nil
		}
	}
	res := wlan.ResultOf(err)
	s, _ := m.store.Get(cmd.Session())

	log.WithFields(logger.Fields{
		"at":      "roam.Machine.Abandon",
		"command": cmd.String(),
		"active":  active,
		"result":  res.String(),
	}).Debug("command_abandoned")

	switch cmd.Kind() {
	case command.KindRoam:
		m.finishRoam(s, cmd, res, active)
	case command.KindSetKey, command.KindRemoveKey:
		m.emitKeyComplete(cmd, res)
	case command.KindAddStation:
		m.emit(cmd.Session(), 0, notify.EventSessionOpened, res, notify.RoamInfo{})
		if s != nil {
			m.freeSession(cmd.Session())
		}
	case command.KindDeleteStation:
		if s != nil {
			m.emit(cmd.Session(), 0, notify.EventSessionClosed, res, notify.RoamInfo{})
			m.freeSession(cmd.Session())
		}
		delete(m.closing, cmd.Session())
	case command.KindScan:
		m.emit(cmd.Session(), 0, notify.EventScanComplete, res, notify.RoamInfo{})
	}
}

// send moves s into st and hands req to the engine. If the engine refuses,
// s is put back and a transport failure returned.
func (m *Machine) send(s *session.Session, cmd *command.Command, st session.State, req *wire.Request) error {
	prev := s.State()
	s.Await(st, req)
	if err := m.sendPlain(cmd, req); err != nil {
		s.SetState(prev)
		return err
	}
	return nil
}

// sendPlain hands req to the engine without touching the session state.
func (m *Machine) sendPlain(cmd *command.Command, req *wire.Request) error {
	m.flight = &inflight{cmd: cmd, session: req.Session, op: req.Op, token: req.Token}
	if err := m.engine.Send(req); err != nil {
		m.flight = nil
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.send",
			"request": req.String(),
			"reason":  err.Error(),
		}).Error("wire request not sent")
		return oops.Wrapf(wlan.ErrTransportFailure, "send %s: %v", req.Op, err)
	}
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.send",
		"request": req.String(),
		"command": cmd.String(),
	}).Debug("request_sent")
	return nil
}

func (m *Machine) handleConfirm(c *wire.Confirm) {
	f := m.flight
	if f == nil || f.session != c.Session || f.op != c.Op || f.token != c.Token || f.cmd != m.current {
		m.stray(c, "no request outstanding with this token")
		return
	}
	s, err := m.store.Get(c.Session)
	if err != nil {
		m.stray(c, "session is gone")
		return
	}
	cmd := f.cmd
	if cmd.Kind() == command.KindRoam && !s.Matches(c) {
		// keep the flight: the real answer may still arrive
		m.stray(c, "session is not waiting for this confirmation")
		return
	}
	m.flight = nil

	log.WithFields(logger.Fields{
		"at":      "roam.Machine.handleConfirm",
		"session": s.ID().String(),
		"op":      c.Op.String(),
		"status":  c.Status.String(),
		"state":   s.State().String(),
		"command": cmd.String(),
	}).Debug("confirmation")

	switch cmd.Kind() {
	case command.KindRoam:
		m.stopRequestTimers(s)
		m.onRoamConfirm(s, cmd, c)
	case command.KindSetKey, command.KindRemoveKey:
		m.onKeyConfirm(s, cmd, c)
	case command.KindAddStation:
		m.onAddStationConfirm(s, cmd, c)
	case command.KindDeleteStation:
		m.onDeleteStationConfirm(s, cmd, c)
	default:
		m.stray(c, "command does not expect confirmations")
	}
}

func (m *Machine) stray(c *wire.Confirm, reason string) {
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.handleConfirm",
		"session": c.Session.String(),
		"op":      c.Op.String(),
		"token":   c.Token.String(),
		"status":  c.Status.String(),
		"reason":  reason,
	}).Warn("stray confirmation ignored")
}

// restingState is where a session settles when a request ends without
// changing its association.
func (m *Machine) restingState(s *session.Session) session.State {
	switch {
	case !s.Connected():
		return session.Idle()
	case m.timerSet(s.ID()).Running(timer.WaitForKey):
		return session.WaitingForKey()
	default:
		return session.Joined()
	}
}

// complete ends the active roam command with res.
func (m *Machine) complete(s *session.Session, cmd *command.Command, res wlan.Result) {
	m.finishRoam(s, cmd, res, true)
	if cmd.JoinType() {
		if s.CancelRequested() && s.Connected() {
			// the cancelled attempt could not take the session down
			if _, err := m.enqueueRoam(s, &command.RoamPayload{Reason: wlan.ReasonDisconnect}, true); err != nil {
				log.WithError(err).WithField("at", "roam.Machine.complete").Error("could not queue disconnect")
			}
		}
		s.ClearCancel()
	}
	m.completeActive(cmd)
}

// fail ends the active roam command with the result err maps to.
func (m *Machine) fail(s *session.Session, cmd *command.Command, err error) {
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.fail",
		"session": s.ID().String(),
		"command": cmd.String(),
		"reason":  err.Error(),
	}).Warn("roam attempt failed")
	m.complete(s, cmd, wlan.ResultOf(err))
}

func (m *Machine) completeActive(cmd *command.Command) {
	if m.current == cmd {
		m.current = nil
	}
	if m.flight != nil && m.flight.cmd == cmd {
		m.flight = nil
	}
	if err := m.queue.CompleteActive(cmd); err != nil {
		log.WithError(err).WithField("at", "roam.Machine.completeActive").Error("completion refused")
	}
}

// finishRoam emits the terminal notifications of a roam command and unwinds
// the session bookkeeping it owns. s is nil when the session is gone.
func (m *Machine) finishRoam(s *session.Session, cmd *command.Command, res wlan.Result, active bool) {
	p := cmd.Roam()
	target := p.Target
	if s != nil {
		if active {
			if m.flight != nil && m.flight.cmd == cmd {
				m.flight = nil
			}
			if s.State().Awaiting() {
				s.SetState(m.restingState(s))
			}
			m.stopRequestTimers(s)
			m.timerSet(s.ID()).Stop(timer.Rescan)
		}
		m.endAssociation(s, p, res, target)
		if roaming, _ := s.Roaming(); roaming && s.RoamID() == p.RoamID {
			s.StopRoaming()
			if p.Reason == wlan.ReasonLostLink {
				set := m.timerSet(s.ID())
				set.Stop(timer.RoamingWindow)
				set.Stop(timer.Rescan)
			}
		}
		if p.Reason == wlan.ReasonLostLink && !res.Succeeded() && res != wlan.ResultCancelled {
			m.emit(s.ID(), p.RoamID, notify.EventDisconnectForced, res, bssInfo(p.Reason, target))
		}
		if target == nil {
			target = s.ConnectedBSS()
		}
	}
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.finishRoam",
		"session": cmd.Session().String(),
		"roam_id": p.RoamID,
		"reason":  p.Reason.String(),
		"result":  res.String(),
	}).Debug("roam_finished")
	m.emit(cmd.Session(), p.RoamID, notify.EventRoamingCompletion, res, bssInfo(p.Reason, target))
}
