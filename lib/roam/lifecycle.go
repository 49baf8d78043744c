package roam

import (
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func (m *Machine) dispatchAddStation(s *session.Session, cmd *command.Command) error {
	req := wire.NewRequest(wire.OpAddStation, s.ID())
	req.Peer = s.Self()
	if err := m.send(s, cmd, session.StoppedAwaiting(session.StationAddRequested), req); err != nil {
		m.finishAddStation(s, cmd, wlan.ResultOf(err))
	}
	return nil
}

func (m *Machine) onAddStationConfirm(s *session.Session, cmd *command.Command, c *wire.Confirm) {
	res := wlan.ResultOf(c.Err())
	if res == wlan.ResultSuccess {
		s.SetState(session.Idle())
	} else {
		s.SetState(session.Stopped())
	}
	m.finishAddStation(s, cmd, res)
}

func (m *Machine) finishAddStation(s *session.Session, cmd *command.Command, res wlan.Result) {
	m.emit(s.ID(), 0, notify.EventSessionOpened, res, notify.RoamInfo{BSSID: s.Self()})
	if res != wlan.ResultSuccess {
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.finishAddStation",
			"session": s.ID().String(),
			"result":  res.String(),
		}).Warn("station not added")
		closing := m.closing[s.ID()]
		m.freeSession(s.ID())
		if closing {
			// CloseSession already returned; the queued delete finds no session
			m.emit(s.ID(), 0, notify.EventSessionClosed, wlan.ResultSuccess, notify.RoamInfo{BSSID: s.Self()})
		}
	}
	m.completeActive(cmd)
}

// dispatchDeleteStation takes the session off its BSS, if it is on one, and
// then deletes it on the lower layer.
func (m *Machine) dispatchDeleteStation(s *session.Session, cmd *command.Command) error {
	sp := cmd.Station()
	if cur := s.ConnectedBSS(); cur != nil {
		o, op := session.DisassocRequested, wire.OpDisassociate
		if cur.BSSType.Hosted() {
			o, op = session.StopBssRequested, wire.OpStopBss
		}
		req := wire.NewRequest(op, s.ID())
		req.Peer = cur.BSSID
		req.ReasonCode = reasonDisassocLeaving
		if err := m.send(s, cmd, session.Joining(o), req); err == nil {
			sp.Disassociating = true
			return nil
		}
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.dispatchDeleteStation",
			"session": s.ID().String(),
		}).Warn("leaving the BSS failed, deleting the station anyway")
	}
	m.sendDeleteStation(s, cmd)
	return nil
}

func (m *Machine) sendDeleteStation(s *session.Session, cmd *command.Command) {
	if s.Connected() {
		m.dropConnection(s)
	}
	req := wire.NewRequest(wire.OpDeleteStation, s.ID())
	req.Peer = s.Self()
	if err := m.send(s, cmd, session.StoppedAwaiting(session.StationDeleteRequested), req); err != nil {
		m.closeSession(s, cmd, wlan.ResultOf(err))
	}
}

func (m *Machine) onDeleteStationConfirm(s *session.Session, cmd *command.Command, c *wire.Confirm) {
	sp := cmd.Station()
	if sp.Disassociating {
		sp.Disassociating = false
		if err := c.Err(); err != nil {
			log.WithError(err).WithField("at", "roam.Machine.onDeleteStationConfirm").Warn("leave before delete failed")
		}
		m.dropConnection(s)
		m.sendDeleteStation(s, cmd)
		return
	}
	m.closeSession(s, cmd, wlan.ResultOf(c.Err()))
}

// closeSession reports the session gone and frees its slot whatever the
// lower layer answered.
func (m *Machine) closeSession(s *session.Session, cmd *command.Command, res wlan.Result) {
	id := s.ID()
	m.emit(id, 0, notify.EventSessionClosed, res, notify.RoamInfo{BSSID: s.Self()})
	m.freeSession(id)
	m.completeActive(cmd)
}

func (m *Machine) dispatchScan(s *session.Session, cmd *command.Command) error {
	if m.requester == nil {
		return oops.Wrapf(wlan.ErrWrongState, "scan collaborator cannot run scans")
	}
	sp := cmd.Scan()
	err := m.requester.Scan(s.ID(), sp.Filter, func(err error) {
		m.post(func() { m.onScanDone(cmd, err) })
	})
	if err != nil {
		return oops.Wrapf(err, "scan on session %s", s.ID())
	}
	return nil
}

func (m *Machine) onScanDone(cmd *command.Command, err error) {
	if m.current != cmd {
		log.WithField("at", "roam.Machine.onScanDone").Debug("scan result for an aborted command dropped")
		return
	}
	cmd.Scan().Finish(err)
	m.emit(cmd.Session(), 0, notify.EventScanComplete, wlan.ResultOf(err), notify.RoamInfo{})
	m.completeActive(cmd)
}
