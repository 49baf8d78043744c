package roam

import (
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/candidate"
	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/phy"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// 802.11 reason codes used when the caller gives none.
const (
	reasonDeauthLeaving   uint16 = 3
	reasonDisassocLeaving uint16 = 8
)

func (m *Machine) dispatchRoam(s *session.Session, cmd *command.Command) error {
	p := cmd.Roam()
	if s.State().Kind() == session.KindStopped {
		return oops.Wrapf(wlan.ErrWrongState, "session %s is not up", s.ID())
	}
	if !p.Reason.JoinType() {
		return m.stepTeardown(s, cmd, p)
	}
	s.StartRoaming(p.Reason, p.RoamID)
	m.stepJoin(s, cmd, p)
	return nil
}

// selfReassociation reports whether the command targets the BSS the session
// is already on.
func selfReassociation(p *command.RoamPayload) bool {
	return p.Reason == wlan.ReasonReassoc || p.Reason == wlan.ReasonCapabilityChange
}

// stepJoin picks the first candidate of a join-type command and acts on it.
func (m *Machine) stepJoin(s *session.Session, cmd *command.Command, p *command.RoamPayload) {
	if s.CancelRequested() {
		m.cancelRoam(s, cmd, p)
		return
	}
	if p.Candidates == nil {
		m.startBss(s, cmd, p)
		return
	}
	if p.Walker == nil {
		opts := []candidate.Option{candidate.WithConcurrency(m.store)}
		if m.filter != nil {
			opts = append(opts, candidate.WithFilter(m.filter))
		}
		if selfReassociation(p) {
			opts = append(opts, candidate.WithStartAt(0))
		}
		p.Walker = candidate.NewWalker(s.ID(), p.Candidates, m.scanner, opts...)
	}

	var bss *scan.BSSDescription
	var err error
	if selfReassociation(p) {
		bss, err = p.Walker.Retry()
	} else {
		bss, err = p.Walker.Next()
	}
	if err != nil {
		m.candidatesExhausted(s, cmd, p, err)
		return
	}
	p.Target = bss
	m.joinTarget(s, cmd, p, bss)
}

// joinTarget decides what to do about bss given the current association.
func (m *Machine) joinTarget(s *session.Session, cmd *command.Command, p *command.RoamPayload, bss *scan.BSSDescription) {
	cur := s.ConnectedBSS()
	switch {
	case cur != nil && cur.BSSID == bss.BSSID && cur.SSID == bss.SSID:
		switch {
		case cur.BSSType == wlan.BSSIndependent:
			m.complete(s, cmd, wlan.ResultSilentStop)
		case p.Reason != wlan.ReasonCapabilityChange && p.Profile.SameSecurity(s.ConnectedProfile()):
			m.complete(s, cmd, wlan.ResultReassocToSelfNoChange)
		default:
			m.sendConfigure(s, cmd, p, bss)
		}
	case cur != nil:
		m.leave(s, cmd, p, command.StepJoin, session.DisassocHandoff)
	default:
		m.sendJoin(s, cmd, p, bss, wire.OpJoin)
	}
}

func (m *Machine) sendConfigure(s *session.Session, cmd *command.Command, p *command.RoamPayload, bss *scan.BSSDescription) {
	m.beginAssociation(s, p, bss)
	req := wire.NewRequest(wire.OpConfigure, s.ID())
	req.BSS = bss.Clone()
	req.Profile = p.Profile.Clone()
	if err := m.send(s, cmd, session.Joining(session.ConfigInProgress), req); err != nil {
		m.fail(s, cmd, err)
		return
	}
	m.startRequestTimer(s, bss)
}

func (m *Machine) sendJoin(s *session.Session, cmd *command.Command, p *command.RoamPayload, bss *scan.BSSDescription, op wire.Op) {
	m.beginAssociation(s, p, bss)
	sel, err := phy.Select(bss.Band, p.Profile.PhyMode, bss.Channel)
	if err != nil {
		m.attemptFailed(s, cmd, p, err)
		return
	}
	req := wire.NewRequest(op, s.ID())
	req.BSS = bss.Clone()
	req.Profile = p.Profile.Clone()
	req.Phy = sel

	o := session.JoinRequested
	switch {
	case op == wire.OpReassociate:
		o = session.ReassocRequested
	case p.Profile.Auth == security.AuthShared:
		o = session.AuthRequested
	}
	if err := m.send(s, cmd, session.Joining(o), req); err != nil {
		m.fail(s, cmd, err)
		return
	}
	m.startRequestTimer(s, bss)
}

// startBss creates the BSS described by the command profile.
func (m *Machine) startBss(s *session.Session, cmd *command.Command, p *command.RoamPayload) {
	prof := p.Profile
	if cur := s.ConnectedBSS(); cur != nil {
		if cur.BSSType == prof.BSSType && cur.SSID == prof.SSID && prof.SameSecurity(s.ConnectedProfile()) {
			m.complete(s, cmd, wlan.ResultSilentStop)
			return
		}
		m.leave(s, cmd, p, command.StepStartBss, session.DisassocHandoff)
		return
	}

	sel, err := phy.Select(prof.Band, prof.PhyMode, prof.Channel)
	if err != nil {
		m.fail(s, cmd, oops.Wrapf(err, "start %s %q", prof.BSSType, prof.SSID))
		return
	}
	bss := &scan.BSSDescription{
		BSSID:    s.Self(),
		SSID:     prof.SSID,
		BSSType:  prof.BSSType,
		Channel:  sel.Channel,
		Band:     sel.Band,
		Privacy:  prof.Auth != security.AuthOpen || prof.Pairwise != security.CipherNone,
		Auth:     prof.Auth,
		Pairwise: prof.Pairwise,
		Group:    prof.Group,
		LastSeen: time.Now(),
	}
	p.Target = bss
	m.beginAssociation(s, p, bss)

	req := wire.NewRequest(wire.OpStartBss, s.ID())
	req.BSS = bss.Clone()
	req.Profile = prof.Clone()
	req.Phy = sel
	if err := m.send(s, cmd, session.Joining(session.StartBssRequested), req); err != nil {
		m.fail(s, cmd, err)
		return
	}
	if prof.BSSType == wlan.BSSIndependent {
		m.timerSet(s.ID()).Start(timer.IBSSJoin, m.cfg.Timers.IBSSJoin)
	}
}

// leave takes the session off its current BSS as a sub-step of cmd; then
// says how the command continues once that is confirmed.
func (m *Machine) leave(s *session.Session, cmd *command.Command, p *command.RoamPayload, then command.Step, o session.Outstanding) {
	cur := s.ConnectedBSS()
	p.Then = then
	if cur.BSSType.Hosted() && !peerOnly(p, cur) {
		o = session.StopBssRequested
	}
	req := wire.NewRequest(o.Op(), s.ID())
	req.Peer = cur.BSSID
	if !p.Peer.IsZero() {
		req.Peer = p.Peer
	}
	req.ReasonCode = p.ReasonCode
	if req.ReasonCode == 0 {
		req.ReasonCode = reasonDisassocLeaving
		if o == session.DeauthRequested {
			req.ReasonCode = reasonDeauthLeaving
		}
	}
	if err := m.send(s, cmd, session.Joining(o), req); err != nil {
		m.fail(s, cmd, err)
	}
}

// peerOnly reports whether a forced teardown only removes one station from
// a BSS we host.
func peerOnly(p *command.RoamPayload, cur *scan.BSSDescription) bool {
	return p.Then == command.StepNone && cur.BSSType == wlan.BSSAccessPoint &&
		!p.Peer.IsZero() && p.Peer != cur.BSSID
}

func (m *Machine) stepTeardown(s *session.Session, cmd *command.Command, p *command.RoamPayload) error {
	cur := s.ConnectedBSS()
	if cur == nil {
		if p.Reason == wlan.ReasonDisconnect {
			m.complete(s, cmd, wlan.ResultSuccess)
			return nil
		}
		return oops.Wrapf(wlan.ErrWrongState, "%s needs an associated session", p.Reason)
	}
	switch p.Reason {
	case wlan.ReasonStopBss:
		if !cur.BSSType.Hosted() {
			return oops.Wrapf(wlan.ErrWrongState, "session %s hosts no BSS", s.ID())
		}
		m.leave(s, cmd, p, command.StepNone, session.StopBssRequested)
	case wlan.ReasonDeauthHandoff:
		m.leave(s, cmd, p, command.StepNone, session.DeauthRequested)
	case wlan.ReasonForcedDisassoc:
		m.leave(s, cmd, p, command.StepNone, session.DisassocForced)
	default:
		m.leave(s, cmd, p, command.StepNone, session.DisassocRequested)
	}
	return nil
}

func (m *Machine) onRoamConfirm(s *session.Session, cmd *command.Command, c *wire.Confirm) {
	p := cmd.Roam()
	o := s.State().Outstanding()
	switch {
	case o.Teardown():
		m.onLeaveConfirm(s, cmd, p, c)
	case o == session.StartBssRequested:
		m.onStartBssConfirm(s, cmd, p, c)
	case o == session.ConfigInProgress:
		m.onConfigConfirm(s, cmd, p, c)
	default:
		m.onJoinConfirm(s, cmd, p, c)
	}
}

func (m *Machine) onConfigConfirm(s *session.Session, cmd *command.Command, p *command.RoamPayload, c *wire.Confirm) {
	s.SetState(m.restingState(s))
	if err := c.Err(); err != nil {
		m.joinFailed(s, cmd, p, err)
		return
	}
	if s.CancelRequested() {
		m.cancelRoam(s, cmd, p)
		return
	}
	m.sendJoin(s, cmd, p, p.Target, wire.OpReassociate)
}

func (m *Machine) onJoinConfirm(s *session.Session, cmd *command.Command, p *command.RoamPayload, c *wire.Confirm) {
	if err := c.Err(); err != nil {
		s.SetState(m.restingState(s))
		m.joinFailed(s, cmd, p, err)
		return
	}
	bss := p.Target
	if c.BSS != nil {
		bss = c.BSS
		p.Target = c.BSS.Clone()
	}
	m.timerSet(s.ID()).Stop(timer.WaitForKey)
	s.SetConnected(p.Profile, bss)
	s.SetState(session.Joined())
	if s.CancelRequested() {
		p.Outcome = oops.Wrapf(wlan.ErrCancelled, "disconnect requested during %s", c.Op)
		m.leave(s, cmd, p, command.StepFinish, session.DisassocRequested)
		return
	}
	m.endAssociation(s, p, wlan.ResultSuccess, bss)
	m.keysOrLinkUp(s)
	m.complete(s, cmd, wlan.ResultSuccess)
}

func (m *Machine) onStartBssConfirm(s *session.Session, cmd *command.Command, p *command.RoamPayload, c *wire.Confirm) {
	if err := c.Err(); err != nil {
		s.SetState(m.restingState(s))
		if s.CancelRequested() {
			m.cancelRoam(s, cmd, p)
			return
		}
		m.fail(s, cmd, err)
		return
	}
	bss := p.Target
	if c.BSS != nil {
		bss = c.BSS
		p.Target = c.BSS.Clone()
	}
	s.SetConnected(p.Profile, bss)
	s.SetState(session.Joined())
	if s.CancelRequested() {
		p.Outcome = oops.Wrapf(wlan.ErrCancelled, "disconnect requested during start_bss")
		m.leave(s, cmd, p, command.StepFinish, session.StopBssRequested)
		return
	}
	m.endAssociation(s, p, wlan.ResultSuccess, bss)
	m.keysOrLinkUp(s)
	m.complete(s, cmd, wlan.ResultSuccess)
}

// keysOrLinkUp holds the link down until keys are installed when the
// connected profile needs any, and reports it up otherwise. Static keys are
// queued ahead of everything else, first key first.
func (m *Machine) keysOrLinkUp(s *session.Session) {
	prof := s.ConnectedProfile()
	if !prof.DynamicKeys() && len(prof.StaticKeys) == 0 {
		m.emitLinkUp(s)
		return
	}
	s.SetState(session.WaitingForKey())
	m.timerSet(s.ID()).Start(timer.WaitForKey, m.cfg.Timers.WaitForKey)
	for i := len(prof.StaticKeys) - 1; i >= 0; i-- {
		if err := m.enqueueKey(s, command.NewSetKey(&prof.StaticKeys[i]), true); err != nil {
			log.WithFields(logger.Fields{
				"at":      "roam.Machine.keysOrLinkUp",
				"session": s.ID().String(),
				"key_id":  prof.StaticKeys[i].KeyID,
				"reason":  err.Error(),
			}).Error("could not queue static key")
		}
	}
}

// joinFailed handles a join, reassociation or configuration that did not
// succeed.
func (m *Machine) joinFailed(s *session.Session, cmd *command.Command, p *command.RoamPayload, err error) {
	switch {
	case s.CancelRequested():
		m.cancelRoam(s, cmd, p)
	case s.RoamWindowExpired():
		m.finishAfterLeave(s, cmd, p, oops.Wrapf(wlan.ErrTimeout, "roaming window closed"), session.DisassocRequested)
	default:
		m.attemptFailed(s, cmd, p, err)
	}
}

// attemptFailed moves on to the next admissible candidate of the same
// command.
func (m *Machine) attemptFailed(s *session.Session, cmd *command.Command, p *command.RoamPayload, err error) {
	p.Outcome = err
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.attemptFailed",
		"session": s.ID().String(),
		"roam_id": p.RoamID,
		"cursor":  p.Walker.Cursor(),
		"reason":  err.Error(),
	}).Debug("candidate_failed")

	if s.CancelRequested() {
		m.cancelRoam(s, cmd, p)
		return
	}
	bss, werr := p.Walker.Next()
	if werr != nil {
		m.candidatesExhausted(s, cmd, p, werr)
		return
	}
	p.Target = bss
	m.joinTarget(s, cmd, p, bss)
}

// candidatesExhausted ends a walk that found nothing more to join. A
// lost-link recovery that never got to try a candidate rescans instead while
// its roaming window is open.
func (m *Machine) candidatesExhausted(s *session.Session, cmd *command.Command, p *command.RoamPayload, werr error) {
	if p.Outcome == nil && p.Reason == wlan.ReasonLostLink && m.canRescan(s, p) {
		m.scheduleRescan(s, p)
		return
	}
	outcome := werr
	if p.Outcome != nil {
		outcome = p.Outcome
	}
	m.finishAfterLeave(s, cmd, p, outcome, session.DisassocNothingToJoin)
}

// finishAfterLeave completes cmd with err, first taking the session off its
// BSS if it is still on one.
func (m *Machine) finishAfterLeave(s *session.Session, cmd *command.Command, p *command.RoamPayload, err error, o session.Outstanding) {
	if s.Connected() {
		p.Outcome = err
		m.leave(s, cmd, p, command.StepFinish, o)
		return
	}
	m.fail(s, cmd, err)
}

// cancelRoam completes a join-type command for a disconnect request.
func (m *Machine) cancelRoam(s *session.Session, cmd *command.Command, p *command.RoamPayload) {
	m.finishAfterLeave(s, cmd, p, oops.Wrapf(wlan.ErrCancelled, "disconnect requested"), session.DisassocRequested)
}

func (m *Machine) onLeaveConfirm(s *session.Session, cmd *command.Command, p *command.RoamPayload, c *wire.Confirm) {
	if err := c.Err(); err != nil {
		s.SetState(m.restingState(s))
		if p.Then == command.StepFinish && p.Outcome != nil {
			m.fail(s, cmd, p.Outcome)
			return
		}
		m.fail(s, cmd, err)
		return
	}

	cur := s.ConnectedBSS()
	if cur != nil && peerOnly(p, cur) {
		s.SetState(m.restingState(s))
		m.emit(s.ID(), p.RoamID, notify.EventDisconnectForced, wlan.ResultSuccess, bssInfo(p.Reason, &scan.BSSDescription{BSSID: p.Peer, SSID: cur.SSID, Channel: cur.Channel}))
		m.complete(s, cmd, wlan.ResultSuccess)
		return
	}

	m.dropConnection(s)
	switch p.Then {
	case command.StepJoin:
		if s.CancelRequested() {
			m.fail(s, cmd, oops.Wrapf(wlan.ErrCancelled, "disconnect requested"))
			return
		}
		m.sendJoin(s, cmd, p, p.Target, wire.OpJoin)
	case command.StepStartBss:
		if s.CancelRequested() {
			m.fail(s, cmd, oops.Wrapf(wlan.ErrCancelled, "disconnect requested"))
			return
		}
		m.startBss(s, cmd, p)
	case command.StepFinish:
		if p.Outcome == nil {
			m.complete(s, cmd, wlan.ResultSuccess)
			return
		}
		m.fail(s, cmd, p.Outcome)
	default:
		if forced(p.Reason) {
			m.emit(s.ID(), p.RoamID, notify.EventDisconnectForced, wlan.ResultSuccess, bssInfo(p.Reason, cur))
		}
		m.complete(s, cmd, wlan.ResultSuccess)
	}
}

// dropConnection forgets the current BSS after the lower layer left it.
func (m *Machine) dropConnection(s *session.Session) {
	m.timerSet(s.ID()).Stop(timer.WaitForKey)
	s.ClearConnected()
	s.SetState(session.Idle())
}

func forced(r wlan.RoamReason) bool {
	return r == wlan.ReasonForcedDisassoc || r == wlan.ReasonDeauthHandoff
}
