package roam

import (
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func (m *Machine) handleIndication(ind *wire.Indication) {
	s, err := m.store.Get(ind.Session)
	if err != nil || m.closing[ind.Session] {
		log.WithFields(logger.Fields{
			"at":         "roam.Machine.handleIndication",
			"session":    ind.Session.String(),
			"indication": ind.Kind.String(),
		}).Debug("indication for a session that is not open")
		return
	}

	switch {
	case ind.Kind.LinkLoss():
		cmd, err := m.pool.Acquire(s.ID(), &command.StatusPayload{Indication: *ind})
		if err != nil {
			log.WithError(err).WithField("at", "roam.Machine.handleIndication").Error("lost link dropped")
			return
		}
		m.queue.Enqueue(cmd, true)

	case ind.Kind == wire.IndCapabilityChanged:
		cur := s.ConnectedBSS()
		if cur == nil || (!ind.Peer.IsZero() && ind.Peer != cur.BSSID) || cur.BSSType.Hosted() {
			log.WithFields(logger.Fields{
				"at":      "roam.Machine.handleIndication",
				"session": s.ID().String(),
				"peer":    ind.Peer.String(),
			}).Debug("capability change for a BSS we are not on")
			return
		}
		_, err := m.enqueueRoam(s, &command.RoamPayload{
			Reason:     wlan.ReasonCapabilityChange,
			Profile:    s.ConnectedProfile().Clone(),
			Candidates: selfList(cur),
		}, false)
		if err != nil {
			log.WithError(err).WithField("at", "roam.Machine.handleIndication").Error("capability change dropped")
		}
	}
}

// dispatchStatus handles a lost link: the session drops its association and,
// when allowed, a recovery roam goes to the head of the queue.
func (m *Machine) dispatchStatus(s *session.Session, cmd *command.Command) error {
	ind := cmd.Status().Indication
	cur := s.ConnectedBSS()
	switch {
	case cur == nil:
		m.staleStatus(s, cmd, "session is not associated")
		return nil
	case cur.BSSType == wlan.BSSAccessPoint && !ind.Peer.IsZero() && ind.Peer != cur.BSSID:
		m.staleStatus(s, cmd, "a station left the hosted BSS")
		return nil
	case cur.BSSType != wlan.BSSIndependent && !ind.Peer.IsZero() && ind.Peer != cur.BSSID:
		m.staleStatus(s, cmd, "indication names another BSS")
		return nil
	}

	lost := cur.Clone()
	prof := s.ConnectedProfile().Clone()
	m.dropConnection(s)

	info := bssInfo(wlan.ReasonLostLink, lost)
	info.ReasonCode = ind.ReasonCode
	m.emit(s.ID(), s.RoamID(), notify.EventLostLink, wlan.ResultSuccess, info)
	log.WithFields(logger.Fields{
		"at":          "roam.Machine.dispatchStatus",
		"session":     s.ID().String(),
		"bssid":       lost.BSSID.String(),
		"indication":  ind.Kind.String(),
		"reason_code": ind.ReasonCode,
	}).Warn("link lost")

	if err := m.startRecovery(s, prof); err != nil {
		prof.Zero()
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.dispatchStatus",
			"session": s.ID().String(),
			"reason":  err.Error(),
		}).Warn("no recovery roam")
		m.emit(s.ID(), s.RoamID(), notify.EventDisconnectForced, wlan.ResultOf(err), info)
	}
	m.completeActive(cmd)
	return nil
}

func (m *Machine) staleStatus(s *session.Session, cmd *command.Command, reason string) {
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.dispatchStatus",
		"session": s.ID().String(),
		"reason":  reason,
	}).Debug("stale link status ignored")
	m.completeActive(cmd)
}

// startRecovery queues a lost-link roam for prof and opens its roaming
// window. The roam takes ownership of prof.
func (m *Machine) startRecovery(s *session.Session, prof *security.Profile) error {
	switch {
	case !m.cfg.RoamOnLostLink:
		return oops.Wrapf(wlan.ErrCancelled, "lost link recovery disabled")
	case !prof.AutoReconnect:
		return oops.Wrapf(wlan.ErrCancelled, "profile %q does not reconnect", prof.SSID)
	case !s.AllowLostLinkRoam():
		return oops.Wrapf(wlan.ErrResourceExhausted, "lost link recovery rate exceeded")
	}
	var list *scan.CandidateList
	if !prof.BSSType.Hosted() {
		var err error
		if list, err = m.scanner.GetCandidates(scan.FilterForProfile(prof)); err != nil {
			return oops.Wrapf(err, "candidates for recovery")
		}
	}
	roamID, err := m.enqueueRoam(s, &command.RoamPayload{
		Reason:     wlan.ReasonLostLink,
		Profile:    prof,
		Candidates: list,
	}, true)
	if err != nil {
		return err
	}
	s.StartRoaming(wlan.ReasonLostLink, roamID)
	m.timerSet(s.ID()).Start(timer.RoamingWindow, m.cfg.Timers.RoamingWindow)
	return nil
}

func (m *Machine) canRescan(s *session.Session, p *command.RoamPayload) bool {
	return p.Rescans < m.cfg.MaxRescans && m.timerSet(s.ID()).Running(timer.RoamingWindow)
}

func (m *Machine) scheduleRescan(s *session.Session, p *command.RoamPayload) {
	p.Rescans++
	delay := m.cfg.Rescan.Delay(p.Rescans)
	m.timerSet(s.ID()).Start(timer.Rescan, delay)
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.scheduleRescan",
		"session": s.ID().String(),
		"roam_id": p.RoamID,
		"rescan":  p.Rescans,
		"delay":   delay.String(),
	}).Debug("rescan_scheduled")
}

// recoveryCommand returns the active lost-link roam of s, if any.
func (m *Machine) recoveryCommand(s *session.Session) *command.Command {
	cmd := m.current
	if cmd == nil || cmd.Session() != s.ID() {
		return nil
	}
	if p := cmd.Roam(); p == nil || p.Reason != wlan.ReasonLostLink {
		return nil
	}
	return cmd
}

func (m *Machine) onRescan(s *session.Session) {
	cmd := m.recoveryCommand(s)
	if cmd == nil {
		return
	}
	p := cmd.Roam()
	if m.requester == nil {
		m.refetch(s, cmd, p)
		return
	}
	gen := p.Rescans
	id := s.ID()
	err := m.requester.Scan(id, scan.FilterForProfile(p.Profile), func(err error) {
		m.post(func() { m.onRescanDone(id, cmd, gen, err) })
	})
	if err != nil {
		log.WithError(err).WithField("at", "roam.Machine.onRescan").Warn("rescan not started")
		m.refetch(s, cmd, p)
	}
}

func (m *Machine) onRescanDone(id wlan.SessionID, cmd *command.Command, gen int, err error) {
	s, serr := m.store.Get(id)
	if serr != nil || m.current != cmd || cmd.Roam().Rescans != gen {
		log.WithField("at", "roam.Machine.onRescanDone").Debug("stale rescan result dropped")
		return
	}
	m.emit(id, cmd.Roam().RoamID, notify.EventScanComplete, wlan.ResultOf(err), bssInfo(wlan.ReasonLostLink, nil))
	m.refetch(s, cmd, cmd.Roam())
}

// refetch replaces the candidate list of a recovery roam and walks it from
// the start.
func (m *Machine) refetch(s *session.Session, cmd *command.Command, p *command.RoamPayload) {
	m.releaseList(p)
	list, err := m.scanner.GetCandidates(scan.FilterForProfile(p.Profile))
	if err != nil {
		m.finishAfterLeave(s, cmd, p, oops.Wrapf(err, "candidates after rescan"), session.DisassocNothingToJoin)
		return
	}
	p.Candidates = list
	m.stepJoin(s, cmd, p)
}
