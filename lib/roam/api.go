package roam

import (
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// OpenSession allocates a session for the interface with address self and
// brings it up on the lower layer. Commands may be issued right away; they
// run once SessionOpened has been reported.
func (m *Machine) OpenSession(self wlan.BSSID) (wlan.SessionID, error) {
	var id wlan.SessionID
	err := m.do(func() error {
		s, err := m.store.Open(self)
		if err != nil {
			return err
		}
		cmd, err := m.pool.Acquire(s.ID(), command.NewAddStation(self))
		if err != nil {
			m.store.Close(s.ID())
			return err
		}
		id = s.ID()
		m.timerSet(id)
		m.queue.Enqueue(cmd, false)
		return nil
	})
	return id, err
}

// CloseSession aborts the pending work of a session, takes it off its BSS and
// deletes it on the lower layer. Closing a session twice is not an error.
func (m *Machine) CloseSession(id wlan.SessionID) error {
	return m.do(func() error {
		s, err := m.store.Get(id)
		if err != nil {
			return err
		}
		if m.closing[id] {
			return nil
		}
		m.closing[id] = true
		s.RequestCancel()
		m.queue.AbortSession(id, oops.Wrapf(wlan.ErrAborted, "session %s closing", id), nil)

		if _, err := m.store.Get(id); err != nil {
			// the add-station request had not run yet
			m.emit(id, 0, notify.EventSessionClosed, wlan.ResultSuccess, bssInfo(wlan.ReasonDisconnect, nil))
			return nil
		}
		if active := m.current; active != nil && active.Session() == id && active.JoinType() && !s.State().Awaiting() {
			m.cancelRoam(s, active, active.Roam())
		}
		cmd, err := m.pool.Acquire(id, command.NewDeleteStation())
		if err != nil {
			delete(m.closing, id)
			return err
		}
		m.queue.Enqueue(cmd, true)
		return nil
	})
}

// Connect starts a roam command that joins the best admissible BSS for
// profile. Infrastructure and WDS profiles walk the scan collaborator's
// candidates; access point profiles, and IBSS profiles nobody is advertising
// yet, start their own BSS. The returned roam id tags every notification of
// the attempt.
func (m *Machine) Connect(id wlan.SessionID, profile *security.Profile) (uint32, error) {
	prepared, err := profile.Prepare()
	if err != nil {
		return 0, err
	}
	var roamID uint32
	err = m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		list, err := m.candidatesFor(prepared)
		if err != nil {
			return err
		}
		roamID, err = m.enqueueRoam(s, &command.RoamPayload{
			Reason:     wlan.ReasonConnect,
			Profile:    prepared,
			Candidates: list,
		}, false)
		return err
	})
	if err != nil {
		prepared.Zero()
	}
	return roamID, err
}

// candidatesFor returns the candidate list of a connect profile, or nil when
// the station should start the BSS itself.
func (m *Machine) candidatesFor(p *security.Profile) (*scan.CandidateList, error) {
	if p.BSSType == wlan.BSSAccessPoint {
		return nil, nil
	}
	list, err := m.scanner.GetCandidates(scan.FilterForProfile(p))
	if err != nil {
		return nil, oops.Wrapf(err, "candidates for %q", p.SSID)
	}
	if p.BSSType == wlan.BSSIndependent && list.Len() == 0 {
		m.scanner.ReleaseCandidates(list)
		return nil, nil
	}
	return list, nil
}

// Disconnect ends the session's association. A roam attempt in progress is
// cancelled: immediately when it is between requests, otherwise as soon as
// its outstanding confirmation arrives. Disconnecting an idle session
// succeeds without doing anything.
func (m *Machine) Disconnect(id wlan.SessionID) error {
	return m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		s.RequestCancel()
		m.queue.AbortSession(id, oops.Wrapf(wlan.ErrCancelled, "disconnect requested"), (*command.Command).JoinType)

		if active := m.current; active != nil && active.Session() == id && active.JoinType() {
			if !s.State().Awaiting() {
				m.cancelRoam(s, active, active.Roam())
			}
			return nil
		}
		s.ClearCancel()
		if !s.Connected() {
			return nil
		}
		_, err = m.enqueueRoam(s, &command.RoamPayload{Reason: wlan.ReasonDisconnect}, false)
		return err
	})
}

// Reassociate reassociates to the current BSS. A nil profile reuses the
// connected one, which completes without wire traffic; a profile with
// different security pushes the new configuration first.
func (m *Machine) Reassociate(id wlan.SessionID, profile *security.Profile) (uint32, error) {
	var prepared *security.Profile
	if profile != nil {
		var err error
		if prepared, err = profile.Prepare(); err != nil {
			return 0, err
		}
	}
	var roamID uint32
	err := m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		cur := s.ConnectedBSS()
		if cur == nil || cur.BSSType.Hosted() {
			return oops.Wrapf(wlan.ErrWrongState, "session %s is not associated to an access point", id)
		}
		if prepared == nil {
			prepared = s.ConnectedProfile().Clone()
		}
		roamID, err = m.enqueueRoam(s, &command.RoamPayload{
			Reason:     wlan.ReasonReassoc,
			Profile:    prepared,
			Candidates: selfList(cur),
		}, false)
		return err
	})
	if err != nil && prepared != nil {
		prepared.Zero()
	}
	return roamID, err
}

// ForceDisassociate disassociates ahead of any queued work. On a hosted
// access point a peer other than our own address disassociates just that
// station.
func (m *Machine) ForceDisassociate(id wlan.SessionID, peer wlan.BSSID, reasonCode uint16) (uint32, error) {
	return m.teardown(id, wlan.ReasonForcedDisassoc, peer, reasonCode, true)
}

// Deauthenticate deauthenticates ahead of any queued work, as done when
// handing the link off to another interface.
func (m *Machine) Deauthenticate(id wlan.SessionID, peer wlan.BSSID, reasonCode uint16) (uint32, error) {
	return m.teardown(id, wlan.ReasonDeauthHandoff, peer, reasonCode, true)
}

// StopBss tears down a BSS the session hosts.
func (m *Machine) StopBss(id wlan.SessionID) (uint32, error) {
	return m.teardown(id, wlan.ReasonStopBss, wlan.BSSID{}, 0, false)
}

func (m *Machine) teardown(id wlan.SessionID, reason wlan.RoamReason, peer wlan.BSSID, code uint16, priority bool) (uint32, error) {
	var roamID uint32
	err := m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		if reason == wlan.ReasonStopBss {
			if cur := s.ConnectedBSS(); cur == nil || !cur.BSSType.Hosted() {
				return oops.Wrapf(wlan.ErrWrongState, "session %s hosts no BSS", id)
			}
		}
		roamID, err = m.enqueueRoam(s, &command.RoamPayload{
			Reason:     reason,
			Peer:       peer,
			ReasonCode: code,
		}, priority)
		return err
	})
	return roamID, err
}

// SetKey installs a key on the session. The key length must match its
// cipher, and the cipher the one negotiated for the key's direction. While
// the session waits for its first key the command goes ahead of all queued
// work.
func (m *Machine) SetKey(id wlan.SessionID, key *security.KeyMaterial) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		if p := s.ConnectedProfile(); p != nil && !cipherNegotiated(p, key) {
			return oops.Wrapf(wlan.ErrInvalidParameter, "%s key does not match the negotiated cipher", key.Cipher)
		}
		return m.enqueueKey(s, command.NewSetKey(key), s.State().WaitForKey())
	})
}

// RemoveKey removes an installed key.
func (m *Machine) RemoveKey(id wlan.SessionID, key *security.KeyMaterial) error {
	if err := key.ValidateRemoval(); err != nil {
		return err
	}
	return m.do(func() error {
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		return m.enqueueKey(s, command.NewRemoveKey(key), false)
	})
}

// RequestScan queues a fresh scan. done, if not nil, is called on the
// machine's worker exactly once with the scan result, or with an aborted
// error when the command is dropped.
func (m *Machine) RequestScan(id wlan.SessionID, filter scan.Filter, done func(error)) error {
	return m.do(func() error {
		if m.requester == nil {
			return oops.Wrapf(wlan.ErrWrongState, "scan collaborator cannot run scans")
		}
		s, err := m.sessionFor(id)
		if err != nil {
			return err
		}
		cmd, err := m.pool.Acquire(s.ID(), &command.ScanPayload{Filter: filter, Done: done})
		if err != nil {
			return err
		}
		m.queue.Enqueue(cmd, false)
		return nil
	})
}

// Confirm delivers a confirmation from the lower layer. It does not wait.
func (m *Machine) Confirm(c *wire.Confirm) {
	if c == nil {
		return
	}
	cp := *c
	m.post(func() { m.handleConfirm(&cp) })
}

// Indicate delivers an unsolicited lower-layer event. It does not wait.
func (m *Machine) Indicate(ind *wire.Indication) {
	if ind == nil {
		return
	}
	cp := *ind
	m.post(func() { m.handleIndication(&cp) })
}

func (m *Machine) enqueueRoam(s *session.Session, p *command.RoamPayload, priority bool) (uint32, error) {
	p.RoamID = m.nextRoamID()
	cmd, err := m.pool.Acquire(s.ID(), p)
	if err != nil {
		m.releaseList(p)
		if p.Profile != nil {
			p.Profile.Zero()
		}
		return 0, err
	}
	info := bssInfo(p.Reason, nil)
	if p.Profile != nil {
		info.SSID = p.Profile.SSID
	}
	m.emit(s.ID(), p.RoamID, notify.EventRoamingStart, wlan.ResultSuccess, info)
	m.queue.Enqueue(cmd, priority)
	return p.RoamID, nil
}

func (m *Machine) enqueueKey(s *session.Session, kp *command.KeyPayload, priority bool) error {
	cmd, err := m.pool.Acquire(s.ID(), kp)
	if err != nil {
		kp.Key.Zero()
		return err
	}
	m.queue.Enqueue(cmd, priority)
	return nil
}

// cipherNegotiated reports whether key may be installed on a session that
// negotiated p.
func cipherNegotiated(p *security.Profile, key *security.KeyMaterial) bool {
	want := p.Group
	if key.Pairwise {
		want = p.Pairwise
	}
	switch {
	case want == security.CipherNone:
		return true
	case !key.Pairwise && key.Cipher == security.CipherBIPCMAC:
		return true
	default:
		return key.Cipher == want
	}
}

// selfList is a one-entry candidate list holding the current BSS. It is not
// owned by the scan collaborator.
func selfList(cur *scan.BSSDescription) *scan.CandidateList {
	return scan.NewCandidateList(0, []*scan.BSSDescription{cur.Clone()})
}
