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

func (m *Machine) dispatchKey(s *session.Session, cmd *command.Command) error {
	cur := s.ConnectedBSS()
	if cur == nil {
		return oops.Wrapf(wlan.ErrWrongState, "%s on session %s that is not associated", cmd.Kind(), s.ID())
	}
	kp := cmd.Key()
	op := wire.OpSetKey
	if cmd.Kind() == command.KindRemoveKey {
		op = wire.OpRemoveKey
	}
	req := wire.NewRequest(op, s.ID())
	req.Key = kp.Key.Clone()
	req.Peer = cur.BSSID
	if kp.Key.Pairwise && !kp.Key.Peer.IsZero() {
		req.Peer = kp.Key.Peer
	}
	if err := m.sendPlain(cmd, req); err != nil {
		m.finishKey(cmd, wlan.ResultOf(err))
	}
	return nil
}

func (m *Machine) onKeyConfirm(s *session.Session, cmd *command.Command, c *wire.Confirm) {
	kp := cmd.Key()
	res := wlan.ResultOf(c.Err())
	if res == wlan.ResultSuccess {
		if cmd.Kind() == command.KindSetKey {
			s.InstallKey(kp.Key.Slot(), kp.Key.Cipher)
			switch {
			case s.State().WaitForKey():
				m.timerSet(s.ID()).Stop(timer.WaitForKey)
				s.SetState(session.Joined())
				m.emitLinkUp(s)
			case s.ReleaseLink():
				// the wait expired first
				m.emitLinkUp(s)
			}
		} else if !s.RemoveKey(kp.Key.Slot()) {
			log.WithFields(logger.Fields{
				"at":      "roam.Machine.onKeyConfirm",
				"session": s.ID().String(),
				"key_id":  kp.Key.KeyID,
			}).Debug("removed key was not installed")
		}
	}
	m.finishKey(cmd, res)
}

func (m *Machine) finishKey(cmd *command.Command, res wlan.Result) {
	m.emitKeyComplete(cmd, res)
	m.completeActive(cmd)
}

func (m *Machine) emitKeyComplete(cmd *command.Command, res wlan.Result) {
	ev := notify.EventSetKeyComplete
	if cmd.Kind() == command.KindRemoveKey {
		ev = notify.EventRemoveKeyComplete
	}
	info := notify.RoamInfo{}
	if kp := cmd.Key(); kp != nil && kp.Key != nil {
		info.KeyID = kp.Key.KeyID
		info.BSSID = kp.Key.Peer
	}
	m.emit(cmd.Session(), 0, ev, res, info)
}
