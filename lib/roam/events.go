package roam

import (
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-wlan/go-wlan/lib/command"
	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func bssInfo(reason wlan.RoamReason, bss *scan.BSSDescription) notify.RoamInfo {
	info := notify.RoamInfo{Reason: reason}
	if bss != nil {
		info.BSSID = bss.BSSID
		info.SSID = bss.SSID
		info.Channel = bss.Channel
	}
	return info
}

func (m *Machine) emit(id wlan.SessionID, roamID uint32, ev notify.EventKind, res wlan.Result, info notify.RoamInfo) {
	n := notify.Notification{
		Time:    time.Now(),
		Session: id,
		RoamID:  roamID,
		Event:   ev,
		Result:  res,
		Info:    info,
	}
	log.WithFields(logger.Fields{
		"at":      "roam.Machine.emit",
		"session": id.String(),
		"event":   ev.String(),
		"result":  res.String(),
		"roam_id": roamID,
	}).Debug("notification")
	m.sink.Notify(n)
}

// beginAssociation announces the first association attempt of a command.
// Later candidates of the same command reuse the announcement.
func (m *Machine) beginAssociation(s *session.Session, p *command.RoamPayload, bss *scan.BSSDescription) {
	if p.Started {
		return
	}
	if !s.BeginAssociation() {
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.beginAssociation",
			"session": s.ID().String(),
			"roam_id": p.RoamID,
		}).Warn("closing an association start that was never completed")
		s.EndAssociation()
		m.emit(s.ID(), s.RoamID(), notify.EventAssociationComplete, wlan.ResultAborted, bssInfo(p.Reason, nil))
		s.BeginAssociation()
	}
	p.Started = true
	m.emit(s.ID(), p.RoamID, notify.EventAssociationStart, wlan.ResultSuccess, bssInfo(p.Reason, bss))
}

// endAssociation reports the outcome of an announced association attempt,
// once.
func (m *Machine) endAssociation(s *session.Session, p *command.RoamPayload, res wlan.Result, bss *scan.BSSDescription) {
	if !p.Started || p.Reported {
		return
	}
	p.Reported = true
	if !s.EndAssociation() {
		log.WithFields(logger.Fields{
			"at":      "roam.Machine.endAssociation",
			"session": s.ID().String(),
			"roam_id": p.RoamID,
		}).Warn("association complete without a pending start")
	}
	m.emit(s.ID(), p.RoamID, notify.EventAssociationComplete, res, bssInfo(p.Reason, bss))
}

func (m *Machine) emitLinkUp(s *session.Session) {
	m.emit(s.ID(), s.RoamID(), notify.EventLinkUp, wlan.ResultSuccess, bssInfo(wlan.ReasonConnect, s.ConnectedBSS()))
}
