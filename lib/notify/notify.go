package notify

import (
	"fmt"
	"time"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// EventKind is the kind of a notification.
type EventKind uint8

const (
	EventSessionOpened EventKind = iota
	EventSessionClosed
	EventAssociationStart
	EventAssociationComplete
	EventRoamingStart
	EventRoamingCompletion
	EventSetKeyComplete
	EventRemoveKeyComplete
	EventLostLink
	EventDisconnectForced
	EventLinkUp
	EventKeyWaitExpired
	EventScanComplete
)

var eventNames = []string{
	"session_opened", "session_closed", "association_start", "association_complete",
	"roaming_start", "roaming_completion", "set_key_complete", "remove_key_complete",
	"lost_link", "disconnect_forced", "link_up", "key_wait_expired", "scan_complete",
}

// String returns the snake_case event name.
func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// ParseEventKind parses the names produced by EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for i, n := range eventNames {
		if n == s {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q: %w", s, wlan.ErrInvalidParameter)
}

// RoamInfo carries what is known about the BSS a notification is about.
type RoamInfo struct {
	BSSID      wlan.BSSID      `cbor:"1,keyasint,omitempty" json:"bssid"`
	SSID       string          `cbor:"2,keyasint,omitempty" json:"ssid,omitempty"`
	Reason     wlan.RoamReason `cbor:"3,keyasint" json:"reason"`
	ReasonCode uint16          `cbor:"4,keyasint,omitempty" json:"reason_code,omitempty"`
	Channel    int             `cbor:"5,keyasint,omitempty" json:"channel,omitempty"`
	KeyID      uint8           `cbor:"6,keyasint,omitempty" json:"key_id,omitempty"`
}

// Notification is one event reported to a sink.
type Notification struct {
	Time    time.Time      `cbor:"1,keyasint" json:"time"`
	Session wlan.SessionID `cbor:"2,keyasint" json:"session"`
	RoamID  uint32         `cbor:"3,keyasint,omitempty" json:"roam_id,omitempty"`
	Event   EventKind      `cbor:"4,keyasint" json:"event"`
	Result  wlan.Result    `cbor:"5,keyasint" json:"result"`
	Info    RoamInfo       `cbor:"6,keyasint" json:"info"`
}

// String formats the notification for logs and the terminal view.
func (n Notification) String() string {
	s := fmt.Sprintf("%s %s %s", n.Session, n.Event, n.Result)
	if n.RoamID != 0 {
		s += fmt.Sprintf(" roam=%d", n.RoamID)
	}
	if !n.Info.BSSID.IsZero() {
		s += " bssid=" + n.Info.BSSID.String()
	}
	return s
}

// Sink receives notifications.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) { f(n) }

// NoopSink discards everything.
type NoopSink struct{}

// Notify implements Sink.
func (NoopSink) Notify(Notification) {}

// MultiSink fans a notification out to several sinks in order.
type MultiSink []Sink

// Notify implements Sink.
func (m MultiSink) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Compile-time interface checks
var (
	_ Sink = SinkFunc(nil)
	_ Sink = NoopSink{}
	_ Sink = MultiSink(nil)
)
