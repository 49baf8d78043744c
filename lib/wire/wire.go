// Package wire describes the request/confirmation pairs exchanged with the
// lower protocol engine. Frame encoding is the engine's business; this package
// only fixes what each request carries and how a confirmation is correlated
// with the request that caused it.
package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/go-wlan/go-wlan/lib/phy"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Op is a lower-layer operation.
type Op uint8

const (
	OpNone Op = iota
	OpJoin
	OpReassociate
	OpDisassociate
	OpDeauthenticate
	OpStartBss
	OpStopBss
	OpSetKey
	OpRemoveKey
	// OpConfigure pushes changed security or capabilities before a
	// reassociation to the same BSS.
	OpConfigure
	OpAddStation
	OpDeleteStation
)

var opNames = []string{
	"none", "join", "reassociate", "disassociate", "deauthenticate",
	"start_bss", "stop_bss", "set_key", "remove_key", "configure",
	"add_station", "delete_station",
}

// String returns the snake_case op name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp parses the names produced by Op.String.
func ParseOp(s string) (Op, error) {
	for i, n := range opNames {
		if n == s {
			return Op(i), nil
		}
	}
	return OpNone, fmt.Errorf("unknown op %q: %w", s, wlan.ErrInvalidParameter)
}

// Status is the outcome reported by the engine.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusTimeout
	StatusRefused
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	case StatusRefused:
		return "refused"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus parses the names produced by Status.String.
func ParseStatus(s string) (Status, error) {
	for st := StatusSuccess; st <= StatusRefused; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q: %w", s, wlan.ErrInvalidParameter)
}

// Request is one message to the engine. Token is echoed in the confirmation.
type Request struct {
	Op      Op
	Session wlan.SessionID
	Token   uuid.UUID

	// BSS is the join/reassociate target.
	BSS *scan.BSSDescription
	// Profile carries the security and identity for join, reassociate,
	// configure and start-BSS.
	Profile *security.Profile
	// Phy is set for join and start-BSS.
	Phy phy.Selection
	// Key is set for set-key and remove-key.
	Key *security.KeyMaterial
	// ReasonCode is the 802.11 reason for disassociate and deauthenticate.
	ReasonCode uint16
	// Peer is the station address for disassociate, deauthenticate and
	// add-station.
	Peer wlan.BSSID
}

// NewRequest creates a request with a fresh correlation token.
func NewRequest(op Op, session wlan.SessionID) *Request {
	return &Request{Op: op, Session: session, Token: uuid.New()}
}

// Confirm builds the confirmation an engine sends back for r.
func (r *Request) Confirm(status Status) *Confirm {
	return &Confirm{Op: r.Op, Session: r.Session, Token: r.Token, Status: status}
}

// String formats the request for logs.
func (r *Request) String() string {
	return fmt.Sprintf("%s %s token=%s", r.Session, r.Op, r.Token)
}

// Confirm is the engine's answer to a Request.
type Confirm struct {
	Op         Op
	Session    wlan.SessionID
	Token      uuid.UUID
	Status     Status
	ReasonCode uint16
	// BSS optionally reports the BSS actually joined, e.g. the channel an IBSS
	// settled on.
	BSS *scan.BSSDescription
}

// Err maps the status onto the error taxonomy.
func (c *Confirm) Err() error {
	switch c.Status {
	case StatusSuccess:
		return nil
	case StatusTimeout:
		return fmt.Errorf("%s confirmation: %w", c.Op, wlan.ErrTimeout)
	default:
		return fmt.Errorf("%s confirmation %s reason %d: %w", c.Op, c.Status, c.ReasonCode, wlan.ErrFailure)
	}
}

// IndicationKind is an unsolicited event from the engine.
type IndicationKind uint8

const (
	IndDisassociated IndicationKind = iota
	IndDeauthenticated
	IndBeaconLoss
	// IndCapabilityChanged reports that the AP we are on changed its
	// advertised capabilities.
	IndCapabilityChanged
)

// String returns the indication name.
func (k IndicationKind) String() string {
	switch k {
	case IndDisassociated:
		return "disassociated"
	case IndDeauthenticated:
		return "deauthenticated"
	case IndBeaconLoss:
		return "beacon_loss"
	case IndCapabilityChanged:
		return "capability_changed"
	default:
		return fmt.Sprintf("indication(%d)", uint8(k))
	}
}

// ParseIndicationKind parses the names produced by IndicationKind.String.
func ParseIndicationKind(s string) (IndicationKind, error) {
	for k := IndDisassociated; k <= IndCapabilityChanged; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown indication %q: %w", s, wlan.ErrInvalidParameter)
}

// LinkLoss reports whether the indication means the association is gone.
func (k IndicationKind) LinkLoss() bool {
	return k == IndDisassociated || k == IndDeauthenticated || k == IndBeaconLoss
}

// Indication is an unsolicited engine event.
type Indication struct {
	Kind       IndicationKind
	Session    wlan.SessionID
	Peer       wlan.BSSID
	ReasonCode uint16
}

// Engine sends requests to the lower layer. Send must not block on the
// confirmation; a returned error means nothing was sent.
type Engine interface {
	Send(req *Request) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(req *Request) error

// Send calls f(req).
func (f EngineFunc) Send(req *Request) error { return f(req) }
