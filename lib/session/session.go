package session

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Expectation is the confirmation a session is waiting for.
type Expectation struct {
	Op    wire.Op
	Token uuid.UUID
}

// Session is the state of one virtual interface.
type Session struct {
	id       wlan.SessionID
	self     wlan.BSSID
	openedAt time.Time

	state  State
	expect Expectation

	connected    *security.Profile
	connectedBSS *scan.BSSDescription

	roaming    bool
	roamReason wlan.RoamReason
	roamID     uint32

	cancelRequested bool
	// roamWindowExpired is set when the roaming window fires while a
	// confirmation is outstanding; the confirmation then ends the attempt.
	roamWindowExpired bool

	pendingAssocStart int
	// linkWithheld is set when the wait-for-key timer gave up before any key
	// arrived. The link is reported up by the first key installed later.
	linkWithheld bool

	keys     map[security.Slot]security.Cipher
	lostLink *rate.Limiter
}

func newSession(id wlan.SessionID, self wlan.BSSID, limiter *rate.Limiter) *Session {
	return &Session{
		id:       id,
		self:     self,
		openedAt: time.Now(),
		state:    Stopped(),
		keys:     make(map[security.Slot]security.Cipher),
		lostLink: limiter,
	}
}

// ID returns the session id.
func (s *Session) ID() wlan.SessionID { return s.id }

// Self returns the interface address.
func (s *Session) Self() wlan.BSSID { return s.self }

// State returns the current state.
func (s *Session) State() State { return s.state }

// SetState replaces the state. Leaving a joining state clears the expectation.
func (s *Session) SetState(st State) {
	s.state = st
	if !st.Awaiting() {
		s.expect = Expectation{}
	}
}

// Await moves the session into a state waiting for req's confirmation.
func (s *Session) Await(st State, req *wire.Request) {
	s.state = st
	s.expect = Expectation{Op: req.Op, Token: req.Token}
}

// Expectation returns what the session is waiting for.
func (s *Session) Expectation() Expectation { return s.expect }

// Matches reports whether c is the confirmation the session waits for.
func (s *Session) Matches(c *wire.Confirm) bool {
	return s.state.Awaiting() && s.expect.Op == c.Op && s.expect.Token == c.Token
}

// Connected reports whether the session is associated or hosting a BSS.
func (s *Session) Connected() bool { return s.connectedBSS != nil }

// ConnectedProfile returns the negotiated profile, nil when not connected.
func (s *Session) ConnectedProfile() *security.Profile { return s.connected }

// ConnectedBSS returns the session's own record of the current BSS.
func (s *Session) ConnectedBSS() *scan.BSSDescription { return s.connectedBSS }

// SetConnected records a successful join. The session keeps its own copies;
// any previous record is dropped wholesale.
func (s *Session) SetConnected(p *security.Profile, bss *scan.BSSDescription) {
	s.dropConnection()
	s.connected = p.Clone()
	s.connectedBSS = bss.Clone()
}

// ClearConnected forgets the current BSS, its profile and installed keys.
func (s *Session) ClearConnected() {
	s.dropConnection()
	clear(s.keys)
}

func (s *Session) dropConnection() {
	if s.connected != nil {
		s.connected.Zero()
	}
	s.connected = nil
	s.connectedBSS = nil
	s.linkWithheld = false
}

// WithholdLink records that the current association never reported its link up.
func (s *Session) WithholdLink() { s.linkWithheld = true }

// ReleaseLink reports whether the link was withheld and clears the mark.
func (s *Session) ReleaseLink() bool {
	held := s.linkWithheld
	s.linkWithheld = false
	return held
}

// StartRoaming marks a roam attempt underway.
func (s *Session) StartRoaming(reason wlan.RoamReason, roamID uint32) {
	s.roaming = true
	s.roamReason = reason
	s.roamID = roamID
	s.roamWindowExpired = false
}

// StopRoaming clears the roam attempt markers.
func (s *Session) StopRoaming() {
	s.roaming = false
	s.roamWindowExpired = false
}

// Roaming reports whether a roam attempt is underway, and why.
func (s *Session) Roaming() (bool, wlan.RoamReason) { return s.roaming, s.roamReason }

// RoamID returns the id of the current or last roam attempt.
func (s *Session) RoamID() uint32 { return s.roamID }

// RequestCancel sets the cancel flag consulted before the next wire request.
func (s *Session) RequestCancel() { s.cancelRequested = true }

// CancelRequested reports the cancel flag.
func (s *Session) CancelRequested() bool { return s.cancelRequested }

// ClearCancel resets the cancel flag.
func (s *Session) ClearCancel() { s.cancelRequested = false }

// ExpireRoamWindow records that the roaming window fired mid-request.
func (s *Session) ExpireRoamWindow() { s.roamWindowExpired = true }

// RoamWindowExpired reports whether the roaming window fired mid-request.
func (s *Session) RoamWindowExpired() bool { return s.roamWindowExpired }

// BeginAssociation accounts for an association-start notification. It
// returns false, and changes nothing, if one is already unmatched.
func (s *Session) BeginAssociation() bool {
	if s.pendingAssocStart != 0 {
		return false
	}
	s.pendingAssocStart = 1
	return true
}

// EndAssociation accounts for an association-complete notification. It
// returns false if there was no unmatched start.
func (s *Session) EndAssociation() bool {
	if s.pendingAssocStart == 0 {
		return false
	}
	s.pendingAssocStart = 0
	return true
}

// PendingAssociationStarts returns the unmatched association-start count,
// always 0 or 1.
func (s *Session) PendingAssociationStarts() int { return s.pendingAssocStart }

// InstallKey records an installed key.
func (s *Session) InstallKey(slot security.Slot, c security.Cipher) { s.keys[slot] = c }

// RemoveKey forgets an installed key. It returns false if the slot was empty.
func (s *Session) RemoveKey(slot security.Slot) bool {
	if _, ok := s.keys[slot]; !ok {
		return false
	}
	delete(s.keys, slot)
	return true
}

// Keys returns the number of installed keys.
func (s *Session) Keys() int { return len(s.keys) }

// HasKey reports whether slot holds a key.
func (s *Session) HasKey(slot security.Slot) bool {
	_, ok := s.keys[slot]
	return ok
}

// AllowLostLinkRoam consumes a lost-link recovery token.
func (s *Session) AllowLostLinkRoam() bool {
	if s.lostLink == nil {
		return true
	}
	return s.lostLink.Allow()
}

// Info is a read-only view of a session for status displays.
type Info struct {
	ID                wlan.SessionID `json:"id"`
	Self              wlan.BSSID     `json:"self"`
	State             string         `json:"state"`
	Kind              Kind           `json:"-"`
	Substate          Substate       `json:"-"`
	SSID              string         `json:"ssid,omitempty"`
	BSSID             wlan.BSSID     `json:"bssid"`
	Channel           int            `json:"channel,omitempty"`
	Roaming           bool           `json:"roaming"`
	RoamReason        string         `json:"roam_reason,omitempty"`
	RoamID            uint32         `json:"roam_id,omitempty"`
	CancelRequested   bool           `json:"cancel_requested"`
	PendingAssocStart int            `json:"pending_assoc_start"`
	Keys              int            `json:"keys"`
	Uptime            time.Duration  `json:"uptime"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	info := Info{
		ID:                s.id,
		Self:              s.self,
		State:             s.state.String(),
		Kind:              s.state.Kind(),
		Substate:          s.state.Substate(),
		Roaming:           s.roaming,
		RoamID:            s.roamID,
		CancelRequested:   s.cancelRequested,
		PendingAssocStart: s.pendingAssocStart,
		Keys:              len(s.keys),
		Uptime:            time.Since(s.openedAt),
	}
	if s.roaming {
		info.RoamReason = s.roamReason.String()
	}
	if s.connectedBSS != nil {
		info.SSID = s.connectedBSS.SSID
		info.BSSID = s.connectedBSS.BSSID
		info.Channel = s.connectedBSS.Channel
	}
	return info
}
