package command

import (
	"fmt"
	"time"

	"github.com/go-wlan/go-wlan/lib/candidate"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Kind selects the payload of a Command.
type Kind uint8

const (
	KindRoam Kind = iota
	KindSetKey
	KindRemoveKey
	KindWmStatusChange
	KindAddStation
	KindDeleteStation
	KindScan
)

var kindNames = []string{"roam", "set_key", "remove_key", "wm_status_change", "add_station", "delete_station", "scan"}

// String returns the snake_case kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Payload is the kind-specific part of a command.
type Payload interface {
	Kind() Kind
	reset()
}

// Command is a unit of work in the queue.
type Command struct {
	id       uint64
	session  wlan.SessionID
	priority bool
	payload  Payload
	created  time.Time

	released   bool
	powerReady bool
}

// ID returns the pool-assigned sequence number.
func (c *Command) ID() uint64 { return c.id }

// Kind returns the payload kind.
func (c *Command) Kind() Kind { return c.payload.Kind() }

// Session returns the session the command belongs to.
func (c *Command) Session() wlan.SessionID { return c.session }

// Priority reports whether the command was queued at the head.
func (c *Command) Priority() bool { return c.priority }

// Age returns how long ago the command was acquired.
func (c *Command) Age() time.Duration { return time.Since(c.created) }

// String formats the command for logs.
func (c *Command) String() string {
	return fmt.Sprintf("#%d %s %s", c.id, c.session, c.Kind())
}

// Roam returns the roam payload, or nil for other kinds.
func (c *Command) Roam() *RoamPayload {
	p, _ := c.payload.(*RoamPayload)
	return p
}

// Key returns the set-key or remove-key payload, or nil.
func (c *Command) Key() *KeyPayload {
	p, _ := c.payload.(*KeyPayload)
	return p
}

// Status returns the lost-link payload, or nil.
func (c *Command) Status() *StatusPayload {
	p, _ := c.payload.(*StatusPayload)
	return p
}

// Station returns the add/delete station payload, or nil.
func (c *Command) Station() *StationPayload {
	p, _ := c.payload.(*StationPayload)
	return p
}

// Scan returns the scan payload, or nil.
func (c *Command) Scan() *ScanPayload {
	p, _ := c.payload.(*ScanPayload)
	return p
}

// JoinType reports whether the command is a roam that tries to join a BSS.
func (c *Command) JoinType() bool {
	r := c.Roam()
	return r != nil && r.Reason.JoinType()
}

// Step is what a roam command does after its current sub-step confirms.
type Step uint8

const (
	StepNone Step = iota
	// StepJoin continues with the next candidate once the session is down.
	StepJoin
	// StepStartBss continues with start-BSS once the session is down.
	StepStartBss
	// StepFinish completes the command with Outcome once the session is down.
	StepFinish
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepJoin:
		return "join"
	case StepStartBss:
		return "start_bss"
	case StepFinish:
		return "finish"
	default:
		return fmt.Sprintf("step(%d)", uint8(s))
	}
}

// RoamPayload drives one join, reassociate, disassociate, deauthenticate or
// stop-BSS attempt.
type RoamPayload struct {
	Reason wlan.RoamReason
	RoamID uint32
	// Profile is the command's own copy of the requested profile.
	Profile *security.Profile
	// Candidates is nil for commands that bypass the walker.
	Candidates *scan.CandidateList
	Walker     *candidate.Walker
	// Target is the candidate the outstanding request is about.
	Target *scan.BSSDescription
	// Then is the continuation after a stop/disassociate sub-step.
	Then Step
	// Outcome is the result the command finishes with after Then == StepFinish.
	Outcome    error
	ReasonCode uint16
	// Peer addresses deauthenticate and forced disassociate requests.
	Peer wlan.BSSID
	// Started is set once association-start was emitted for the command;
	// Reported once the matching final association-complete was.
	Started  bool
	Reported bool
	// Rescans counts lost-link rescans performed for the command.
	Rescans int
}

// Kind implements Payload.
func (*RoamPayload) Kind() Kind { return KindRoam }

func (p *RoamPayload) reset() {
	if p.Profile != nil {
		p.Profile.Zero()
	}
	*p = RoamPayload{}
}

// KeyPayload carries the command's private copy of the key material.
type KeyPayload struct {
	remove bool
	Key    *security.KeyMaterial
}

// NewSetKey copies key into a set-key payload.
func NewSetKey(key *security.KeyMaterial) *KeyPayload {
	return &KeyPayload{Key: key.Clone()}
}

// NewRemoveKey copies key into a remove-key payload.
func NewRemoveKey(key *security.KeyMaterial) *KeyPayload {
	return &KeyPayload{remove: true, Key: key.Clone()}
}

// Kind implements Payload.
func (p *KeyPayload) Kind() Kind {
	if p.remove {
		return KindRemoveKey
	}
	return KindSetKey
}

func (p *KeyPayload) reset() {
	p.Key.Zero()
	p.Key = nil
}

// StatusPayload is a lower-layer link status change.
type StatusPayload struct {
	Indication wire.Indication
}

// Kind implements Payload.
func (*StatusPayload) Kind() Kind { return KindWmStatusChange }

func (p *StatusPayload) reset() { *p = StatusPayload{} }

// StationPayload brings a session up or down.
type StationPayload struct {
	remove bool
	Self   wlan.BSSID
	// Disassociating is set while a delete waits for the session to leave its
	// BSS before the delete-station request is sent.
	Disassociating bool
}

// NewAddStation creates an add-station payload.
func NewAddStation(self wlan.BSSID) *StationPayload { return &StationPayload{Self: self} }

// NewDeleteStation creates a delete-station payload.
func NewDeleteStation() *StationPayload { return &StationPayload{remove: true} }

// Kind implements Payload.
func (p *StationPayload) Kind() Kind {
	if p.remove {
		return KindDeleteStation
	}
	return KindAddStation
}

func (p *StationPayload) reset() { *p = StationPayload{} }

// ScanPayload requests a fresh scan. Done is called exactly once: with the
// scan result, or with an aborted error if the command never completes.
type ScanPayload struct {
	Filter scan.Filter
	Done   func(error)
}

// Kind implements Payload.
func (*ScanPayload) Kind() Kind { return KindScan }

func (p *ScanPayload) reset() { *p = ScanPayload{} }

// Finish calls Done once.
func (p *ScanPayload) Finish(err error) {
	if p.Done != nil {
		done := p.Done
		p.Done = nil
		done(err)
	}
}
