package session

import (
	"fmt"

	"github.com/go-wlan/go-wlan/lib/wire"
)

// Kind is the coarse roam state.
type Kind uint8

const (
	KindStopped Kind = iota
	KindIdle
	KindJoining
	KindJoined
)

// String returns the state name.
func (k Kind) String() string {
	switch k {
	case KindStopped:
		return "stopped"
	case KindIdle:
		return "idle"
	case KindJoining:
		return "joining"
	case KindJoined:
		return "joined"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Outstanding names the wire request a joining session is waiting on.
type Outstanding uint8

const (
	OutstandingNone Outstanding = iota
	JoinRequested
	ConfigInProgress
	// AuthRequested is a join that performs shared-key authentication.
	AuthRequested
	ReassocRequested
	DisassocRequested
	DisassocForced
	DisassocHandoff
	DisassocNothingToJoin
	DeauthRequested
	StartBssRequested
	StopBssRequested
	// StationAddRequested and StationDeleteRequested bracket the session's
	// lifetime on the lower layer.
	StationAddRequested
	StationDeleteRequested
)

var outstandingInfo = []struct {
	name string
	op   wire.Op
}{
	{"none", wire.OpNone},
	{"join_requested", wire.OpJoin},
	{"config_in_progress", wire.OpConfigure},
	{"auth_requested", wire.OpJoin},
	{"reassoc_requested", wire.OpReassociate},
	{"disassoc_requested", wire.OpDisassociate},
	{"disassoc_forced", wire.OpDisassociate},
	{"disassoc_handoff", wire.OpDisassociate},
	{"disassoc_nothing_to_join", wire.OpDisassociate},
	{"deauth_requested", wire.OpDeauthenticate},
	{"start_bss_requested", wire.OpStartBss},
	{"stop_bss_requested", wire.OpStopBss},
	{"station_add_requested", wire.OpAddStation},
	{"station_delete_requested", wire.OpDeleteStation},
}

// String returns the substate name.
func (o Outstanding) String() string {
	if int(o) < len(outstandingInfo) {
		return outstandingInfo[o].name
	}
	return fmt.Sprintf("outstanding(%d)", uint8(o))
}

// Op returns the wire operation whose confirmation is awaited.
func (o Outstanding) Op() wire.Op {
	if int(o) < len(outstandingInfo) {
		return outstandingInfo[o].op
	}
	return wire.OpNone
}

// Teardown reports whether the outstanding request takes the session off its
// BSS.
func (o Outstanding) Teardown() bool {
	switch o {
	case DisassocRequested, DisassocForced, DisassocHandoff, DisassocNothingToJoin, DeauthRequested, StopBssRequested:
		return true
	default:
		return false
	}
}

// Substate is the flat substate view used for display and logging.
type Substate uint8

const (
	SubNone Substate = iota
	SubJoinRequested
	SubConfigInProgress
	SubAuthRequested
	SubReassocRequested
	SubDisassocRequested
	SubDisassocForced
	SubDisassocHandoff
	SubDisassocNothingToJoin
	SubDeauthRequested
	SubStartBssRequested
	SubStopBssRequested
	SubStationAddRequested
	SubStationDeleteRequested
	SubWaitForKey
)

// String returns the substate name.
func (s Substate) String() string {
	if s == SubWaitForKey {
		return "wait_for_key"
	}
	return Outstanding(s).String()
}

// State is the single tagged roam state of a session.
type State struct {
	kind       Kind
	pending    Outstanding
	waitForKey bool
}

// Stopped is the state before add-station confirms and after delete-station.
func Stopped() State { return State{kind: KindStopped} }

// StoppedAwaiting is a stopped session with a lifecycle request outstanding.
func StoppedAwaiting(o Outstanding) State { return State{kind: KindStopped, pending: o} }

// Idle is a session that is up but not associated.
func Idle() State { return State{kind: KindIdle} }

// Joining is a session waiting for the confirmation of o.
func Joining(o Outstanding) State { return State{kind: KindJoining, pending: o} }

// Joined is an associated session with its keys in place.
func Joined() State { return State{kind: KindJoined} }

// WaitingForKey is an associated session whose link is held down until the
// supplicant installs keys.
func WaitingForKey() State { return State{kind: KindJoined, waitForKey: true} }

// Kind returns the coarse state.
func (s State) Kind() Kind { return s.kind }

// Outstanding returns the awaited request, OutstandingNone if there is none.
func (s State) Outstanding() Outstanding { return s.pending }

// Awaiting reports whether a confirmation is outstanding.
func (s State) Awaiting() bool { return s.pending != OutstandingNone }

// WaitForKey reports whether the session is associated but holding its link
// down for keys.
func (s State) WaitForKey() bool { return s.waitForKey }

// Substate returns the flat substate.
func (s State) Substate() Substate {
	if s.waitForKey {
		return SubWaitForKey
	}
	return Substate(s.pending)
}

// String formats the state as kind/substate.
func (s State) String() string {
	sub := s.Substate()
	if sub == SubNone {
		return s.kind.String()
	}
	return s.kind.String() + "/" + sub.String()
}
