// Package session is the arena of per-interface connection state.
//
// Sessions are addressed by a small wlan.SessionID. Looking up an id that is
// out of range or whose session has been closed fails with wlan.ErrWrongState
// instead of handing out a stale record.
//
// Each session carries a single State value. Whether a wire request is
// outstanding, and which one, is part of that value, so a session can never be
// Idle with a join outstanding or Joined while waiting for a disassociate.
//
// Sessions are mutated only by the roam state machine's worker goroutine and
// carry no locks of their own.
package session
