// Package roam is the connection and roaming state machine.
//
// A Machine owns the session store, the command queue and the per-session
// timers. One worker goroutine runs every command dispatch, wire
// confirmation and timer expiry, so none of that state needs locking. Public
// methods post a closure to the worker and wait for it; Confirm and Indicate,
// which the lower layer calls, post without waiting.
//
// Each roam command walks its candidate list one BSS at a time. A join that
// fails moves on to the next admissible candidate within the same command;
// the command completes when a join succeeds, the list is exhausted, the
// attempt is cancelled or a wire request cannot be sent. Every
// association-start notification is matched by exactly one
// association-complete, and every command that announced a roaming-start
// ends with exactly one roaming-completion.
//
// Sinks and scan-done callbacks run on the worker and must not call back
// into the Machine synchronously.
package roam
