// Package notify defines the notification sink the roam state machine reports
// to, plus a few ready-made sinks: fan-out, recording, channel delivery and a
// CBOR trace file that the "trace dump" command reads back.
//
// Sinks are called on the state machine's worker goroutine and must not block.
// Every association-start notification for a session is followed by exactly
// one association-complete before the next association-start, so observers
// can pair them without bookkeeping of their own.
package notify
