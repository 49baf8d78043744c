// Package command holds the unit of work executed by the roam state machine
// and the single-active-slot queue that feeds it.
//
// A Command is an owned tagged variant: its Kind selects which payload it
// carries. Commands are drawn from a bounded Pool, and acquiring from an empty
// pool fails with wlan.ErrResourceExhausted. The Queue dispatches at most one
// command at a time. Priority commands are inserted at the head of the pending
// list. Roam commands consult a PowerGate first and may be parked while the
// radio transitions to full power.
//
// The Queue is not safe for concurrent use. It is owned by the worker goroutine
// of the state machine; asynchronous callbacks re-enter it through the
// executor supplied with WithExecutor.
package command
