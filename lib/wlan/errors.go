package wlan

import (
	"context"
	"errors"
	"fmt"
)

// Result is the outcome code carried by notifications.
type Result uint8

const (
	ResultSuccess Result = iota
	ResultFailure
	ResultResourceExhausted
	ResultInvalidParameter
	ResultWrongState
	ResultCancelled
	ResultTimeout
	ResultTransportFailure
	ResultNoCandidates
	ResultStoppedConcurrency
	ResultAborted
	// ResultReassocToSelfNoChange completes a reassociation to the current BSS
	// with identical security without any wire traffic.
	ResultReassocToSelfNoChange
	// ResultSilentStop completes a roam attempt that found the session already
	// hosting or joined to the requested IBSS.
	ResultSilentStop
)

var resultNames = map[Result]string{
	ResultSuccess:               "success",
	ResultFailure:               "failure",
	ResultResourceExhausted:     "resource_exhausted",
	ResultInvalidParameter:      "invalid_parameter",
	ResultWrongState:            "wrong_state",
	ResultCancelled:             "cancelled",
	ResultTimeout:               "timeout",
	ResultTransportFailure:      "transport_failure",
	ResultNoCandidates:          "no_candidates",
	ResultStoppedConcurrency:    "stopped_concurrency",
	ResultAborted:               "aborted",
	ResultReassocToSelfNoChange: "reassoc_to_self_no_change",
	ResultSilentStop:            "silent_stop",
}

// String returns the snake_case result name.
func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// ParseResult parses the names produced by Result.String.
func ParseResult(s string) (Result, error) {
	for r, name := range resultNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown result %q: %w", s, ErrInvalidParameter)
}

// Succeeded reports whether the result leaves the session in the state the
// caller asked for. The two silent outcomes count as success.
func (r Result) Succeeded() bool {
	return r == ResultSuccess || r == ResultReassocToSelfNoChange || r == ResultSilentStop
}

// Err returns the sentinel error for a result, or nil for successful results.
func (r Result) Err() error {
	switch r {
	case ResultSuccess, ResultReassocToSelfNoChange, ResultSilentStop:
		return nil
	case ResultResourceExhausted:
		return ErrResourceExhausted
	case ResultInvalidParameter:
		return ErrInvalidParameter
	case ResultWrongState:
		return ErrWrongState
	case ResultCancelled:
		return ErrCancelled
	case ResultTimeout:
		return ErrTimeout
	case ResultTransportFailure:
		return ErrTransportFailure
	case ResultNoCandidates:
		return ErrNoCandidates
	case ResultStoppedConcurrency:
		return ErrStoppedConcurrency
	case ResultAborted:
		return ErrAborted
	default:
		return ErrFailure
	}
}

// Error is a classified failure. The sentinels below are the only values; wrap
// them for context and classify with errors.Is or ResultOf.
type Error struct {
	result Result
	msg    string
}

func (e *Error) Error() string { return e.msg }

// Result returns the notification result code for the error.
func (e *Error) Result() Result { return e.result }

var (
	ErrFailure            = &Error{ResultFailure, "operation failed"}
	ErrResourceExhausted  = &Error{ResultResourceExhausted, "no free command buffer"}
	ErrInvalidParameter   = &Error{ResultInvalidParameter, "invalid parameter"}
	ErrWrongState         = &Error{ResultWrongState, "session not in a compatible state"}
	ErrCancelled          = &Error{ResultCancelled, "roam attempt cancelled"}
	ErrTimeout            = &Error{ResultTimeout, "timed out"}
	ErrTransportFailure   = &Error{ResultTransportFailure, "wire request could not be sent"}
	ErrNoCandidates       = &Error{ResultNoCandidates, "no admissible candidate BSS"}
	ErrStoppedConcurrency = &Error{ResultStoppedConcurrency, "candidates blocked by concurrent session channel"}
	ErrAborted            = &Error{ResultAborted, "command aborted"}
)

// ResultOf classifies an error. nil maps to ResultSuccess, context errors map to
// cancellation/timeout, unclassified errors map to ResultFailure.
func ResultOf(err error) Result {
	if err == nil {
		return ResultSuccess
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.result
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ResultCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ResultTimeout
	}
	return ResultFailure
}
