package notify

import (
	"sync"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Recorder keeps every notification it receives. It is safe for concurrent
// use, which makes it the sink of choice for tests.
type Recorder struct {
	mu   sync.Mutex
	all  []Notification
	wake chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{wake: make(chan struct{}, 1)}
}

// Notify implements Sink.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.all))
	copy(out, r.all)
	return out
}

// For returns the notifications of one session.
func (r *Recorder) For(session wlan.SessionID) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Session == session {
			out = append(out, n)
		}
	}
	return out
}

// Kinds returns the event kinds recorded for session, in order.
func (r *Recorder) Kinds(session wlan.SessionID) []EventKind {
	var out []EventKind
	for _, n := range r.For(session) {
		out = append(out, n.Event)
	}
	return out
}

// Count returns how many notifications of kind were recorded for session.
func (r *Recorder) Count(session wlan.SessionID, kind EventKind) int {
	c := 0
	for _, n := range r.For(session) {
		if n.Event == kind {
			c++
		}
	}
	return c
}

// Last returns the most recent notification of kind for session.
func (r *Recorder) Last(session wlan.SessionID, kind EventKind) (Notification, bool) {
	ns := r.For(session)
	for i := len(ns) - 1; i >= 0; i-- {
		if ns[i].Event == kind {
			return ns[i], true
		}
	}
	return Notification{}, false
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = nil
}

// Wake returns a channel that receives after new notifications arrive.
func (r *Recorder) Wake() <-chan struct{} { return r.wake }

var _ Sink = (*Recorder)(nil)
