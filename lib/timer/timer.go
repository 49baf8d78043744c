// Package timer provides the per-session single-shot timers of the roam state
// machine. Expiries are posted back onto the machine's worker and dropped there
// if the timer was stopped or restarted after it fired, so a stale expiry can
// never act on a newer state.
package timer

import (
	"fmt"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// Name identifies one timer of a session.
type Name uint8

const (
	// RoamingWindow bounds a lost-link recovery attempt.
	RoamingWindow Name = iota
	// WaitForKey bounds the time between association and key installation.
	WaitForKey
	// IBSSJoin bounds an outstanding IBSS join or start.
	IBSSJoin
	// JoinRetry bounds an outstanding infrastructure or WDS join.
	JoinRetry
	// Rescan delays the next lost-link rescan.
	Rescan
	numNames
)

var names = [numNames]string{"roaming_window", "wait_for_key", "ibss_join", "join_retry", "rescan"}

// String returns the timer name.
func (n Name) String() string {
	if n < numNames {
		return names[n]
	}
	return fmt.Sprintf("timer(%d)", uint8(n))
}

// Handle stops a scheduled callback.
type Handle interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Handle
}

// RealClock schedules with time.AfterFunc.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Handle { return time.AfterFunc(d, f) }

type slot struct {
	handle  Handle
	gen     uint64
	running bool
}

// Set holds the timers of one session. It is not safe for concurrent use; all
// methods run on the worker, and expiries reach it through post.
type Set struct {
	session wlan.SessionID
	clock   Clock
	post    func(func())
	fire    func(wlan.SessionID, Name)
	slots   [numNames]slot
}

// NewSet creates the timers of session. post must run its argument on the
// worker; fire is called there for live expiries.
func NewSet(session wlan.SessionID, clock Clock, post func(func()), fire func(wlan.SessionID, Name)) *Set {
	if clock == nil {
		clock = RealClock{}
	}
	return &Set{session: session, clock: clock, post: post, fire: fire}
}

// Start (re)arms timer n to fire after d. A running timer is restarted.
func (s *Set) Start(n Name, d time.Duration) {
	sl := &s.slots[n]
	if sl.running {
		sl.handle.Stop()
	}
	sl.gen++
	sl.running = true
	gen := sl.gen
	sl.handle = s.clock.AfterFunc(d, func() {
		s.post(func() { s.expire(n, gen) })
	})
	log.WithFields(logger.Fields{
		"at":       "timer.Set.Start",
		"session":  s.session.String(),
		"timer":    n.String(),
		"duration": d.String(),
	}).Debug("timer_started")
}

// Stop disarms timer n. It cannot fail; the result only reports whether n was
// running, so stopping a stopped timer succeeds with false.
func (s *Set) Stop(n Name) bool {
	sl := &s.slots[n]
	if !sl.running {
		return false
	}
	sl.running = false
	sl.gen++
	sl.handle.Stop()
	log.WithFields(logger.Fields{
		"at":      "timer.Set.Stop",
		"session": s.session.String(),
		"timer":   n.String(),
	}).Debug("timer_stopped")
	return true
}

// Running reports whether timer n is armed.
func (s *Set) Running(n Name) bool { return s.slots[n].running }

// StopAll disarms every timer of the session.
func (s *Set) StopAll() {
	for n := Name(0); n < numNames; n++ {
		s.Stop(n)
	}
}

func (s *Set) expire(n Name, gen uint64) {
	sl := &s.slots[n]
	if !sl.running || sl.gen != gen {
		log.WithFields(logger.Fields{
			"at":      "timer.Set.expire",
			"session": s.session.String(),
			"timer":   n.String(),
		}).Debug("stale timer expiry dropped")
		return
	}
	sl.running = false
	log.WithFields(logger.Fields{
		"at":      "timer.Set.expire",
		"session": s.session.String(),
		"timer":   n.String(),
	}).Debug("timer_expired")
	s.fire(s.session, n)
}
