package notify

import (
	"sync/atomic"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// ChanSink delivers notifications on a buffered channel. When the reader falls
// behind, notifications are dropped and counted rather than blocking the
// state machine.
type ChanSink struct {
	ch      chan Notification
	dropped atomic.Uint64
}

// NewChanSink creates a sink with a buffer of size notifications.
func NewChanSink(size int) *ChanSink {
	return &ChanSink{ch: make(chan Notification, size)}
}

// C returns the delivery channel.
func (s *ChanSink) C() <-chan Notification { return s.ch }

// Dropped returns the number of notifications lost to a slow reader.
func (s *ChanSink) Dropped() uint64 { return s.dropped.Load() }

// Notify implements Sink.
func (s *ChanSink) Notify(n Notification) {
	select {
	case s.ch <- n:
	default:
		total := s.dropped.Add(1)
		log.WithFields(logger.Fields{
			"at":      "notify.ChanSink.Notify",
			"event":   n.Event.String(),
			"dropped": total,
		}).Warn("notification channel full, dropping")
	}
}

var _ Sink = (*ChanSink)(nil)
