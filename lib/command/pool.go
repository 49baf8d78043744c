package command

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// Pool bounds the number of live commands.
type Pool struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	seq      uint64
}

// NewPool creates a pool that allows capacity live commands.
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Acquire creates a command for session. It fails with
// wlan.ErrResourceExhausted when capacity commands are already live.
func (p *Pool) Acquire(session wlan.SessionID, payload Payload) (*Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse >= p.capacity {
		log.WithFields(logger.Fields{
			"at":       "command.Pool.Acquire",
			"session":  session.String(),
			"kind":     payload.Kind().String(),
			"capacity": p.capacity,
		}).Warn("command pool exhausted")
		return nil, oops.Wrapf(wlan.ErrResourceExhausted, "%d of %d commands in use", p.inUse, p.capacity)
	}
	p.inUse++
	p.seq++
	return &Command{id: p.seq, session: session, payload: payload, created: time.Now()}, nil
}

// Release zeroes the command payload and returns its slot. Releasing the same
// command twice is logged and ignored.
func (p *Pool) Release(cmd *Command) {
	if cmd == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if cmd.released {
		log.WithFields(logger.Fields{
			"at":      "command.Pool.Release",
			"command": cmd.id,
		}).Warn("command released twice")
		return
	}
	cmd.released = true
	cmd.payload.reset()
	p.inUse--
}

// Available returns the number of commands that can still be acquired.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - p.inUse
}

// InUse returns the number of live commands.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
