package session

import (
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"

	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// StoreConfig sizes the arena and its per-session policies.
type StoreConfig struct {
	// MaxSessions is the number of slots, at most 256.
	MaxSessions int
	// AllowMultiChannel lets concurrent sessions sit on different channels.
	AllowMultiChannel bool
	// LostLinkRate and LostLinkBurst bound lost-link recovery roams per
	// session. A zero rate disables the limit.
	LostLinkRate  rate.Limit
	LostLinkBurst int
}

// Store is a fixed-size arena of sessions.
type Store struct {
	mu    sync.RWMutex
	cfg   StoreConfig
	slots []*Session
	next  int
}

// NewStore creates an empty arena.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxSessions <= 0 || cfg.MaxSessions > 256 {
		cfg.MaxSessions = 256
	}
	return &Store{cfg: cfg, slots: make([]*Session, cfg.MaxSessions)}
}

// Capacity returns the number of slots.
func (st *Store) Capacity() int { return len(st.slots) }

// Open allocates the next free id for an interface with address self. The
// session starts Stopped until the lower layer confirms add-station.
func (st *Store) Open(self wlan.BSSID) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for i := 0; i < len(st.slots); i++ {
		idx := (st.next + i) % len(st.slots)
		if st.slots[idx] != nil {
			continue
		}
		st.next = (idx + 1) % len(st.slots)
		var limiter *rate.Limiter
		if st.cfg.LostLinkRate > 0 {
			limiter = rate.NewLimiter(st.cfg.LostLinkRate, max(st.cfg.LostLinkBurst, 1))
		}
		s := newSession(wlan.SessionID(idx), self, limiter)
		st.slots[idx] = s
		log.WithFields(logger.Fields{
			"at":      "session.Store.Open",
			"session": s.id.String(),
			"self":    self.String(),
		}).Debug("session_allocated")
		return s, nil
	}
	return nil, oops.Wrapf(wlan.ErrResourceExhausted, "all %d session slots in use", len(st.slots))
}

// Get returns the live session for id. Invalid or closed ids fail with
// wlan.ErrWrongState.
func (st *Store) Get(id wlan.SessionID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if int(id) >= len(st.slots) {
		return nil, oops.Wrapf(wlan.ErrWrongState, "session id %d out of range", id)
	}
	s := st.slots[id]
	if s == nil {
		return nil, oops.Wrapf(wlan.ErrWrongState, "session %s is not open", id)
	}
	return s, nil
}

// Close frees the slot of id. Closing a free slot is a no-op.
func (st *Store) Close(id wlan.SessionID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if int(id) >= len(st.slots) || st.slots[id] == nil {
		return
	}
	st.slots[id].ClearConnected()
	st.slots[id] = nil
	log.WithField("at", "session.Store.Close").WithField("session", id.String()).Debug("session_freed")
}

// Each calls fn for every open session in id order.
func (st *Store) Each(fn func(*Session)) {
	st.mu.RLock()
	live := make([]*Session, 0, len(st.slots))
	for _, s := range st.slots {
		if s != nil {
			live = append(live, s)
		}
	}
	st.mu.RUnlock()
	for _, s := range live {
		fn(s)
	}
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	n := 0
	st.Each(func(*Session) { n++ })
	return n
}

// ChannelConflict reports whether joining bss from session would require a
// channel other than the one another connected session is using.
func (st *Store) ChannelConflict(session wlan.SessionID, bss *scan.BSSDescription) bool {
	if st.cfg.AllowMultiChannel {
		return false
	}
	conflict := false
	st.Each(func(s *Session) {
		if s.id == session || conflict || !s.Connected() {
			return
		}
		if s.connectedBSS.Channel != 0 && s.connectedBSS.Channel != bss.Channel {
			conflict = true
		}
	})
	return conflict
}
