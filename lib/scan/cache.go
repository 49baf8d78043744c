package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/mdlayher/wifi"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// Source produces fresh scan results for Cache.Scan.
type Source func(ctx context.Context, filter Filter) ([]*BSSDescription, error)

// Policy is an additional admission check applied by Cache.ShouldRoamTo.
type Policy func(session wlan.SessionID, bss *BSSDescription) bool

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxCandidates caps the length of candidate lists. 0 means no cap.
func WithMaxCandidates(n int) CacheOption { return func(c *Cache) { c.maxCandidates = n } }

// WithMaxAge drops results older than age from candidate lists. 0 keeps all.
func WithMaxAge(age time.Duration) CacheOption { return func(c *Cache) { c.maxAge = age } }

// WithSource sets the producer used by Scan.
func WithSource(src Source) CacheOption { return func(c *Cache) { c.source = src } }

// WithPolicy installs the ShouldRoamTo decision. Without one every candidate
// is admitted; signal and band rules live in the walker's admission filter.
func WithPolicy(p Policy) CacheOption { return func(c *Cache) { c.policy = p } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption { return func(c *Cache) { c.now = now } }

// Cache is an in-memory scan collaborator. It keeps the latest description per
// BSSID and hands out RSSI ordered snapshots.
type Cache struct {
	mu          sync.Mutex
	entries     map[wlan.BSSID]*BSSDescription
	outstanding map[Handle]struct{}
	nextHandle  Handle

	maxCandidates int
	maxAge        time.Duration
	source        Source
	policy        Policy
	now           func() time.Time
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:     make(map[wlan.BSSID]*BSSDescription),
		outstanding: make(map[Handle]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update stores or replaces descriptions, keyed by BSSID.
func (c *Cache) Update(descs ...*BSSDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range descs {
		if d == nil {
			continue
		}
		e := d.Clone()
		if e.LastSeen.IsZero() {
			e.LastSeen = c.now()
		}
		c.entries[e.BSSID] = e
	}
}

// UpdateFromWifi stores an nl80211 BSS record.
func (c *Cache) UpdateFromWifi(b *wifi.BSS, rssi int) error {
	d, err := FromWifiBSS(b, rssi, c.now())
	if err != nil {
		return oops.Wrapf(err, "update scan cache")
	}
	c.Update(d)
	return nil
}

// Remove forgets a BSS.
func (c *Cache) Remove(bssid wlan.BSSID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, bssid)
}

// Entries returns copies of every cached description in candidate order.
func (c *Cache) Entries() []*BSSDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*BSSDescription, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Clone())
	}
	sortCandidates(out)
	return out
}

// GetCandidates implements Collaborator.
func (c *Cache) GetCandidates(filter Filter) (*CandidateList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var out []*BSSDescription
	for _, e := range c.entries {
		if c.maxAge > 0 && now.Sub(e.LastSeen) > c.maxAge {
			continue
		}
		if filter.Match(e) {
			out = append(out, e.Clone())
		}
	}
	sortCandidates(out)
	if c.maxCandidates > 0 && len(out) > c.maxCandidates {
		out = out[:c.maxCandidates]
	}

	c.nextHandle++
	h := c.nextHandle
	c.outstanding[h] = struct{}{}

	log.WithFields(logger.Fields{
		"at":         "scan.Cache.GetCandidates",
		"handle":     h,
		"candidates": len(out),
		"ssids":      filter.SSIDs,
	}).Debug("candidate_list_created")
	return NewCandidateList(h, out), nil
}

// ReleaseCandidates implements Collaborator.
func (c *Cache) ReleaseCandidates(list *CandidateList) {
	if list == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.outstanding[list.handle]; !ok {
		log.WithFields(logger.Fields{
			"at":     "scan.Cache.ReleaseCandidates",
			"handle": list.handle,
		}).Warn("release of unknown candidate list")
		return
	}
	delete(c.outstanding, list.handle)
}

// Outstanding returns the number of candidate lists not yet released.
func (c *Cache) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// ShouldRoamTo implements Collaborator.
func (c *Cache) ShouldRoamTo(session wlan.SessionID, bss *BSSDescription) bool {
	if c.policy == nil || c.policy(session, bss) {
		return true
	}
	log.WithFields(logger.Fields{
		"at":      "scan.Cache.ShouldRoamTo",
		"session": session.String(),
		"bssid":   bss.BSSID.String(),
	}).Debug("candidate_refused_by_policy")
	return false
}

// Scan implements Requester. Results from the source are merged into the
// cache before done is called.
func (c *Cache) Scan(session wlan.SessionID, filter Filter, done func(error)) error {
	if c.source == nil {
		return oops.Wrapf(wlan.ErrWrongState, "scan cache has no source")
	}
	go func() {
		results, err := c.source(context.Background(), filter)
		if err == nil {
			c.Update(results...)
		}
		log.WithFields(logger.Fields{
			"at":      "scan.Cache.Scan",
			"session": session.String(),
			"results": len(results),
		}).Debug("scan_complete")
		done(err)
	}()
	return nil
}

// sortCandidates orders by descending RSSI, ties broken by BSSID so lists are
// deterministic.
func sortCandidates(list []*BSSDescription) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return string(list[i].BSSID[:]) < string(list[j].BSSID[:])
	})
}

var (
	_ Collaborator = (*Cache)(nil)
	_ Requester    = (*Cache)(nil)
)
