package roam

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/timer"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var (
	selfAddr = wlan.BSSID{0x02, 0, 0, 0, 0, 0x01}
	apA      = wlan.BSSID{0x0a, 0, 0, 0, 0, 0x0a}
	apB      = wlan.BSSID{0x0a, 0, 0, 0, 0, 0x0b}
	apC      = wlan.BSSID{0x0a, 0, 0, 0, 0, 0x0c}
)

// fakeEngine records every request and sends nothing back on its own.
type fakeEngine struct {
	mu   sync.Mutex
	reqs []*wire.Request
	fail error
}

func (e *fakeEngine) Send(r *wire.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.reqs = append(e.reqs, r)
	return nil
}

func (e *fakeEngine) setFail(err error) {
	e.mu.Lock()
	e.fail = err
	e.mu.Unlock()
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reqs)
}

func (e *fakeEngine) ops() []wire.Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]wire.Op, len(e.reqs))
	for i, r := range e.reqs {
		out[i] = r.Op
	}
	return out
}

func (e *fakeEngine) last(t *testing.T) *wire.Request {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.reqs, "no request sent")
	return e.reqs[len(e.reqs)-1]
}

// mockScanner is a scan collaborator driven by expectations.
type mockScanner struct {
	mock.Mock
}

func (s *mockScanner) GetCandidates(filter scan.Filter) (*scan.CandidateList, error) {
	args := s.Called(filter)
	list, _ := args.Get(0).(*scan.CandidateList)
	return list, args.Error(1)
}

func (s *mockScanner) ReleaseCandidates(list *scan.CandidateList) {
	s.Called(list)
}

func (s *mockScanner) ShouldRoamTo(session wlan.SessionID, bss *scan.BSSDescription) bool {
	return s.Called(session, bss).Bool(0)
}

type harness struct {
	t      *testing.T
	m      *Machine
	engine *fakeEngine
	cache  *scan.Cache
	rec    *notify.Recorder
	clock  *timer.ManualClock
}

func testConfig() Config {
	return Config{
		MaxSessions:     4,
		CommandPoolSize: 16,
		RoamOnLostLink:  true,
		MaxRescans:      2,
		Timers: Timers{
			RoamingWindow: 10 * time.Second,
			WaitForKey:    5 * time.Second,
			IBSSJoin:      3 * time.Second,
			JoinRetry:     2 * time.Second,
		},
		Rescan: Backoff{Initial: 500 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
	}
}

// newHarness builds a machine around a fake engine. A nil scanner means a
// scan.Cache the test fills through h.cache.
func newHarness(t *testing.T, cfg Config, scanner scan.Collaborator, cacheOpts ...scan.CacheOption) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		engine: &fakeEngine{},
		rec:    notify.NewRecorder(),
		clock:  timer.NewManualClock(),
	}
	if scanner == nil {
		h.cache = scan.NewCache(cacheOpts...)
		scanner = h.cache
	}
	m, err := New(cfg, h.engine, scanner, h.rec, WithClock(h.clock))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	h.m = m
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.m.Sync())
}

// confirm answers the last request with status.
func (h *harness) confirm(status wire.Status) {
	h.t.Helper()
	h.m.Confirm(h.engine.last(h.t).Confirm(status))
	h.sync()
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.sync()
}

// open brings a session up and clears the recorder.
func (h *harness) open() wlan.SessionID {
	h.t.Helper()
	id, err := h.m.OpenSession(selfAddr)
	require.NoError(h.t, err)
	h.sync()
	req := h.engine.last(h.t)
	require.Equal(h.t, wire.OpAddStation, req.Op)
	h.confirm(wire.StatusSuccess)
	h.rec.Reset()
	return id
}

func (h *harness) info(id wlan.SessionID) session.Info {
	h.t.Helper()
	info, err := h.m.Session(id)
	require.NoError(h.t, err)
	return info
}

func (h *harness) last(id wlan.SessionID, kind notify.EventKind) notify.Notification {
	h.t.Helper()
	n, ok := h.rec.Last(id, kind)
	require.True(h.t, ok, "no %s notification", kind)
	return n
}

func infraBSS(bssid wlan.BSSID, ssid string, rssi int) *scan.BSSDescription {
	return &scan.BSSDescription{
		BSSID:    bssid,
		SSID:     ssid,
		BSSType:  wlan.BSSInfrastructure,
		Channel:  6,
		Band:     wlan.Band2GHz,
		RSSI:     rssi,
		LastSeen: time.Now(),
	}
}
