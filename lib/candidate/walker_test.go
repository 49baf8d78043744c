package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

type mockAdmitter struct {
	mock.Mock
}

func (m *mockAdmitter) ShouldRoamTo(session wlan.SessionID, bss *scan.BSSDescription) bool {
	return m.Called(session, bss.BSSID).Bool(0)
}

type channelConflict struct{ busy map[int]bool }

func (c channelConflict) ChannelConflict(_ wlan.SessionID, bss *scan.BSSDescription) bool {
	return c.busy[bss.Channel]
}

func entry(last byte, channel int) *scan.BSSDescription {
	return &scan.BSSDescription{BSSID: wlan.BSSID{2, 0, 0, 0, 0, last}, SSID: "net", Channel: channel, RSSI: -50}
}

func list(entries ...*scan.BSSDescription) *scan.CandidateList {
	return scan.NewCandidateList(1, entries)
}

func TestWalkerSkipsRejectedCandidates(t *testing.T) {
	a, b, c := entry(1, 1), entry(2, 1), entry(3, 1)
	admit := &mockAdmitter{}
	admit.On("ShouldRoamTo", wlan.SessionID(0), a.BSSID).Return(false).Once()
	admit.On("ShouldRoamTo", wlan.SessionID(0), b.BSSID).Return(false).Once()
	admit.On("ShouldRoamTo", wlan.SessionID(0), c.BSSID).Return(true).Once()

	w := NewWalker(0, list(a, b, c), admit)
	got, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, c.BSSID, got.BSSID)
	assert.Equal(t, 2, w.Cursor())
	admit.AssertExpectations(t)

	_, err = w.Next()
	assert.ErrorIs(t, err, wlan.ErrNoCandidates)
	assert.True(t, w.Exhausted())
	// rejected candidates are never consulted again
	admit.AssertNumberOfCalls(t, "ShouldRoamTo", 3)
}

func TestWalkerNeverRevisits(t *testing.T) {
	entries := []*scan.BSSDescription{entry(1, 1), entry(2, 1), entry(3, 1), entry(4, 1)}
	seen := map[wlan.BSSID]int{}
	w := NewWalker(0, list(entries...), nil, WithFilter(Func("count", func(b *scan.BSSDescription) bool {
		seen[b.BSSID]++
		return b.BSSID[5]%2 == 0
	})))

	var accepted []byte
	for {
		b, err := w.Next()
		if err != nil {
			assert.ErrorIs(t, err, wlan.ErrNoCandidates)
			break
		}
		accepted = append(accepted, b.BSSID[5])
	}
	assert.Equal(t, []byte{2, 4}, accepted)
	for id, n := range seen {
		assert.Equal(t, 1, n, "candidate %s evaluated more than once", id)
	}
}

func TestWalkerStoppedConcurrency(t *testing.T) {
	w := NewWalker(0, list(entry(1, 36), entry(2, 40)), nil,
		WithConcurrency(channelConflict{busy: map[int]bool{36: true, 40: true}}))
	_, err := w.Next()
	assert.ErrorIs(t, err, wlan.ErrStoppedConcurrency)
	assert.Equal(t, 2, w.ConcurrencySkips())
}

func TestWalkerConcurrencyExempt(t *testing.T) {
	exempt := entry(2, 36)
	exempt.ConcurrencyExempt = true
	w := NewWalker(0, list(entry(1, 36), exempt), nil,
		WithConcurrency(channelConflict{busy: map[int]bool{36: true}}))
	got, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, exempt.BSSID, got.BSSID)
	assert.Equal(t, 1, w.ConcurrencySkips())

	// once something was accepted, exhaustion is a plain NoCandidates
	_, err = w.Next()
	assert.ErrorIs(t, err, wlan.ErrNoCandidates)
}

func TestWalkerRetryDoesNotAdvance(t *testing.T) {
	w := NewWalker(0, list(entry(1, 1), entry(2, 1)), nil)
	first, err := w.Next()
	require.NoError(t, err)
	again, err := w.Retry()
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 0, w.Cursor())

	next, err := w.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(2), next.BSSID[5])
}

func TestWalkerStartAt(t *testing.T) {
	admit := &mockAdmitter{}
	w := NewWalker(0, list(entry(1, 1)), admit, WithStartAt(0))
	got, err := w.Retry()
	require.NoError(t, err)
	assert.Equal(t, byte(1), got.BSSID[5])
	admit.AssertNotCalled(t, "ShouldRoamTo", mock.Anything, mock.Anything)
}

func TestWalkerEmptyList(t *testing.T) {
	w := NewWalker(0, list(), nil)
	_, err := w.Next()
	assert.ErrorIs(t, err, wlan.ErrNoCandidates)
	_, err = w.Retry()
	assert.ErrorIs(t, err, wlan.ErrNoCandidates)
	assert.Nil(t, w.Current())
}
