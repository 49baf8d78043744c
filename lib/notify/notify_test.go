package notify

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

func sample(session wlan.SessionID, kind EventKind) Notification {
	return Notification{
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		Session: session,
		RoamID:  7,
		Event:   kind,
		Result:  wlan.ResultSuccess,
		Info:    RoamInfo{BSSID: wlan.BSSID{2, 0, 0, 0, 0, 1}, SSID: "home", Channel: 6},
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Notify(sample(0, EventAssociationStart))
	r.Notify(sample(1, EventSessionOpened))
	r.Notify(sample(0, EventAssociationComplete))

	assert.Equal(t, []EventKind{EventAssociationStart, EventAssociationComplete}, r.Kinds(0))
	assert.Equal(t, 1, r.Count(1, EventSessionOpened))
	last, ok := r.Last(0, EventAssociationComplete)
	require.True(t, ok)
	assert.Equal(t, uint32(7), last.RoamID)
	_, ok = r.Last(1, EventLinkUp)
	assert.False(t, ok)

	select {
	case <-r.Wake():
	default:
		t.Fatal("recorder did not signal")
	}
	r.Reset()
	assert.Empty(t, r.All())
}

func TestMultiSinkAndFunc(t *testing.T) {
	var got []EventKind
	r := NewRecorder()
	m := MultiSink{r, nil, SinkFunc(func(n Notification) { got = append(got, n.Event) }), NoopSink{}}
	m.Notify(sample(0, EventLinkUp))
	assert.Equal(t, []EventKind{EventLinkUp}, got)
	assert.Len(t, r.All(), 1)
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	s := NewChanSink(1)
	s.Notify(sample(0, EventLinkUp))
	s.Notify(sample(0, EventLostLink))
	assert.Equal(t, uint64(1), s.Dropped())
	n := <-s.C()
	assert.Equal(t, EventLinkUp, n.Event)
}

func TestTraceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbor")
	sink, err := NewTraceSink(path)
	require.NoError(t, err)

	want := []Notification{sample(0, EventAssociationStart), sample(0, EventAssociationComplete), sample(2, EventLostLink)}
	want[1].Result = wlan.ResultNoCandidates
	for _, n := range want {
		sink.Notify(n)
	}
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	sink.Notify(sample(0, EventLinkUp)) // ignored after close

	r, err := OpenTrace(path)
	require.NoError(t, err)
	defer r.Close()
	var got []Notification
	for {
		n, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, n)
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Time.Equal(got[i].Time))
		got[i].Time = want[i].Time
		assert.Equal(t, want[i], got[i])
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := EncodeNotification(sample(1, EventRoamingStart))
	require.NoError(t, err)
	b, err := EncodeNotification(sample(1, EventRoamingStart))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	n, err := DecodeNotification(a)
	require.NoError(t, err)
	assert.Equal(t, EventRoamingStart, n.Event)
}

func TestEventNames(t *testing.T) {
	for k := EventSessionOpened; k <= EventScanComplete; k++ {
		parsed, err := ParseEventKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseEventKind("nope")
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)
}
