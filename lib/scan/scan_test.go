package scan

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/mdlayher/wifi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func bss(last byte, ssid string, rssi int) *BSSDescription {
	return &BSSDescription{
		BSSID:   wlan.BSSID{0x02, 0, 0, 0, 0, last},
		SSID:    ssid,
		Channel: 6,
		Band:    wlan.Band2GHz,
		RSSI:    rssi,
	}
}

func TestCacheOrdersByRSSI(t *testing.T) {
	c := NewCache()
	c.Update(bss(1, "home", -70), bss(2, "home", -40), bss(3, "home", -55), bss(4, "work", -30))

	list, err := c.GetCandidates(Filter{SSIDs: []string{"home"}})
	require.NoError(t, err)
	require.Equal(t, 3, list.Len())
	assert.Equal(t, -40, list.At(0).RSSI)
	assert.Equal(t, -55, list.At(1).RSSI)
	assert.Equal(t, -70, list.At(2).RSSI)
	assert.Equal(t, 1, c.Outstanding())

	c.ReleaseCandidates(list)
	assert.Equal(t, 0, c.Outstanding())
	c.ReleaseCandidates(list) // double release is logged and ignored
	assert.Equal(t, 0, c.Outstanding())
}

func TestCacheListsAreSnapshots(t *testing.T) {
	c := NewCache()
	c.Update(bss(1, "home", -50))
	list, err := c.GetCandidates(Filter{})
	require.NoError(t, err)
	c.Update(bss(1, "home", -90))
	assert.Equal(t, -50, list.At(0).RSSI)
}

func TestCacheMaxCandidatesAndAge(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCache(WithMaxCandidates(2), WithMaxAge(time.Minute), WithClock(func() time.Time { return now }))
	stale := bss(9, "home", -20)
	stale.LastSeen = now.Add(-2 * time.Minute)
	c.Update(bss(1, "home", -50), bss(2, "home", -60), bss(3, "home", -70), stale)

	list, err := c.GetCandidates(Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	assert.Equal(t, -50, list.At(0).RSSI, "stale entry must be dropped")
}

func TestCacheShouldRoamTo(t *testing.T) {
	assert.True(t, NewCache().ShouldRoamTo(0, bss(1, "home", -95)), "no policy admits everything")

	c := NewCache(WithPolicy(func(_ wlan.SessionID, b *BSSDescription) bool {
		return b.SSID != "blocked"
	}))
	assert.True(t, c.ShouldRoamTo(0, bss(1, "home", -80)))
	assert.False(t, c.ShouldRoamTo(0, bss(1, "blocked", -60)))
}

func TestFilterForProfile(t *testing.T) {
	target := wlan.BSSID{0x02, 0, 0, 0, 0, 7}
	f := FilterForProfile(&security.Profile{SSID: "home", BSSIDs: []wlan.BSSID{target}, Band: wlan.Band2GHz})

	hit := bss(7, "home", -50)
	assert.True(t, f.Match(hit))
	assert.False(t, f.Match(bss(8, "home", -50)))

	ibss := bss(7, "home", -50)
	ibss.BSSType = wlan.BSSIndependent
	assert.False(t, f.Match(ibss))

	five := bss(7, "home", -50)
	five.Band = wlan.Band5GHz
	assert.False(t, f.Match(five))
}

func TestFromWifiBSS(t *testing.T) {
	now := time.Unix(5000, 0)
	d, err := FromWifiBSS(&wifi.BSS{
		SSID:      "cafe",
		BSSID:     net.HardwareAddr{0x02, 1, 2, 3, 4, 5},
		Frequency: 5180,
		LastSeen:  3 * time.Second,
	}, -61, now)
	require.NoError(t, err)
	assert.Equal(t, "cafe", d.SSID)
	assert.Equal(t, wlan.Band5GHz, d.Band)
	assert.Equal(t, 36, d.Channel)
	assert.Equal(t, -61, d.RSSI)
	assert.Equal(t, now.Add(-3*time.Second), d.LastSeen)

	_, err = FromWifiBSS(&wifi.BSS{BSSID: net.HardwareAddr{1, 2, 3}, Frequency: 2412}, 0, now)
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)
	_, err = FromWifiBSS(&wifi.BSS{BSSID: net.HardwareAddr{1, 2, 3, 4, 5, 6}, Frequency: 100}, 0, now)
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)

	c := NewCache(WithClock(func() time.Time { return now }))
	require.NoError(t, c.UpdateFromWifi(&wifi.BSS{SSID: "cafe", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 1}, Frequency: 2437}, -50))
	require.Len(t, c.Entries(), 1)
	assert.Equal(t, 6, c.Entries()[0].Channel)
}

func TestCacheScan(t *testing.T) {
	c := NewCache()
	err := c.Scan(0, Filter{}, func(error) {})
	assert.ErrorIs(t, err, wlan.ErrWrongState)

	c = NewCache(WithSource(func(_ context.Context, _ Filter) ([]*BSSDescription, error) {
		return []*BSSDescription{bss(1, "fresh", -40)}, nil
	}))
	done := make(chan error, 1)
	require.NoError(t, c.Scan(1, Filter{}, func(err error) { done <- err }))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scan did not complete")
	}
	assert.Len(t, c.Entries(), 1)

	boom := errors.New("radio off")
	c = NewCache(WithSource(func(context.Context, Filter) ([]*BSSDescription, error) { return nil, boom }))
	require.NoError(t, c.Scan(1, Filter{}, func(err error) { done <- err }))
	assert.ErrorIs(t, <-done, boom)
}

type fakeWifi struct {
	ifis []*wifi.Interface
	bss  map[string]*wifi.BSS
	sig  map[string]int
}

func (f *fakeWifi) Interfaces() ([]*wifi.Interface, error) { return f.ifis, nil }

func (f *fakeWifi) BSS(ifi *wifi.Interface) (*wifi.BSS, error) {
	b, ok := f.bss[ifi.Name]
	if !ok {
		return nil, errors.New("not associated")
	}
	return b, nil
}

func (f *fakeWifi) StationInfo(ifi *wifi.Interface) ([]*wifi.StationInfo, error) {
	s, ok := f.sig[ifi.Name]
	if !ok {
		return nil, errors.New("no station")
	}
	return []*wifi.StationInfo{{Signal: s}}, nil
}

func TestWifiSource(t *testing.T) {
	fw := &fakeWifi{
		ifis: []*wifi.Interface{
			{Name: "wlan0", Type: wifi.InterfaceTypeStation},
			{Name: "wlan1", Type: wifi.InterfaceTypeStation},
			{Name: "ap0", Type: wifi.InterfaceTypeAP},
		},
		bss: map[string]*wifi.BSS{
			"wlan0": {SSID: "lab", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 1}, Frequency: 2437},
			"ap0":   {SSID: "hosted", BSSID: net.HardwareAddr{2, 0, 0, 0, 0, 9}, Frequency: 2412},
		},
		sig: map[string]int{"wlan0": -48},
	}
	src := WifiSource(fw)

	got, err := src(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1, "unassociated and AP interfaces are skipped")
	assert.Equal(t, "lab", got[0].SSID)
	assert.Equal(t, -48, got[0].RSSI)
	assert.Equal(t, 6, got[0].Channel)

	got, err = src(context.Background(), Filter{SSIDs: []string{"other"}})
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src(ctx, Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
