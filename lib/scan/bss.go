package scan

import (
	"fmt"
	"slices"
	"time"

	"github.com/mdlayher/wifi"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// BSSDescription is one scan result.
type BSSDescription struct {
	BSSID   wlan.BSSID
	SSID    string
	BSSType wlan.BSSType
	Channel int
	Band    wlan.Band
	// RSSI in dBm.
	RSSI     int
	Privacy  bool
	Auth     security.AuthMode
	Pairwise security.Cipher
	Group    security.Cipher
	// ConcurrencyExempt marks a BSS that may be joined even when another
	// session holds a different fixed channel (e.g. a DFS-exempt peer).
	ConcurrencyExempt bool
	LastSeen          time.Time
}

// String formats the description for logs.
func (b *BSSDescription) String() string {
	return fmt.Sprintf("%s %q ch%d %ddBm", b.BSSID, b.SSID, b.Channel, b.RSSI)
}

// Clone returns a copy that does not share storage with b.
func (b *BSSDescription) Clone() *BSSDescription {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// FromWifiBSS converts an nl80211 BSS record. rssi is supplied separately
// because the kernel reports signal strength on the station, not the BSS.
func FromWifiBSS(b *wifi.BSS, rssi int, now time.Time) (*BSSDescription, error) {
	if b == nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "nil wifi BSS")
	}
	if len(b.BSSID) != 6 {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "BSSID %v is not 48 bits", b.BSSID)
	}
	band, ch, ok := wlan.ChannelFromFrequency(b.Frequency)
	if !ok {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "frequency %d MHz outside known channel plans", b.Frequency)
	}
	return &BSSDescription{
		BSSID:    wlan.BSSIDFromHardwareAddr(b.BSSID),
		SSID:     b.SSID,
		BSSType:  wlan.BSSInfrastructure,
		Channel:  ch,
		Band:     band,
		RSSI:     rssi,
		LastSeen: now.Add(-b.LastSeen),
	}, nil
}

// Filter selects scan results for a roam attempt. Empty fields match anything.
type Filter struct {
	SSIDs  []string
	BSSIDs []wlan.BSSID
	// BSSType is only compared when TypeSet is true.
	BSSType wlan.BSSType
	TypeSet bool
	Band    wlan.Band
}

// FilterForProfile builds the candidate filter for a connect profile.
func FilterForProfile(p *security.Profile) Filter {
	f := Filter{BSSType: p.BSSType, TypeSet: true, Band: p.Band}
	if p.SSID != "" {
		f.SSIDs = []string{p.SSID}
	}
	if len(p.BSSIDs) > 0 {
		f.BSSIDs = slices.Clone(p.BSSIDs)
	}
	return f
}

// Match reports whether a description passes the filter.
func (f Filter) Match(b *BSSDescription) bool {
	if len(f.SSIDs) > 0 && !slices.Contains(f.SSIDs, b.SSID) {
		return false
	}
	if len(f.BSSIDs) > 0 && !slices.Contains(f.BSSIDs, b.BSSID) {
		return false
	}
	if f.TypeSet && f.BSSType != b.BSSType {
		return false
	}
	if f.Band != wlan.BandAuto && f.Band != b.Band {
		return false
	}
	return true
}
