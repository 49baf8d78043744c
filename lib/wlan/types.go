package wlan

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// SessionID addresses one virtual interface in the session arena.
// Valid values are 0..MaxSessions-1; validity is checked by the session store.
type SessionID uint8

// String returns the session id in the form used in log fields.
func (id SessionID) String() string {
	return fmt.Sprintf("sta%d", uint8(id))
}

// BSSID is a 48-bit IEEE MAC address identifying a BSS or a station.
type BSSID [6]byte

// ParseBSSID parses colon, dash or dot separated MAC notation.
func ParseBSSID(s string) (BSSID, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return BSSID{}, fmt.Errorf("invalid BSSID %q: %w", s, ErrInvalidParameter)
	}
	if len(hw) != 6 {
		return BSSID{}, fmt.Errorf("BSSID %q is not 48 bits: %w", s, ErrInvalidParameter)
	}
	var b BSSID
	copy(b[:], hw)
	return b, nil
}

// BSSIDFromHardwareAddr converts a net.HardwareAddr, truncating or zero-padding to 6 bytes.
func BSSIDFromHardwareAddr(hw net.HardwareAddr) BSSID {
	var b BSSID
	copy(b[:], hw)
	return b
}

// IsZero reports whether the address is all zeroes.
func (b BSSID) IsZero() bool {
	return b == BSSID{}
}

// HardwareAddr returns the address as a net.HardwareAddr.
func (b BSSID) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, 6)
	copy(hw, b[:])
	return hw
}

// String formats the address as lower-case colon separated hex.
func (b BSSID) String() string {
	parts := make([]string, 6)
	for i, v := range b {
		parts[i] = hex.EncodeToString([]byte{v})
	}
	return strings.Join(parts, ":")
}

// MarshalText implements encoding.TextMarshaler.
func (b BSSID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BSSID) UnmarshalText(text []byte) error {
	parsed, err := ParseBSSID(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// BSSType distinguishes infrastructure, independent and hosted BSSes.
type BSSType uint8

const (
	BSSInfrastructure BSSType = iota // station joins an access point
	BSSIndependent                   // IBSS (ad-hoc)
	BSSAccessPoint                   // station hosts the BSS (start-BSS)
	BSSWDS                           // wireless distribution system link
)

// String returns the BSS type name.
func (t BSSType) String() string {
	switch t {
	case BSSInfrastructure:
		return "infra"
	case BSSIndependent:
		return "ibss"
	case BSSAccessPoint:
		return "ap"
	case BSSWDS:
		return "wds"
	default:
		return fmt.Sprintf("bsstype(%d)", uint8(t))
	}
}

// ParseBSSType parses the names produced by BSSType.String.
func ParseBSSType(s string) (BSSType, error) {
	switch strings.ToLower(s) {
	case "", "infra", "infrastructure":
		return BSSInfrastructure, nil
	case "ibss", "adhoc":
		return BSSIndependent, nil
	case "ap":
		return BSSAccessPoint, nil
	case "wds":
		return BSSWDS, nil
	default:
		return 0, fmt.Errorf("unknown BSS type %q: %w", s, ErrInvalidParameter)
	}
}

// Hosted reports whether the station itself creates the BSS with start-BSS.
func (t BSSType) Hosted() bool {
	return t == BSSAccessPoint || t == BSSIndependent
}

// Band is a frequency band.
type Band uint8

const (
	BandAuto Band = iota
	Band2GHz
	Band5GHz
	Band6GHz
)

// String returns the conventional band name.
func (b Band) String() string {
	switch b {
	case BandAuto:
		return "auto"
	case Band2GHz:
		return "2.4GHz"
	case Band5GHz:
		return "5GHz"
	case Band6GHz:
		return "6GHz"
	default:
		return fmt.Sprintf("band(%d)", uint8(b))
	}
}

// ParseBand parses band names such as "2.4", "2.4GHz", "5" or "auto".
func ParseBand(s string) (Band, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "ghz") {
	case "", "auto":
		return BandAuto, nil
	case "2.4", "2":
		return Band2GHz, nil
	case "5":
		return Band5GHz, nil
	case "6":
		return Band6GHz, nil
	default:
		return 0, fmt.Errorf("unknown band %q: %w", s, ErrInvalidParameter)
	}
}

// ChannelFromFrequency maps a centre frequency in MHz to its band and channel number.
// Returns ok=false for frequencies outside the 2.4, 5 and 6 GHz channel plans.
func ChannelFromFrequency(mhz int) (band Band, channel int, ok bool) {
	switch {
	case mhz == 2484:
		return Band2GHz, 14, true
	case mhz >= 2412 && mhz <= 2472:
		return Band2GHz, (mhz - 2407) / 5, true
	case mhz >= 5955 && mhz <= 7115:
		return Band6GHz, (mhz - 5950) / 5, true
	case mhz >= 5160 && mhz <= 5885:
		return Band5GHz, (mhz - 5000) / 5, true
	default:
		return BandAuto, 0, false
	}
}

// RoamReason records why a roam command was issued.
type RoamReason uint8

const (
	ReasonConnect          RoamReason = iota // user connect request
	ReasonLostLink                           // recovery after a lost link
	ReasonReassoc                            // user requested reassociation
	ReasonCapabilityChange                   // AP capability change, reassociate to self
	ReasonForcedDisassoc                     // forced disassociation (priority)
	ReasonDisconnect                         // user disconnect
	ReasonDeauthHandoff                      // deauthenticate on handoff (priority)
	ReasonStopBss                            // tear down a hosted BSS
)

// String returns the reason name.
func (r RoamReason) String() string {
	switch r {
	case ReasonConnect:
		return "connect"
	case ReasonLostLink:
		return "lost_link"
	case ReasonReassoc:
		return "reassoc"
	case ReasonCapabilityChange:
		return "capability_change"
	case ReasonForcedDisassoc:
		return "forced_disassoc"
	case ReasonDisconnect:
		return "disconnect"
	case ReasonDeauthHandoff:
		return "deauth_handoff"
	case ReasonStopBss:
		return "stop_bss"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// JoinType reports whether the reason leads to a join/reassociation attempt
// (as opposed to a teardown).
func (r RoamReason) JoinType() bool {
	switch r {
	case ReasonConnect, ReasonLostLink, ReasonReassoc, ReasonCapabilityChange:
		return true
	default:
		return false
	}
}
