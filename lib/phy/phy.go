// Package phy picks the PHY mode, band, channel and channel width used for a
// join or start-BSS request. The choice is made once per request through a
// small decision table instead of being re-derived at every call site.
package phy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Mode is an 802.11 PHY generation.
type Mode uint8

const (
	ModeAuto Mode = iota
	Mode11b
	Mode11g
	Mode11a
	Mode11n
	Mode11ac
	Mode11ax
)

var modeNames = []string{"auto", "11b", "11g", "11a", "11n", "11ac", "11ax"}

// String returns the short mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses "11n", "n", "802.11n" and similar spellings.
func ParseMode(s string) (Mode, error) {
	name := strings.TrimPrefix(strings.ToLower(s), "802.")
	if name == "" {
		return ModeAuto, nil
	}
	if !strings.HasPrefix(name, "11") && name != "auto" {
		name = "11" + name
	}
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return ModeAuto, oops.Wrapf(wlan.ErrInvalidParameter, "unknown phy mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Width is a channel bandwidth in MHz.
type Width uint16

const (
	Width20  Width = 20
	Width40  Width = 40
	Width80  Width = 80
	Width160 Width = 160
)

// String returns the width with its unit.
func (w Width) String() string { return fmt.Sprintf("%dMHz", uint16(w)) }

// Selection is the outcome of Select.
type Selection struct {
	Mode    Mode
	Band    wlan.Band
	Channel int
	Width   Width
}

// String formats the selection for logs.
func (s Selection) String() string {
	return fmt.Sprintf("%s/%s/ch%d/%s", s.Mode, s.Band, s.Channel, s.Width)
}

// Channels lists the valid 20MHz primaries per band.
var Channels = map[wlan.Band][]int{
	wlan.Band2GHz: {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
	wlan.Band5GHz: {36, 40, 44, 48, 52, 56, 60, 64, 100, 104, 108,
		112, 116, 120, 124, 128, 132, 136, 140, 144, 149, 153,
		157, 161, 165},
	wlan.Band6GHz: sixGHzChannels(),
}

func sixGHzChannels() []int {
	var chans []int
	for ch := 1; ch <= 233; ch += 4 {
		chans = append(chans, ch)
	}
	return chans
}

var defaultChannel = map[wlan.Band]int{
	wlan.Band2GHz: 6,
	wlan.Band5GHz: 36,
	wlan.Band6GHz: 5,
}

var defaultMode = map[wlan.Band]Mode{
	wlan.Band2GHz: Mode11n,
	wlan.Band5GHz: Mode11ac,
	wlan.Band6GHz: Mode11ax,
}

type tableKey struct {
	band wlan.Band
	mode Mode
}

// widthTable holds the allowed (band, mode) pairs and their widest channel.
var widthTable = map[tableKey]Width{
	{wlan.Band2GHz, Mode11b}:  Width20,
	{wlan.Band2GHz, Mode11g}:  Width20,
	{wlan.Band2GHz, Mode11n}:  Width20,
	{wlan.Band2GHz, Mode11ax}: Width20,
	{wlan.Band5GHz, Mode11a}:  Width20,
	{wlan.Band5GHz, Mode11n}:  Width40,
	{wlan.Band5GHz, Mode11ac}: Width80,
	{wlan.Band5GHz, Mode11ax}: Width80,
	{wlan.Band6GHz, Mode11ax}: Width80,
}

// unbonded are primaries without a partner channel for 40MHz and wider.
var unbonded = map[wlan.Band][]int{
	wlan.Band2GHz: {14},
	wlan.Band5GHz: {144, 165},
	wlan.Band6GHz: {233},
}

// Select resolves a requested band, mode and channel into a concrete
// selection. Zero values mean "pick for me". Requests that combine a band with
// a mode or channel it does not support fail with wlan.ErrInvalidParameter.
func Select(band wlan.Band, mode Mode, channel int) (Selection, error) {
	band = inferBand(band, mode, channel)
	if _, ok := Channels[band]; !ok {
		return Selection{}, oops.Wrapf(wlan.ErrInvalidParameter, "unsupported band %s", band)
	}
	if mode == ModeAuto {
		mode = defaultMode[band]
	}
	width, ok := widthTable[tableKey{band, mode}]
	if !ok {
		return Selection{}, oops.Wrapf(wlan.ErrInvalidParameter, "%s is not available on %s", mode, band)
	}
	if channel == 0 {
		channel = defaultChannel[band]
	}
	if !slices.Contains(Channels[band], channel) {
		return Selection{}, oops.Wrapf(wlan.ErrInvalidParameter, "channel %d is not in %s", channel, band)
	}
	if slices.Contains(unbonded[band], channel) {
		width = Width20
	}
	return Selection{Mode: mode, Band: band, Channel: channel, Width: width}, nil
}

func inferBand(band wlan.Band, mode Mode, channel int) wlan.Band {
	if band != wlan.BandAuto {
		return band
	}
	switch {
	case channel > 0 && channel <= 14:
		return wlan.Band2GHz
	case channel > 14:
		return wlan.Band5GHz
	case mode == Mode11a || mode == Mode11ac:
		return wlan.Band5GHz
	default:
		return wlan.Band2GHz
	}
}
