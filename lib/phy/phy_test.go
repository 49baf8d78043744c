package phy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		band    wlan.Band
		mode    Mode
		channel int
		want    Selection
	}{
		{"all auto", wlan.BandAuto, ModeAuto, 0, Selection{Mode11n, wlan.Band2GHz, 6, Width20}},
		{"channel implies 5GHz", wlan.BandAuto, ModeAuto, 44, Selection{Mode11ac, wlan.Band5GHz, 44, Width80}},
		{"11a implies 5GHz", wlan.BandAuto, Mode11a, 0, Selection{Mode11a, wlan.Band5GHz, 36, Width20}},
		{"11n on 5GHz bonds 40", wlan.Band5GHz, Mode11n, 149, Selection{Mode11n, wlan.Band5GHz, 149, Width40}},
		{"channel 165 stays 20", wlan.Band5GHz, Mode11ac, 165, Selection{Mode11ac, wlan.Band5GHz, 165, Width20}},
		{"6GHz default", wlan.Band6GHz, ModeAuto, 0, Selection{Mode11ax, wlan.Band6GHz, 5, Width80}},
		{"11b", wlan.Band2GHz, Mode11b, 1, Selection{Mode11b, wlan.Band2GHz, 1, Width20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.band, tt.mode, tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectRejects(t *testing.T) {
	cases := []struct {
		band    wlan.Band
		mode    Mode
		channel int
	}{
		{wlan.Band2GHz, Mode11ac, 0},
		{wlan.Band5GHz, Mode11g, 0},
		{wlan.Band6GHz, Mode11n, 0},
		{wlan.Band2GHz, ModeAuto, 36},
		{wlan.Band5GHz, ModeAuto, 37},
		{wlan.Band(9), ModeAuto, 0},
	}
	for _, c := range cases {
		_, err := Select(c.band, c.mode, c.channel)
		assert.ErrorIs(t, err, wlan.ErrInvalidParameter, "%s %s ch%d", c.band, c.mode, c.channel)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "n": Mode11n, "802.11ac": Mode11ac, "11AX": Mode11ax, "auto": ModeAuto} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("11z")
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)
	assert.Equal(t, "80MHz", Width80.String())
}
