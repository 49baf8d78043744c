package wlan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBSSID(t *testing.T) {
	b, err := ParseBSSID("02:00:00:aa:bb:cc")
	require.NoError(t, err)
	assert.Equal(t, "02:00:00:aa:bb:cc", b.String())
	assert.False(t, b.IsZero())

	_, err = ParseBSSID("not-a-mac")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// 64-bit EUI is rejected
	_, err = ParseBSSID("02:00:00:00:00:00:00:01")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBSSIDTextRoundTrip(t *testing.T) {
	var b BSSID
	require.NoError(t, b.UnmarshalText([]byte("0A-0B-0C-0D-0E-0F")))
	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0a:0b:0c:0d:0e:0f", string(text))
	assert.Equal(t, b, BSSIDFromHardwareAddr(b.HardwareAddr()))
}

func TestChannelFromFrequency(t *testing.T) {
	tests := []struct {
		mhz     int
		band    Band
		channel int
		ok      bool
	}{
		{2412, Band2GHz, 1, true},
		{2437, Band2GHz, 6, true},
		{2484, Band2GHz, 14, true},
		{5180, Band5GHz, 36, true},
		{5825, Band5GHz, 165, true},
		{5955, Band6GHz, 1, true},
		{900, BandAuto, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.mhz), func(t *testing.T) {
			band, ch, ok := ChannelFromFrequency(tt.mhz)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.band, band)
			assert.Equal(t, tt.channel, ch)
		})
	}
}

func TestParseBandAndType(t *testing.T) {
	b, err := ParseBand("2.4GHz")
	require.NoError(t, err)
	assert.Equal(t, Band2GHz, b)
	_, err = ParseBand("60")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	bt, err := ParseBSSType("adhoc")
	require.NoError(t, err)
	assert.Equal(t, BSSIndependent, bt)
	assert.True(t, bt.Hosted())
	assert.False(t, BSSInfrastructure.Hosted())
}

func TestRoamReasonJoinType(t *testing.T) {
	assert.True(t, ReasonConnect.JoinType())
	assert.True(t, ReasonLostLink.JoinType())
	assert.True(t, ReasonCapabilityChange.JoinType())
	assert.False(t, ReasonDisconnect.JoinType())
	assert.False(t, ReasonForcedDisassoc.JoinType())
	assert.False(t, ReasonStopBss.JoinType())
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultOf(nil))
	assert.Equal(t, ResultWrongState, ResultOf(ErrWrongState))
	assert.Equal(t, ResultTimeout, ResultOf(fmt.Errorf("wait for key: %w", ErrTimeout)))
	assert.Equal(t, ResultTransportFailure, ResultOf(oops.Wrapf(ErrTransportFailure, "send join")))
	assert.Equal(t, ResultCancelled, ResultOf(context.Canceled))
	assert.Equal(t, ResultFailure, ResultOf(errors.New("boom")))
}

func TestResultErrRoundTrip(t *testing.T) {
	for r := ResultSuccess; r <= ResultSilentStop; r++ {
		err := r.Err()
		if r.Succeeded() {
			assert.NoError(t, err, r.String())
			continue
		}
		require.Error(t, err, r.String())
		assert.Equal(t, r, ResultOf(err), r.String())
	}
	assert.Equal(t, "result(200)", Result(200).String())
}

func TestParseResult(t *testing.T) {
	r, err := ParseResult("reassoc_to_self_no_change")
	require.NoError(t, err)
	assert.Equal(t, ResultReassocToSelfNoChange, r)

	_, err = ParseResult("great")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
