package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

func TestRequestConfirmCorrelation(t *testing.T) {
	a := NewRequest(OpJoin, 1)
	b := NewRequest(OpJoin, 1)
	assert.NotEqual(t, uuid.Nil, a.Token)
	assert.NotEqual(t, a.Token, b.Token, "two same-typed requests must be distinguishable")

	c := a.Confirm(StatusSuccess)
	assert.Equal(t, a.Token, c.Token)
	assert.Equal(t, OpJoin, c.Op)
	assert.Equal(t, wlan.SessionID(1), c.Session)
	assert.NoError(t, c.Err())
}

func TestConfirmErr(t *testing.T) {
	req := NewRequest(OpReassociate, 0)
	assert.ErrorIs(t, req.Confirm(StatusTimeout).Err(), wlan.ErrTimeout)
	assert.Equal(t, wlan.ResultFailure, wlan.ResultOf(req.Confirm(StatusRefused).Err()))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "start_bss", OpStartBss.String())
	assert.Equal(t, "op(99)", Op(99).String())
	assert.True(t, IndBeaconLoss.LinkLoss())
	assert.False(t, IndCapabilityChanged.LinkLoss())
}

func TestParseNames(t *testing.T) {
	op, err := ParseOp("start_bss")
	assert.NoError(t, err)
	assert.Equal(t, OpStartBss, op)
	_, err = ParseOp("warp")
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)

	st, err := ParseStatus("refused")
	assert.NoError(t, err)
	assert.Equal(t, StatusRefused, st)

	k, err := ParseIndicationKind("beacon_loss")
	assert.NoError(t, err)
	assert.Equal(t, IndBeaconLoss, k)
	_, err = ParseIndicationKind("sunspots")
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)
}
