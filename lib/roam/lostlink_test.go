package roam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func loseLink(h *harness, id wlan.SessionID, kind wire.IndicationKind, code uint16) {
	h.t.Helper()
	h.m.Indicate(&wire.Indication{Kind: kind, Session: id, Peer: apA, ReasonCode: code})
	h.sync()
}

func TestLostLinkRecoversOnRescan(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	loseLink(h, id, wire.IndBeaconLoss, 0)
	info := h.info(id)
	assert.True(t, info.Roaming)
	assert.Equal(t, wlan.ReasonLostLink.String(), info.RoamReason)
	assert.Equal(t, session.KindIdle, info.Kind)

	h.cache.Update(infraBSS(apB, "lab", -50))
	h.advance(500 * time.Millisecond)
	req := h.engine.last(t)
	require.Equal(t, wire.OpJoin, req.Op)
	assert.Equal(t, apB, req.BSS.BSSID)
	h.confirm(wire.StatusSuccess)

	assert.Equal(t, []notify.EventKind{
		notify.EventLostLink,
		notify.EventRoamingStart,
		notify.EventAssociationStart,
		notify.EventAssociationComplete,
		notify.EventLinkUp,
		notify.EventRoamingCompletion,
	}, h.rec.Kinds(id))
	start := h.last(id, notify.EventRoamingStart)
	done := h.last(id, notify.EventRoamingCompletion)
	assert.Equal(t, start.RoamID, done.RoamID)
	assert.Equal(t, wlan.ResultSuccess, done.Result)
	assert.Equal(t, apA, h.last(id, notify.EventLostLink).Info.BSSID)

	info = h.info(id)
	assert.False(t, info.Roaming)
	assert.Equal(t, apB, info.BSSID)

	// the roaming window was stopped with the recovery
	before := len(h.rec.For(id))
	h.advance(time.Minute)
	assert.Len(t, h.rec.For(id), before)
}

func TestLostLinkGivesUpAfterRescans(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	loseLink(h, id, wire.IndDisassociated, 0)
	h.advance(500 * time.Millisecond)
	assert.Zero(t, h.rec.Count(id, notify.EventRoamingCompletion))
	h.advance(time.Second)

	assert.Equal(t, wlan.ResultNoCandidates, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Equal(t, wlan.ResultNoCandidates, h.last(id, notify.EventDisconnectForced).Result)
	assert.False(t, h.info(id).Roaming)
	assert.Zero(t, h.cache.Outstanding())
}

func TestDisconnectDuringRecoveryIsNotForced(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	loseLink(h, id, wire.IndBeaconLoss, 0)
	require.True(t, h.info(id).Roaming)
	require.NoError(t, h.m.Disconnect(id))
	h.sync()

	assert.Equal(t, wlan.ResultCancelled, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Zero(t, h.rec.Count(id, notify.EventDisconnectForced), "the user asked for it")
	assert.False(t, h.info(id).Roaming)

	// no rescan is left behind
	h.advance(time.Minute)
	assert.Equal(t, 1, h.rec.Count(id, notify.EventRoamingCompletion))
}

func TestRoamingWindowClosesRecovery(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRescans = 100
	cfg.Rescan = Backoff{Initial: 4 * time.Second, Multiplier: 1}
	h := newHarness(t, cfg, nil)
	id := connected(t, h)

	loseLink(h, id, wire.IndBeaconLoss, 0)
	h.advance(4 * time.Second)
	assert.Zero(t, h.rec.Count(id, notify.EventRoamingCompletion))
	h.advance(6 * time.Second)

	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventDisconnectForced).Result)
	assert.False(t, h.info(id).Roaming)
}

func TestRoamingWindowWaitsForOutstandingJoin(t *testing.T) {
	cfg := testConfig()
	cfg.Timers.JoinRetry = 30 * time.Second
	h := newHarness(t, cfg, nil)
	id := connected(t, h)
	h.cache.Update(infraBSS(apB, "lab", -50))

	loseLink(h, id, wire.IndBeaconLoss, 0)
	require.Equal(t, wire.OpJoin, h.engine.last(t).Op)

	h.advance(10 * time.Second)
	assert.Zero(t, h.rec.Count(id, notify.EventRoamingCompletion), "the join on the wire confirms first")

	h.confirm(wire.StatusRefused)
	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventAssociationComplete).Result)
	assert.Zero(t, h.info(id).PendingAssocStart)
}

func TestLostLinkWithoutAutoReconnect(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()
	h.cache.Update(infraBSS(apA, "lab", -40))
	_, err := h.m.Connect(id, &security.Profile{SSID: "lab"})
	require.NoError(t, err)
	h.sync()
	h.confirm(wire.StatusSuccess)
	h.rec.Reset()

	loseLink(h, id, wire.IndDeauthenticated, 7)

	assert.Equal(t, []notify.EventKind{notify.EventLostLink, notify.EventDisconnectForced}, h.rec.Kinds(id))
	assert.Equal(t, uint16(7), h.last(id, notify.EventLostLink).Info.ReasonCode)
	assert.Equal(t, wlan.ResultCancelled, h.last(id, notify.EventDisconnectForced).Result)
	assert.Equal(t, session.KindIdle, h.info(id).Kind)
}

func TestLostLinkForAnotherBSSIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	h.m.Indicate(&wire.Indication{Kind: wire.IndDisassociated, Session: id, Peer: apB})
	h.sync()

	assert.Empty(t, h.rec.For(id))
	assert.Equal(t, session.KindJoined, h.info(id).Kind)
}

func TestLostLinkRecoveriesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LostLinkRate = rate.Limit(1.0 / 60)
	cfg.LostLinkBurst = 1
	h := newHarness(t, cfg, nil)
	id := connected(t, h)
	h.cache.Update(infraBSS(apA, "lab", -40))

	loseLink(h, id, wire.IndBeaconLoss, 0)
	require.Equal(t, wire.OpJoin, h.engine.last(t).Op)
	h.confirm(wire.StatusSuccess)
	require.Equal(t, session.KindJoined, h.info(id).Kind)

	loseLink(h, id, wire.IndBeaconLoss, 0)
	assert.Equal(t, wlan.ResultResourceExhausted, h.last(id, notify.EventDisconnectForced).Result)
	assert.False(t, h.info(id).Roaming)
}

func TestLostLinkDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.RoamOnLostLink = false
	h := newHarness(t, cfg, nil)
	id := connected(t, h)

	loseLink(h, id, wire.IndBeaconLoss, 0)
	assert.Zero(t, h.rec.Count(id, notify.EventRoamingStart))
	assert.Equal(t, 1, h.rec.Count(id, notify.EventDisconnectForced))
}
