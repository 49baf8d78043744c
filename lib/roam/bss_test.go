package roam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/session"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

func TestStartIBSSThenSilentStop(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()
	mesh := &security.Profile{SSID: "mesh", BSSType: wlan.BSSIndependent, Channel: 6}

	_, err := h.m.Connect(id, mesh)
	require.NoError(t, err)
	h.sync()
	req := h.engine.last(t)
	require.Equal(t, wire.OpStartBss, req.Op)
	assert.Equal(t, selfAddr, req.BSS.BSSID)
	assert.Equal(t, wlan.BSSIndependent, req.BSS.BSSType)
	assert.Equal(t, 6, req.Phy.Channel)

	h.confirm(wire.StatusSuccess)
	assert.Equal(t, session.KindJoined, h.info(id).Kind)
	assert.Equal(t, wlan.ResultSuccess, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Equal(t, 1, h.rec.Count(id, notify.EventLinkUp))
	assert.Zero(t, h.cache.Outstanding())

	sent := h.engine.count()
	_, err = h.m.Connect(id, mesh)
	require.NoError(t, err)
	h.sync()
	assert.Equal(t, sent, h.engine.count())
	assert.Equal(t, wlan.ResultSilentStop, h.last(id, notify.EventRoamingCompletion).Result)
	assert.True(t, wlan.ResultSilentStop.Succeeded())
}

func TestJoinAdvertisedIBSS(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()
	peer := infraBSS(apB, "mesh", -60)
	peer.BSSType = wlan.BSSIndependent
	h.cache.Update(peer)

	_, err := h.m.Connect(id, &security.Profile{SSID: "mesh", BSSType: wlan.BSSIndependent})
	require.NoError(t, err)
	h.sync()
	req := h.engine.last(t)
	require.Equal(t, wire.OpJoin, req.Op)
	assert.Equal(t, apB, req.BSS.BSSID)

	// IBSS joins are bounded by the IBSS timer, not the join retry timer
	h.advance(2 * time.Second)
	assert.Zero(t, h.rec.Count(id, notify.EventRoamingCompletion))
	h.advance(time.Second)
	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventRoamingCompletion).Result)
}

func TestStartIBSSTimesOut(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()

	_, err := h.m.Connect(id, &security.Profile{SSID: "mesh", BSSType: wlan.BSSIndependent})
	require.NoError(t, err)
	h.sync()
	require.Equal(t, wire.OpStartBss, h.engine.last(t).Op)

	h.advance(3 * time.Second)
	assert.Equal(t, wlan.ResultTimeout, h.last(id, notify.EventRoamingCompletion).Result)
	assert.Equal(t, session.KindIdle, h.info(id).Kind)
}

func TestHostedAccessPoint(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()
	station := wlan.BSSID{0x0e, 0, 0, 0, 0, 0x01}

	_, err := h.m.Connect(id, &security.Profile{SSID: "hotspot", BSSType: wlan.BSSAccessPoint, Channel: 1})
	require.NoError(t, err)
	h.sync()
	require.Equal(t, wire.OpStartBss, h.engine.last(t).Op)
	h.confirm(wire.StatusSuccess)
	require.Equal(t, selfAddr, h.info(id).BSSID)

	// disassociating one client keeps the BSS up
	_, err = h.m.ForceDisassociate(id, station, 4)
	require.NoError(t, err)
	h.sync()
	req := h.engine.last(t)
	require.Equal(t, wire.OpDisassociate, req.Op)
	assert.Equal(t, station, req.Peer)
	assert.Equal(t, uint16(4), req.ReasonCode)
	h.confirm(wire.StatusSuccess)

	forced := h.last(id, notify.EventDisconnectForced)
	assert.Equal(t, station, forced.Info.BSSID)
	assert.Equal(t, session.KindJoined, h.info(id).Kind)

	_, err = h.m.StopBss(id)
	require.NoError(t, err)
	h.sync()
	require.Equal(t, wire.OpStopBss, h.engine.last(t).Op)
	h.confirm(wire.StatusSuccess)

	assert.Equal(t, session.KindIdle, h.info(id).Kind)
	assert.Equal(t, wlan.ResultSuccess, h.last(id, notify.EventRoamingCompletion).Result)
}

func TestStopBssNeedsHostedBSS(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	_, err := h.m.StopBss(id)
	assert.ErrorIs(t, err, wlan.ErrWrongState)
}

func TestDeauthenticateForHandoff(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := connected(t, h)

	_, err := h.m.Deauthenticate(id, wlan.BSSID{}, 0)
	require.NoError(t, err)
	h.sync()
	req := h.engine.last(t)
	require.Equal(t, wire.OpDeauthenticate, req.Op)
	assert.Equal(t, reasonDeauthLeaving, req.ReasonCode)
	assert.Equal(t, apA, req.Peer)
	h.confirm(wire.StatusSuccess)

	assert.Equal(t, wlan.ResultSuccess, h.last(id, notify.EventDisconnectForced).Result)
	assert.Equal(t, session.KindIdle, h.info(id).Kind)
}

func TestStaticKeysInstalledAfterJoin(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	id := h.open()
	h.cache.Update(infraBSS(apA, "legacy", -40))
	profile := &security.Profile{
		SSID: "legacy",
		StaticKeys: []security.KeyMaterial{
			{Cipher: security.CipherWEP104, KeyID: 0, Key: make([]byte, 13)},
			{Cipher: security.CipherWEP104, KeyID: 1, Key: make([]byte, 13)},
		},
	}

	_, err := h.m.Connect(id, profile)
	require.NoError(t, err)
	h.sync()
	h.confirm(wire.StatusSuccess)

	first := h.engine.last(t)
	require.Equal(t, wire.OpSetKey, first.Op)
	assert.Equal(t, uint8(0), first.Key.KeyID)
	h.confirm(wire.StatusSuccess)
	assert.Equal(t, 1, h.rec.Count(id, notify.EventLinkUp))

	second := h.engine.last(t)
	require.Equal(t, wire.OpSetKey, second.Op)
	assert.Equal(t, uint8(1), second.Key.KeyID)
	h.confirm(wire.StatusSuccess)
	assert.Equal(t, 1, h.rec.Count(id, notify.EventLinkUp))
	assert.Equal(t, 2, h.info(id).Keys)
}
