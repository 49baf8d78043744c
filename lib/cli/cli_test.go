package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mdlayher/wifi"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-wlan/go-wlan/lib/config"
	"github.com/go-wlan/go-wlan/lib/monitor"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

const connectScenario = "../sim/testdata/connect.yaml"

// configFile writes a config file and resets viper around the test.
func configFile(t *testing.T, body string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		config.CfgFile = ""
	})
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionNeedsNoConfig(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "go-wlan version dev")
}

func TestRunScenarioDirectory(t *testing.T) {
	cfg := configFile(t, "station:\n  max_sessions: 4\n")
	out, err := execute(t, "run", "--config", cfg, "../sim/testdata")
	require.NoError(t, err, out)
	assert.Contains(t, out, "PASS connect-open-network")
	assert.NotContains(t, out, "FAIL")
}

func TestRunReportsFailures(t *testing.T) {
	cfg := configFile(t, "")
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
name: never-links
timeout: 30ms
steps:
  - action: open
  - action: connect
    profile: {ssid: nowhere}
  - action: expect
    event: link_up
`), 0o600))

	out, err := execute(t, "run", "--config", cfg, connectScenario, bad)
	assert.ErrorIs(t, err, wlan.ErrFailure)
	assert.Contains(t, out, "PASS connect-open-network")
	assert.Contains(t, out, "FAIL never-links at step 2")
}

func TestRunRejectsBadInput(t *testing.T) {
	cfg := configFile(t, "")
	_, err := execute(t, "run", "--config", cfg, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--config", cfg, t.TempDir())
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter, "an empty directory has no scenarios")

	_, err = execute(t, "run", "--config", cfg)
	assert.Error(t, err, "at least one path is required")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cfg := configFile(t, "station:\n  max_sessions: 0\n")
	_, err := execute(t, "run", "--config", cfg, connectScenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxSessions")
}

func TestTraceRoundTrip(t *testing.T) {
	cfg := configFile(t, "")
	trace := filepath.Join(t.TempDir(), "run.cbor")

	_, err := execute(t, "run", "--config", cfg, "--trace", trace, connectScenario)
	require.NoError(t, err)

	out, err := execute(t, "trace", "dump", "--config", cfg, trace)
	require.NoError(t, err)
	assert.Contains(t, out, "sta0 session_opened success")
	assert.Contains(t, out, "sta0 link_up")

	out, err = execute(t, "trace", "dump", "--config", cfg, "--event", "link_up", trace)
	require.NoError(t, err)
	assert.Contains(t, out, "1 notifications")

	out, err = execute(t, "trace", "dump", "--config", cfg, "--json", "--event", "association_complete", trace)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var ev monitor.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "association_complete", ev.Event)
	assert.Equal(t, "sta0", ev.Session)

	_, err = execute(t, "trace", "dump", "--config", cfg, "--event", "bogus", trace)
	assert.ErrorIs(t, err, wlan.ErrInvalidParameter)
}

func TestServeOnce(t *testing.T) {
	cfg := configFile(t, "")
	out, err := execute(t, "serve", "--config", cfg, "--once", "--addr", "127.0.0.1:0", connectScenario)
	require.NoError(t, err, out)
	assert.Contains(t, out, "monitor on ws://127.0.0.1:")
	assert.Contains(t, out, "PASS connect-open-network")
}

type fakeWifi struct {
	closed bool
}

func (f *fakeWifi) Interfaces() ([]*wifi.Interface, error) {
	return []*wifi.Interface{
		{Name: "wlan0", Type: wifi.InterfaceTypeStation},
		{Name: "wlan1", Type: wifi.InterfaceTypeStation},
		{Name: "wlan2", Type: wifi.InterfaceTypeStation},
	}, nil
}

func (f *fakeWifi) BSS(ifi *wifi.Interface) (*wifi.BSS, error) {
	switch ifi.Name {
	case "wlan0":
		return &wifi.BSS{SSID: "lab", BSSID: net.HardwareAddr{0x0a, 0, 0, 0, 0, 0x0a}, Frequency: 5180}, nil
	case "wlan1":
		return &wifi.BSS{SSID: "far", BSSID: net.HardwareAddr{0x0a, 0, 0, 0, 0, 0x0b}, Frequency: 2412}, nil
	case "wlan2":
		return &wifi.BSS{SSID: "banned", BSSID: net.HardwareAddr{0x0a, 0, 0, 0, 0, 0x0c}, Frequency: 5200}, nil
	}
	return nil, errors.New("not associated")
}

func (f *fakeWifi) StationInfo(ifi *wifi.Interface) ([]*wifi.StationInfo, error) {
	switch ifi.Name {
	case "wlan0":
		return []*wifi.StationInfo{{Signal: -50}}, nil
	case "wlan2":
		return []*wifi.StationInfo{{Signal: -60}}, nil
	}
	return []*wifi.StationInfo{{Signal: -95}}, nil
}

func (f *fakeWifi) Close() error {
	f.closed = true
	return nil
}

func TestScanShowsHostLinks(t *testing.T) {
	fw := &fakeWifi{}
	prev := openWifi
	openWifi = func() (wifiConn, error) { return fw, nil }
	t.Cleanup(func() { openWifi = prev })

	cfg := configFile(t, "roam:\n  min_rssi: -80\n  exclude_bssids: [\"0a:00:00:00:00:0c\"]\n")
	out, err := execute(t, "scan", "--config", cfg)
	require.NoError(t, err)
	assert.True(t, fw.closed)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "lab")
	assert.Contains(t, lines[1], "36")
	assert.Contains(t, lines[1], "true")
	assert.Contains(t, lines[2], "banned")
	assert.Contains(t, lines[2], "false", "excluded by configuration")
	assert.Contains(t, lines[3], "far")
	assert.Contains(t, lines[3], "false", "below the rssi floor")

	out, err = execute(t, "scan", "--config", cfg, "--ssid", "nowhere")
	require.NoError(t, err)
	assert.Contains(t, out, "no associated station interfaces")
}

func TestMachineRefWithoutMachine(t *testing.T) {
	var ref machineRef
	_, _, err := ref.Snapshot()
	assert.ErrorIs(t, err, wlan.ErrWrongState)
	ref.disconnectAll(context.Background())
}
