package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	CfgFile = ""
	t.Cleanup(func() {
		viper.Reset()
		CfgFile = ""
	})
}

// TestCurrentConfigDefaultsRoundTrip verifies that all defaults set via
// setDefaults() are read back unchanged by CurrentConfig().
func TestCurrentConfigDefaultsRoundTrip(t *testing.T) {
	resetViper(t)
	setDefaults()

	assert.Equal(t, Defaults(), CurrentConfig())
}

func TestInitConfigCreatesDefaultFile(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, InitConfig())

	path := filepath.Join(home, GOWLAN_BASE_DIR, "config.yaml")
	_, err := os.Stat(path)
	require.NoError(t, err, "default config file should be written")
	assert.Equal(t, 4, CurrentConfig().Station.MaxSessions)
}

func TestInitConfigReadsExplicitFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "wlan.yaml")
	content := []byte(`station:
  max_sessions: 2
  allow_multi_channel: true
timers:
  wait_for_key: 750ms
roam:
  min_rssi: -70
  bands: ["5"]
  exclude_bssids: ["0a:00:00:00:00:0b"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	CfgFile = path

	require.NoError(t, InitConfig())
	cfg := CurrentConfig()

	assert.Equal(t, 2, cfg.Station.MaxSessions)
	assert.True(t, cfg.Station.AllowMultiChannel)
	assert.Equal(t, 750*time.Millisecond, cfg.Timers.WaitForKey)
	assert.Equal(t, -70, cfg.Roam.MinRSSI)
	assert.Equal(t, []string{"5"}, cfg.Roam.Bands)
	assert.Equal(t, []string{"0a:00:00:00:00:0b"}, cfg.Roam.ExcludeBSSIDs)
	// untouched keys keep their defaults
	assert.Equal(t, Defaults().Timers.RoamingWindow, cfg.Timers.RoamingWindow)
	assert.NoError(t, Validate(cfg))
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	resetViper(t)
	CfgFile = filepath.Join(t.TempDir(), "absent.yaml")

	assert.Error(t, InitConfig())
}
