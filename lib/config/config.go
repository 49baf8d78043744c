package config

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"

	"github.com/go-wlan/go-wlan/lib/util"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const GOWLAN_BASE_DIR = ".go-wlan"

// InitConfig loads the configuration file named by CfgFile, or
// $HOME/.go-wlan/config.yaml, creating the latter from the defaults when it
// does not exist yet.
func InitConfig() error {
	if CfgFile != "" {
		if !util.CheckFileExists(CfgFile) {
			return oops.Errorf("config file %s is not found", CfgFile)
		}
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildConfigDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	return handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	viper.SetDefault("station.max_sessions", d.Station.MaxSessions)
	viper.SetDefault("station.allow_multi_channel", d.Station.AllowMultiChannel)

	viper.SetDefault("roam.roam_on_lost_link", d.Roam.RoamOnLostLink)
	viper.SetDefault("roam.lost_link_roams_per_minute", d.Roam.LostLinkRoamsPerMinute)
	viper.SetDefault("roam.lost_link_burst", d.Roam.LostLinkBurst)
	viper.SetDefault("roam.max_candidates", d.Roam.MaxCandidates)
	viper.SetDefault("roam.min_rssi", d.Roam.MinRSSI)
	viper.SetDefault("roam.bands", d.Roam.Bands)
	viper.SetDefault("roam.exclude_bssids", d.Roam.ExcludeBSSIDs)
	viper.SetDefault("roam.max_candidate_age", d.Roam.MaxCandidateAge)
	viper.SetDefault("roam.max_rescans", d.Roam.MaxRescans)

	viper.SetDefault("timers.roaming_window", d.Timers.RoamingWindow)
	viper.SetDefault("timers.wait_for_key", d.Timers.WaitForKey)
	viper.SetDefault("timers.ibss_join", d.Timers.IBSSJoin)
	viper.SetDefault("timers.join_retry", d.Timers.JoinRetry)
	viper.SetDefault("timers.rescan_initial", d.Timers.RescanInitial)
	viper.SetDefault("timers.rescan_max", d.Timers.RescanMax)
	viper.SetDefault("timers.rescan_multiplier", d.Timers.RescanMultiplier)
	viper.SetDefault("timers.rescan_jitter", d.Timers.RescanJitter)

	viper.SetDefault("queue.command_pool_size", d.Queue.CommandPoolSize)

	viper.SetDefault("power.transition_delay", d.Power.TransitionDelay)
	viper.SetDefault("power.start_in_power_save", d.Power.StartInPowerSave)

	viper.SetDefault("trace.enabled", d.Trace.Enabled)
	viper.SetDefault("trace.path", d.Trace.Path)

	viper.SetDefault("monitor.enabled", d.Monitor.Enabled)
	viper.SetDefault("monitor.address", d.Monitor.Address)
	viper.SetDefault("monitor.send_buffer", d.Monitor.SendBuffer)
}

// CurrentConfig builds a ConfigDefaults from the current viper settings.
// Keys that were never set fall back to the values registered by setDefaults.
func CurrentConfig() ConfigDefaults {
	return ConfigDefaults{
		Station: StationDefaults{
			MaxSessions:       viper.GetInt("station.max_sessions"),
			AllowMultiChannel: viper.GetBool("station.allow_multi_channel"),
		},
		Roam: RoamDefaults{
			RoamOnLostLink:         viper.GetBool("roam.roam_on_lost_link"),
			LostLinkRoamsPerMinute: viper.GetFloat64("roam.lost_link_roams_per_minute"),
			LostLinkBurst:          viper.GetInt("roam.lost_link_burst"),
			MaxCandidates:          viper.GetInt("roam.max_candidates"),
			MinRSSI:                viper.GetInt("roam.min_rssi"),
			Bands:                  viper.GetStringSlice("roam.bands"),
			ExcludeBSSIDs:          viper.GetStringSlice("roam.exclude_bssids"),
			MaxCandidateAge:        viper.GetDuration("roam.max_candidate_age"),
			MaxRescans:             viper.GetInt("roam.max_rescans"),
		},
		Timers: TimerDefaults{
			RoamingWindow:    viper.GetDuration("timers.roaming_window"),
			WaitForKey:       viper.GetDuration("timers.wait_for_key"),
			IBSSJoin:         viper.GetDuration("timers.ibss_join"),
			JoinRetry:        viper.GetDuration("timers.join_retry"),
			RescanInitial:    viper.GetDuration("timers.rescan_initial"),
			RescanMax:        viper.GetDuration("timers.rescan_max"),
			RescanMultiplier: viper.GetFloat64("timers.rescan_multiplier"),
			RescanJitter:     viper.GetFloat64("timers.rescan_jitter"),
		},
		Queue: QueueDefaults{
			CommandPoolSize: viper.GetInt("queue.command_pool_size"),
		},
		Power: PowerDefaults{
			TransitionDelay:  viper.GetDuration("power.transition_delay"),
			StartInPowerSave: viper.GetBool("power.start_in_power_save"),
		},
		Trace: TraceDefaults{
			Enabled: viper.GetBool("trace.enabled"),
			Path:    viper.GetString("trace.path"),
		},
		Monitor: MonitorDefaults{
			Enabled:    viper.GetBool("monitor.enabled"),
			Address:    viper.GetString("monitor.address"),
			SendBuffer: viper.GetInt("monitor.send_buffer"),
		},
	}
}

func createDefaultConfig(defaultConfigDir string) error {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		return oops.Wrapf(err, "could not create config directory %s", defaultConfigDir)
	}

	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		return oops.Wrapf(err, "could not write default config file %s", defaultConfigFile)
	}

	log.WithFields(logger.Fields{
		"at":   "config.createDefaultConfig",
		"path": defaultConfigFile,
	}).Debug("created_default_config")
	return nil
}

func handleConfigFile() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && CfgFile == "" {
			return createDefaultConfig(BuildConfigDirPath())
		}
		if CfgFile != "" && os.IsNotExist(err) {
			return oops.Wrapf(err, "config file %s is not found", CfgFile)
		}
		return oops.Wrapf(err, "error reading config file")
	}
	log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	return nil
}

// BuildConfigDirPath returns $HOME/.go-wlan.
func BuildConfigDirPath() string {
	return filepath.Join(util.UserHome(), GOWLAN_BASE_DIR)
}
