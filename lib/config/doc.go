// Package config provides configuration management for the go-wlan orchestrator.
//
// # Configuration Sources
//
// Defaults() is the single source of truth for default values. InitConfig
// registers those defaults with viper, then reads $HOME/.go-wlan/config.yaml
// (or the file named by CfgFile). A missing default file is created from the
// defaults on first start; a missing file named explicitly is an error.
//
// CurrentConfig returns the merged result as a ConfigDefaults value, which the
// CLI validates with Validate before building the roam machine from it.
//
// Keys use snake_case grouped by section, for example:
//
//	station:
//	  max_sessions: 4
//	timers:
//	  wait_for_key: 5s
//	roam:
//	  min_rssi: -85
package config
