package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaults verifies that Defaults() returns a complete configuration
// with all expected default values set.
func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Station.MaxSessions != 4 {
		t.Errorf("Station.MaxSessions = %d, want 4", cfg.Station.MaxSessions)
	}
	if cfg.Station.AllowMultiChannel {
		t.Error("Station.AllowMultiChannel should be false by default")
	}

	if !cfg.Roam.RoamOnLostLink {
		t.Error("Roam.RoamOnLostLink should be true by default")
	}
	if cfg.Roam.MinRSSI != -85 {
		t.Errorf("Roam.MinRSSI = %d, want -85", cfg.Roam.MinRSSI)
	}
	if cfg.Roam.LostLinkBurst != 2 {
		t.Errorf("Roam.LostLinkBurst = %d, want 2", cfg.Roam.LostLinkBurst)
	}

	if cfg.Timers.WaitForKey != 5*time.Second {
		t.Errorf("Timers.WaitForKey = %v, want 5s", cfg.Timers.WaitForKey)
	}
	if cfg.Timers.RoamingWindow != 10*time.Second {
		t.Errorf("Timers.RoamingWindow = %v, want 10s", cfg.Timers.RoamingWindow)
	}
	if cfg.Timers.RescanMax < cfg.Timers.RescanInitial {
		t.Error("Timers.RescanMax should not be below RescanInitial")
	}

	if cfg.Queue.CommandPoolSize != 64 {
		t.Errorf("Queue.CommandPoolSize = %d, want 64", cfg.Queue.CommandPoolSize)
	}

	if !filepath.IsAbs(cfg.Trace.Path) {
		t.Errorf("Trace.Path should be absolute, got: %s", cfg.Trace.Path)
	}
	if !strings.Contains(cfg.Trace.Path, GOWLAN_BASE_DIR) {
		t.Errorf("Trace.Path should live under %s, got: %s", GOWLAN_BASE_DIR, cfg.Trace.Path)
	}

	if cfg.Monitor.Address != "localhost:7681" {
		t.Errorf("Monitor.Address = %s, want localhost:7681", cfg.Monitor.Address)
	}
}

// TestValidateDefaults verifies the defaults pass validation.
func TestValidateDefaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Validate(Defaults()) = %v, want nil", err)
	}
}

// TestValidateRejects checks that each validator catches its invalid input.
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigDefaults)
		want   string
	}{
		{"zero sessions", func(c *ConfigDefaults) { c.Station.MaxSessions = 0 }, "Station.MaxSessions"},
		{"too many sessions", func(c *ConfigDefaults) { c.Station.MaxSessions = 300 }, "Station.MaxSessions"},
		{"zero burst", func(c *ConfigDefaults) { c.Roam.LostLinkBurst = 0 }, "Roam.LostLinkBurst"},
		{"positive rssi", func(c *ConfigDefaults) { c.Roam.MinRSSI = 3 }, "Roam.MinRSSI"},
		{"unknown band", func(c *ConfigDefaults) { c.Roam.Bands = []string{"60"} }, "Roam.Bands"},
		{"auto band", func(c *ConfigDefaults) { c.Roam.Bands = []string{"auto"} }, "Roam.Bands"},
		{"bad excluded bssid", func(c *ConfigDefaults) { c.Roam.ExcludeBSSIDs = []string{"lab"} }, "Roam.ExcludeBSSIDs"},
		{"no candidates", func(c *ConfigDefaults) { c.Roam.MaxCandidates = 0 }, "Roam.MaxCandidates"},
		{"zero wait for key", func(c *ConfigDefaults) { c.Timers.WaitForKey = 0 }, "Timers.WaitForKey"},
		{"rescan max below initial", func(c *ConfigDefaults) { c.Timers.RescanMax = time.Millisecond }, "Timers.RescanMax"},
		{"shrinking backoff", func(c *ConfigDefaults) { c.Timers.RescanMultiplier = 0.5 }, "Timers.RescanMultiplier"},
		{"jitter over one", func(c *ConfigDefaults) { c.Timers.RescanJitter = 1.5 }, "Timers.RescanJitter"},
		{"small pool", func(c *ConfigDefaults) { c.Queue.CommandPoolSize = 4 }, "Queue.CommandPoolSize"},
		{"negative power delay", func(c *ConfigDefaults) { c.Power.TransitionDelay = -time.Second }, "Power.TransitionDelay"},
		{"trace without path", func(c *ConfigDefaults) { c.Trace.Enabled = true; c.Trace.Path = "" }, "Trace.Path"},
		{"monitor without address", func(c *ConfigDefaults) { c.Monitor.Enabled = true; c.Monitor.Address = "" }, "Monitor.Address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}
