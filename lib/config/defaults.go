package config

import (
	"path/filepath"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// ConfigDefaults contains every default value used by the orchestrator.
// Values are grouped by the component that consumes them.
type ConfigDefaults struct {
	Station StationDefaults
	Roam    RoamDefaults
	Timers  TimerDefaults
	Queue   QueueDefaults
	Power   PowerDefaults
	Trace   TraceDefaults
	Monitor MonitorDefaults
}

// StationDefaults contains session store settings.
type StationDefaults struct {
	// MaxSessions is the number of virtual interfaces the session arena holds
	// Default: 4
	MaxSessions int

	// AllowMultiChannel lets concurrent sessions sit on different channels.
	// When false the candidate walker skips BSSes that would force a channel
	// switch on another connected session.
	// Default: false
	AllowMultiChannel bool
}

// RoamDefaults contains candidate selection and lost-link recovery settings.
type RoamDefaults struct {
	// RoamOnLostLink starts a recovery roam when the link is lost and the
	// profile asks for auto reconnect
	// Default: true
	RoamOnLostLink bool

	// LostLinkRoamsPerMinute bounds recovery roams per session
	// Default: 6
	LostLinkRoamsPerMinute float64

	// LostLinkBurst is the number of recovery roams allowed back to back
	// Default: 2
	LostLinkBurst int

	// MaxCandidates caps the candidate list handed out by the scan cache
	// Default: 32
	MaxCandidates int

	// MinRSSI is the weakest signal (dBm) the candidate walker admits as a
	// roam target
	// Default: -85
	MinRSSI int

	// Bands restricts roam targets to these bands ("2.4", "5", "6")
	// Default: empty (every band)
	Bands []string

	// ExcludeBSSIDs lists access points never roamed to
	// Default: empty
	ExcludeBSSIDs []string

	// MaxCandidateAge drops scan results older than this from candidate lists
	// Default: 2 minutes
	MaxCandidateAge time.Duration

	// MaxRescans bounds the rescans a recovery roam performs before giving up
	// Default: 5
	MaxRescans int
}

// TimerDefaults contains the per-session timer durations.
type TimerDefaults struct {
	// RoamingWindow bounds a whole lost-link recovery
	// Default: 10 seconds
	RoamingWindow time.Duration

	// WaitForKey is how long a joined session waits for its first key
	// Default: 5 seconds
	WaitForKey time.Duration

	// IBSSJoin bounds an IBSS join attempt
	// Default: 10 seconds
	IBSSJoin time.Duration

	// JoinRetry bounds a single join request to one candidate
	// Default: 3 seconds
	JoinRetry time.Duration

	// RescanInitial is the first lost-link rescan delay
	// Default: 500 milliseconds
	RescanInitial time.Duration

	// RescanMax caps the rescan backoff
	// Default: 4 seconds
	RescanMax time.Duration

	// RescanMultiplier grows the delay between rescans
	// Default: 2.0
	RescanMultiplier float64

	// RescanJitter is the fraction of the delay added as random jitter
	// Default: 0.2
	RescanJitter float64
}

// QueueDefaults contains command queue settings.
type QueueDefaults struct {
	// CommandPoolSize is the number of command buffers in the free pool
	// Default: 64
	CommandPoolSize int
}

// PowerDefaults contains settings for the reference power manager.
type PowerDefaults struct {
	// TransitionDelay is how long a power-save to full-power transition takes.
	// Zero makes transitions synchronous.
	// Default: 50 milliseconds
	TransitionDelay time.Duration

	// StartInPowerSave starts the radio in power save
	// Default: false
	StartInPowerSave bool
}

// TraceDefaults contains notification trace settings.
type TraceDefaults struct {
	// Enabled writes every notification to a CBOR trace file
	// Default: false
	Enabled bool

	// Path is the trace file location
	// Default: $HOME/.go-wlan/trace.cbor
	Path string
}

// MonitorDefaults contains websocket notification feed settings.
type MonitorDefaults struct {
	// Enabled starts the websocket feed with the run command
	// Default: false
	Enabled bool

	// Address is the listen address for the feed
	// Default: localhost:7681
	Address string

	// SendBuffer is the per-client queue depth before notifications are dropped
	// Default: 64
	SendBuffer int
}

// Defaults returns a ConfigDefaults instance with all default values set.
// This is the single source of truth for all configuration defaults.
func Defaults() ConfigDefaults {
	return ConfigDefaults{
		Station: buildStationDefaults(),
		Roam:    buildRoamDefaults(),
		Timers:  buildTimerDefaults(),
		Queue:   buildQueueDefaults(),
		Power:   buildPowerDefaults(),
		Trace:   buildTraceDefaults(BuildConfigDirPath()),
		Monitor: buildMonitorDefaults(),
	}
}

func buildStationDefaults() StationDefaults {
	return StationDefaults{
		MaxSessions:       4,
		AllowMultiChannel: false,
	}
}

func buildRoamDefaults() RoamDefaults {
	return RoamDefaults{
		RoamOnLostLink:         true,
		LostLinkRoamsPerMinute: 6,
		LostLinkBurst:          2,
		MaxCandidates:          32,
		MinRSSI:                -85,
		Bands:                  []string{},
		ExcludeBSSIDs:          []string{},
		MaxCandidateAge:        2 * time.Minute,
		MaxRescans:             5,
	}
}

func buildTimerDefaults() TimerDefaults {
	return TimerDefaults{
		RoamingWindow:    10 * time.Second,
		WaitForKey:       5 * time.Second,
		IBSSJoin:         10 * time.Second,
		JoinRetry:        3 * time.Second,
		RescanInitial:    500 * time.Millisecond,
		RescanMax:        4 * time.Second,
		RescanMultiplier: 2.0,
		RescanJitter:     0.2,
	}
}

func buildQueueDefaults() QueueDefaults {
	return QueueDefaults{
		CommandPoolSize: 64,
	}
}

func buildPowerDefaults() PowerDefaults {
	return PowerDefaults{
		TransitionDelay:  50 * time.Millisecond,
		StartInPowerSave: false,
	}
}

func buildTraceDefaults(dir string) TraceDefaults {
	return TraceDefaults{
		Enabled: false,
		Path:    filepath.Join(dir, "trace.cbor"),
	}
}

func buildMonitorDefaults() MonitorDefaults {
	return MonitorDefaults{
		Enabled:    false,
		Address:    "localhost:7681",
		SendBuffer: 64,
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg ConfigDefaults) error {
	log.WithFields(logger.Fields{
		"at":     "config.Validate",
		"reason": "verification_requested",
	}).Debug("validating configuration")
	return runConfigValidators(cfg)
}

// runConfigValidators executes all configuration validators in sequence.
// Returns the first error encountered or nil if all validations pass.
func runConfigValidators(cfg ConfigDefaults) error {
	validators := []func() error{
		func() error { return validateStation(cfg.Station) },
		func() error { return validateRoam(cfg.Roam) },
		func() error { return validateTimers(cfg.Timers) },
		func() error { return validateQueue(cfg.Queue, cfg.Station) },
		func() error { return validatePower(cfg.Power) },
		func() error { return validateTrace(cfg.Trace) },
		func() error { return validateMonitor(cfg.Monitor) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	log.WithFields(logger.Fields{
		"at":     "config.Validate",
		"reason": "all_validators_passed",
	}).Debug("all configuration validations passed")
	return nil
}

// maxSessionLimit is the size of the wlan.SessionID space.
const maxSessionLimit = 256

func validateStation(st StationDefaults) error {
	if st.MaxSessions < 1 || st.MaxSessions > maxSessionLimit {
		log.WithFields(logger.Fields{
			"at":           "validateStation",
			"max_sessions": st.MaxSessions,
		}).Error("invalid station configuration")
		return newValidationError("Station.MaxSessions must be between 1 and 256")
	}
	return nil
}

func validateRoam(r RoamDefaults) error {
	if r.LostLinkRoamsPerMinute < 0 {
		return newValidationError("Roam.LostLinkRoamsPerMinute must not be negative")
	}
	if r.LostLinkBurst < 1 {
		log.WithField("lost_link_burst", r.LostLinkBurst).Error("Invalid roam configuration")
		return newValidationError("Roam.LostLinkBurst must be at least 1")
	}
	if r.MaxCandidates < 1 {
		log.WithField("max_candidates", r.MaxCandidates).Error("Invalid roam configuration")
		return newValidationError("Roam.MaxCandidates must be at least 1")
	}
	if r.MinRSSI > 0 || r.MinRSSI < -120 {
		log.WithField("min_rssi", r.MinRSSI).Error("Invalid roam configuration")
		return newValidationError("Roam.MinRSSI must be between -120 and 0 dBm")
	}
	if r.MaxRescans < 0 {
		return newValidationError("Roam.MaxRescans must not be negative")
	}
	for _, b := range r.Bands {
		if band, err := wlan.ParseBand(b); err != nil || band == wlan.BandAuto {
			log.WithField("band", b).Error("Invalid roam configuration")
			return newValidationError("Roam.Bands entries must be 2.4, 5 or 6")
		}
	}
	for _, b := range r.ExcludeBSSIDs {
		if _, err := wlan.ParseBSSID(b); err != nil {
			log.WithField("bssid", b).Error("Invalid roam configuration")
			return newValidationError("Roam.ExcludeBSSIDs entries must be MAC addresses")
		}
	}
	return nil
}

func validateTimers(t TimerDefaults) error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"Timers.RoamingWindow", t.RoamingWindow},
		{"Timers.WaitForKey", t.WaitForKey},
		{"Timers.IBSSJoin", t.IBSSJoin},
		{"Timers.JoinRetry", t.JoinRetry},
		{"Timers.RescanInitial", t.RescanInitial},
	}
	for _, d := range durations {
		if d.value < time.Millisecond {
			log.WithFields(logger.Fields{
				"at":       "validateTimers",
				"timer":    d.name,
				"duration": d.value,
			}).Error("invalid timer configuration")
			return newValidationError(d.name + " must be at least 1ms")
		}
	}
	if t.RescanMax < t.RescanInitial {
		return newValidationError("Timers.RescanMax must not be below Timers.RescanInitial")
	}
	if t.RescanMultiplier < 1 {
		return newValidationError("Timers.RescanMultiplier must be at least 1")
	}
	if t.RescanJitter < 0 || t.RescanJitter > 1 {
		return newValidationError("Timers.RescanJitter must be between 0 and 1")
	}
	return nil
}

func validateQueue(q QueueDefaults, st StationDefaults) error {
	// every session needs room for its lifecycle command plus one roam
	if q.CommandPoolSize < 2*st.MaxSessions {
		log.WithFields(logger.Fields{
			"at":                "validateQueue",
			"command_pool_size": q.CommandPoolSize,
			"max_sessions":      st.MaxSessions,
		}).Error("invalid queue configuration")
		return newValidationError("Queue.CommandPoolSize must be at least twice Station.MaxSessions")
	}
	return nil
}

func validatePower(p PowerDefaults) error {
	if p.TransitionDelay < 0 {
		return newValidationError("Power.TransitionDelay must not be negative")
	}
	return nil
}

func validateTrace(t TraceDefaults) error {
	if t.Enabled && t.Path == "" {
		return newValidationError("Trace.Path is required when tracing is enabled")
	}
	return nil
}

func validateMonitor(m MonitorDefaults) error {
	if m.Enabled && m.Address == "" {
		return newValidationError("Monitor.Address is required when the monitor is enabled")
	}
	if m.SendBuffer < 1 {
		return newValidationError("Monitor.SendBuffer must be at least 1")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
