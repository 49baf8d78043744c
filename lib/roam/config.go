package roam

import (
	"math"
	"time"

	"github.com/go-i2p/crypto/rand"
	"golang.org/x/time/rate"

	"github.com/go-wlan/go-wlan/lib/candidate"
	"github.com/go-wlan/go-wlan/lib/config"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Timers holds the per-session timer durations.
type Timers struct {
	RoamingWindow time.Duration
	WaitForKey    time.Duration
	IBSSJoin      time.Duration
	JoinRetry     time.Duration
}

// Backoff shapes the delay between lost-link rescans.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the delay added at random.
	Jitter float64
}

// Config sizes the machine and sets its roaming policy.
type Config struct {
	MaxSessions       int
	AllowMultiChannel bool
	CommandPoolSize   int

	// RoamOnLostLink starts a recovery roam after a lost link when the
	// connected profile allows auto reconnect.
	RoamOnLostLink bool
	// LostLinkRate and LostLinkBurst limit recovery roams per session.
	LostLinkRate  rate.Limit
	LostLinkBurst int
	// MaxRescans bounds the rescans of one recovery roam.
	MaxRescans int

	// Admission is applied to every candidate walk before ShouldRoamTo.
	Admission candidate.Policy

	Timers Timers
	Rescan Backoff
}

// DefaultConfig returns the configuration built from config.Defaults.
func DefaultConfig() Config {
	return FromDefaults(config.Defaults())
}

// FromDefaults converts the file/flag configuration into a machine config.
func FromDefaults(d config.ConfigDefaults) Config {
	return Config{
		MaxSessions:       d.Station.MaxSessions,
		AllowMultiChannel: d.Station.AllowMultiChannel,
		CommandPoolSize:   d.Queue.CommandPoolSize,
		RoamOnLostLink:    d.Roam.RoamOnLostLink,
		LostLinkRate:      rate.Limit(d.Roam.LostLinkRoamsPerMinute / 60),
		LostLinkBurst:     d.Roam.LostLinkBurst,
		MaxRescans:        d.Roam.MaxRescans,
		Admission:         admissionPolicy(d.Roam),
		Timers: Timers{
			RoamingWindow: d.Timers.RoamingWindow,
			WaitForKey:    d.Timers.WaitForKey,
			IBSSJoin:      d.Timers.IBSSJoin,
			JoinRetry:     d.Timers.JoinRetry,
		},
		Rescan: Backoff{
			Initial:    d.Timers.RescanInitial,
			Max:        d.Timers.RescanMax,
			Multiplier: d.Timers.RescanMultiplier,
			Jitter:     d.Timers.RescanJitter,
		},
	}
}

// admissionPolicy parses the roam section. Entries that do not parse were
// already refused by config.Validate and are skipped here.
func admissionPolicy(r config.RoamDefaults) candidate.Policy {
	p := candidate.Policy{MinRSSI: r.MinRSSI}
	for _, s := range r.Bands {
		if b, err := wlan.ParseBand(s); err == nil && b != wlan.BandAuto {
			p.Bands = append(p.Bands, b)
		}
	}
	for _, s := range r.ExcludeBSSIDs {
		if b, err := wlan.ParseBSSID(s); err == nil {
			p.Exclude = append(p.Exclude, b)
		}
	}
	return p
}

// Delay returns the wait before rescan number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	delay := time.Duration(d)
	if b.Jitter > 0 {
		if span := int64(float64(delay) * b.Jitter); span > 0 {
			delay += time.Duration(rand.Int63n(span))
		}
	}
	return delay
}
