package candidate

import (
	"slices"

	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// MinRSSI rejects candidates weaker than dbm.
func MinRSSI(dbm int) Filter {
	return Func("min_rssi", func(bss *scan.BSSDescription) bool { return bss.RSSI >= dbm })
}

// OnBand accepts candidates on any of the given bands.
func OnBand(bands ...wlan.Band) Filter {
	return Func("on_band", func(bss *scan.BSSDescription) bool { return slices.Contains(bands, bss.Band) })
}

// Exclude rejects the listed BSSIDs, e.g. access points known to be broken.
func Exclude(bssids ...wlan.BSSID) Filter {
	return Not(Func("bssid_in", func(bss *scan.BSSDescription) bool { return slices.Contains(bssids, bss.BSSID) }))
}

// Policy is the configured admission rule set applied to every walk.
type Policy struct {
	// MinRSSI is the weakest admissible signal in dBm. Zero disables it.
	MinRSSI int
	// Bands restricts roaming to these bands. Empty allows every band.
	Bands []wlan.Band
	// Exclude lists BSSIDs never roamed to.
	Exclude []wlan.BSSID
}

// Filter builds the filter for p, or nil when p admits everything.
func (p Policy) Filter() Filter {
	var rules []Filter
	if p.MinRSSI != 0 {
		rules = append(rules, MinRSSI(p.MinRSSI))
	}
	if len(p.Bands) > 0 {
		rules = append(rules, OnBand(p.Bands...))
	}
	if len(p.Exclude) > 0 {
		rules = append(rules, Exclude(p.Exclude...))
	}
	switch len(rules) {
	case 0:
		return nil
	case 1:
		return rules[0]
	}
	return All(rules...)
}
