package sim

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/go-wlan/go-wlan/lib/phy"
	"github.com/go-wlan/go-wlan/lib/scan"
	"github.com/go-wlan/go-wlan/lib/security"
	"github.com/go-wlan/go-wlan/lib/wire"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Scenario is one scripted run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Latency delays every engine confirmation.
	Latency time.Duration `yaml:"latency,omitempty"`
	// Timeout bounds each expect step that sets none of its own.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Config ConfigSpec `yaml:"config,omitempty"`
	BSS    []BSSSpec  `yaml:"bss,omitempty"`
	Rules  []RuleSpec `yaml:"rules,omitempty"`
	Steps  []Step     `yaml:"steps"`
}

// ConfigSpec overrides parts of the machine configuration. Zero fields keep
// the runner's configuration.
type ConfigSpec struct {
	MaxSessions    int           `yaml:"max_sessions,omitempty"`
	MaxRescans     int           `yaml:"max_rescans,omitempty"`
	RoamingWindow  time.Duration `yaml:"roaming_window,omitempty"`
	WaitForKey     time.Duration `yaml:"wait_for_key,omitempty"`
	IBSSJoin       time.Duration `yaml:"ibss_join,omitempty"`
	JoinRetry      time.Duration `yaml:"join_retry,omitempty"`
	RescanInitial  time.Duration `yaml:"rescan_initial,omitempty"`
	RescanMax      time.Duration `yaml:"rescan_max,omitempty"`
	RoamOnLostLink *bool         `yaml:"roam_on_lost_link,omitempty"`

	// Admission rules. Bands and Exclude replace the runner's lists.
	MinRSSI int      `yaml:"min_rssi,omitempty"`
	Bands   []string `yaml:"bands,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	Power *PowerSpec `yaml:"power,omitempty"`
}

// PowerSpec sets up the radio power manager that gates roam commands.
type PowerSpec struct {
	TransitionDelay  time.Duration `yaml:"transition_delay,omitempty"`
	StartInPowerSave bool          `yaml:"start_in_power_save,omitempty"`
}

// BSSSpec is a BSS on the simulated air.
type BSSSpec struct {
	BSSID    string            `yaml:"bssid"`
	SSID     string            `yaml:"ssid"`
	Type     string            `yaml:"type,omitempty"`
	Channel  int               `yaml:"channel"`
	Band     string            `yaml:"band,omitempty"`
	RSSI     int               `yaml:"rssi"`
	Auth     security.AuthMode `yaml:"auth,omitempty"`
	Pairwise security.Cipher   `yaml:"pairwise,omitempty"`
	Group    security.Cipher   `yaml:"group,omitempty"`
}

// RuleSpec is an engine outcome rule. Status "drop" swallows the request.
type RuleSpec struct {
	Op     string `yaml:"op"`
	Target string `yaml:"target,omitempty"`
	Status string `yaml:"status"`
	Times  int    `yaml:"times,omitempty"`
}

// ProfileSpec is the YAML form of security.Profile.
type ProfileSpec struct {
	SSID          string            `yaml:"ssid"`
	Type          string            `yaml:"type,omitempty"`
	Auth          security.AuthMode `yaml:"auth,omitempty"`
	Pairwise      security.Cipher   `yaml:"pairwise,omitempty"`
	Group         security.Cipher   `yaml:"group,omitempty"`
	Passphrase    string            `yaml:"passphrase,omitempty"`
	StaticKeys    []KeySpec         `yaml:"static_keys,omitempty"`
	Channel       int               `yaml:"channel,omitempty"`
	Band          string            `yaml:"band,omitempty"`
	PhyMode       phy.Mode          `yaml:"phy_mode,omitempty"`
	BSSIDs        []string          `yaml:"bssids,omitempty"`
	AutoReconnect bool              `yaml:"auto_reconnect,omitempty"`
}

// KeySpec is the YAML form of security.KeyMaterial. Key is hex.
type KeySpec struct {
	Cipher   security.Cipher `yaml:"cipher"`
	KeyID    uint8           `yaml:"key_id,omitempty"`
	Pairwise bool            `yaml:"pairwise,omitempty"`
	Peer     string          `yaml:"peer,omitempty"`
	Key      string          `yaml:"key,omitempty"`
}

// Step is one action. Which fields matter depends on Action.
type Step struct {
	Action  string         `yaml:"action"`
	Session wlan.SessionID `yaml:"session,omitempty"`

	Self       string       `yaml:"self,omitempty"`
	Profile    *ProfileSpec `yaml:"profile,omitempty"`
	BSS        *BSSSpec     `yaml:"bss,omitempty"`
	Rule       *RuleSpec    `yaml:"rule,omitempty"`
	Key        *KeySpec     `yaml:"key,omitempty"`
	Peer       string       `yaml:"peer,omitempty"`
	Indication string       `yaml:"indication,omitempty"`
	ReasonCode uint16       `yaml:"reason_code,omitempty"`

	Event   string        `yaml:"event,omitempty"`
	Result  string        `yaml:"result,omitempty"`
	State   string        `yaml:"state,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	For     time.Duration `yaml:"for,omitempty"`
}

// ParseScenario decodes and checks a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "parse scenario: %v", err)
	}
	if sc.Name == "" {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "scenario has no name")
	}
	if len(sc.Steps) == 0 {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "scenario %s has no steps", sc.Name)
	}
	for i, st := range sc.Steps {
		if _, ok := actions[st.Action]; !ok {
			return nil, oops.Wrapf(wlan.ErrInvalidParameter, "scenario %s step %d: unknown action %q", sc.Name, i, st.Action)
		}
	}
	return &sc, nil
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Wrapf(err, "read scenario %s", path)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, oops.Wrapf(err, "load %s", path)
	}
	return sc, nil
}

// LoadDirectory loads every .yaml and .yml file in dir, in name order.
func LoadDirectory(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, oops.Wrapf(err, "read scenario directory %s", dir)
	}
	var out []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		sc, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// Description converts the entry into a scan result seen at now.
func (b BSSSpec) Description(now time.Time) (*scan.BSSDescription, error) {
	bssid, err := wlan.ParseBSSID(b.BSSID)
	if err != nil {
		return nil, err
	}
	typ, err := wlan.ParseBSSType(b.Type)
	if err != nil {
		return nil, err
	}
	band, err := wlan.ParseBand(b.Band)
	if err != nil {
		return nil, err
	}
	sel, err := phy.Select(band, phy.ModeAuto, b.Channel)
	if err != nil {
		return nil, oops.Wrapf(err, "bss %s", b.BSSID)
	}
	return &scan.BSSDescription{
		BSSID:    bssid,
		SSID:     b.SSID,
		BSSType:  typ,
		Channel:  sel.Channel,
		Band:     sel.Band,
		RSSI:     b.RSSI,
		Privacy:  b.Auth != security.AuthOpen || b.Pairwise != security.CipherNone,
		Auth:     b.Auth,
		Pairwise: b.Pairwise,
		Group:    b.Group,
		LastSeen: now,
	}, nil
}

// Rule converts the entry into an engine rule.
func (r RuleSpec) Rule() (Rule, error) {
	op, err := wire.ParseOp(r.Op)
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{Op: op, Times: r.Times}
	if r.Target != "" {
		if rule.Target, err = wlan.ParseBSSID(r.Target); err != nil {
			return Rule{}, err
		}
	}
	if r.Status == "drop" {
		rule.Drop = true
		return rule, nil
	}
	if rule.Status, err = wire.ParseStatus(r.Status); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Profile converts the entry into a connect profile.
func (p *ProfileSpec) Profile() (*security.Profile, error) {
	if p == nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "step needs a profile")
	}
	typ, err := wlan.ParseBSSType(p.Type)
	if err != nil {
		return nil, err
	}
	band, err := wlan.ParseBand(p.Band)
	if err != nil {
		return nil, err
	}
	prof := &security.Profile{
		SSID:          p.SSID,
		BSSType:       typ,
		Auth:          p.Auth,
		Pairwise:      p.Pairwise,
		Group:         p.Group,
		Passphrase:    p.Passphrase,
		Channel:       p.Channel,
		Band:          band,
		PhyMode:       p.PhyMode,
		AutoReconnect: p.AutoReconnect,
	}
	for _, s := range p.BSSIDs {
		b, err := wlan.ParseBSSID(s)
		if err != nil {
			return nil, err
		}
		prof.BSSIDs = append(prof.BSSIDs, b)
	}
	for i := range p.StaticKeys {
		k, err := p.StaticKeys[i].Material()
		if err != nil {
			return nil, err
		}
		prof.StaticKeys = append(prof.StaticKeys, *k)
	}
	return prof, nil
}

// Material converts the entry into key material. An empty Key yields a zeroed
// key of the cipher's length.
func (k *KeySpec) Material() (*security.KeyMaterial, error) {
	if k == nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "step needs a key")
	}
	km := &security.KeyMaterial{Cipher: k.Cipher, KeyID: k.KeyID, Pairwise: k.Pairwise}
	if k.Peer != "" {
		peer, err := wlan.ParseBSSID(k.Peer)
		if err != nil {
			return nil, err
		}
		km.Peer = peer
	}
	if k.Key == "" {
		if n := k.Cipher.KeyLength(); n > 0 {
			km.Key = make([]byte, n)
		}
		return km, nil
	}
	key, err := hex.DecodeString(k.Key)
	if err != nil {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "key is not hex: %v", err)
	}
	km.Key = key
	return km, nil
}
