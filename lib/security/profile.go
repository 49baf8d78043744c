package security

import (
	"crypto/subtle"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/phy"
	"github.com/go-wlan/go-wlan/lib/wlan"
)

var log = logger.GetGoI2PLogger()

// MaxSSIDLength is the longest SSID an information element can carry.
const MaxSSIDLength = 32

// Profile is what a caller asks to connect to, and, once associated, the
// negotiated facts the session remembers about the current BSS.
type Profile struct {
	SSID    string
	BSSType wlan.BSSType

	Auth     AuthMode
	Pairwise Cipher
	Group    Cipher

	// Passphrase is turned into PSK by Prepare for the PSK auth modes.
	Passphrase string
	PSK        []byte

	// StaticKeys are WEP keys installed right after association.
	StaticKeys   []KeyMaterial
	DefaultKeyID uint8

	// Channel and Band are used when the station hosts the BSS; 0/auto lets
	// phy.Select choose.
	Channel int
	Band    wlan.Band
	PhyMode phy.Mode

	// BSSIDs restricts the candidate filter to the listed access points.
	BSSIDs []wlan.BSSID

	// AutoReconnect allows lost-link recovery roams for this profile.
	AutoReconnect bool
}

// Validate checks that the profile can be used for a connect request.
func (p *Profile) Validate() error {
	if p == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "missing profile")
	}
	if p.SSID == "" && p.BSSType != wlan.BSSWDS {
		return oops.Wrapf(wlan.ErrInvalidParameter, "profile has no SSID")
	}
	if len(p.SSID) > MaxSSIDLength {
		return oops.Wrapf(wlan.ErrInvalidParameter, "SSID is %d bytes, limit %d", len(p.SSID), MaxSSIDLength)
	}
	if p.DefaultKeyID > MaxKeyID {
		return oops.Wrapf(wlan.ErrInvalidParameter, "default key id %d out of range", p.DefaultKeyID)
	}
	switch p.Auth {
	case AuthWPAPSK, AuthWPA2PSK:
		if p.Passphrase == "" && len(p.PSK) == 0 {
			return oops.Wrapf(wlan.ErrInvalidParameter, "%s profile needs a passphrase or PSK", p.Auth)
		}
		if len(p.PSK) != 0 && len(p.PSK) != PSKLength {
			return oops.Wrapf(wlan.ErrInvalidParameter, "PSK is %d bytes, want %d", len(p.PSK), PSKLength)
		}
	case AuthWPA3SAE:
		if p.Passphrase == "" {
			return oops.Wrapf(wlan.ErrInvalidParameter, "SAE profile needs a password")
		}
	case AuthShared:
		if len(p.StaticKeys) == 0 {
			return oops.Wrapf(wlan.ErrInvalidParameter, "shared key authentication needs static keys")
		}
	}
	if p.Auth.RSN() && p.Pairwise.Static() {
		return oops.Wrapf(wlan.ErrInvalidParameter, "%s cannot use %s", p.Auth, p.Pairwise)
	}
	for i := range p.StaticKeys {
		k := &p.StaticKeys[i]
		if !k.Cipher.Static() {
			return oops.Wrapf(wlan.ErrInvalidParameter, "static key %d uses non-static cipher %s", i, k.Cipher)
		}
		if err := k.Validate(); err != nil {
			return oops.Wrapf(err, "static key %d", i)
		}
	}
	return nil
}

// Prepare validates the profile and returns an owned copy with defaults
// filled in: RSN ciphers default to CCMP and the PSK is derived from the
// passphrase when needed.
func (p *Profile) Prepare() (*Profile, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	c := p.Clone()
	if c.Auth.RSN() {
		if c.Pairwise == CipherNone {
			c.Pairwise = CipherCCMP
		}
		if c.Group == CipherNone {
			c.Group = c.Pairwise
		}
	}
	if len(c.StaticKeys) > 0 && c.Pairwise == CipherNone {
		c.Pairwise = c.StaticKeys[0].Cipher
		c.Group = c.Pairwise
	}
	if (c.Auth == AuthWPAPSK || c.Auth == AuthWPA2PSK) && len(c.PSK) == 0 {
		psk, err := DerivePSK(c.Passphrase, c.SSID)
		if err != nil {
			return nil, err
		}
		c.PSK = psk
		log.WithFields(logger.Fields{
			"at":   "security.Profile.Prepare",
			"ssid": c.SSID,
			"auth": c.Auth.String(),
		}).Debug("derived_psk")
	}
	return c, nil
}

// DynamicKeys reports whether keys arrive from a supplicant after association,
// which is what puts a freshly joined session into wait-for-key.
func (p *Profile) DynamicKeys() bool {
	return p != nil && p.Auth.RSN()
}

// SameSecurity reports whether two profiles would negotiate identical keys and
// capabilities with the same BSS.
func (p *Profile) SameSecurity(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Auth != o.Auth || p.Pairwise != o.Pairwise || p.Group != o.Group {
		return false
	}
	if p.PhyMode != o.PhyMode || p.DefaultKeyID != o.DefaultKeyID {
		return false
	}
	if subtle.ConstantTimeCompare(p.PSK, o.PSK) != 1 && (len(p.PSK) != 0 || len(o.PSK) != 0) {
		return false
	}
	if p.Passphrase != o.Passphrase && (len(p.PSK) == 0 || len(o.PSK) == 0) {
		return false
	}
	if len(p.StaticKeys) != len(o.StaticKeys) {
		return false
	}
	for i := range p.StaticKeys {
		a, b := &p.StaticKeys[i], &o.StaticKeys[i]
		if a.Cipher != b.Cipher || a.KeyID != b.KeyID || subtle.ConstantTimeCompare(a.Key, b.Key) != 1 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.PSK != nil {
		c.PSK = append([]byte(nil), p.PSK...)
	}
	if p.StaticKeys != nil {
		c.StaticKeys = make([]KeyMaterial, len(p.StaticKeys))
		for i := range p.StaticKeys {
			c.StaticKeys[i] = *p.StaticKeys[i].Clone()
		}
	}
	if p.BSSIDs != nil {
		c.BSSIDs = append([]wlan.BSSID(nil), p.BSSIDs...)
	}
	return &c
}

// Zero wipes secret material held by the profile.
func (p *Profile) Zero() {
	if p == nil {
		return
	}
	for i := range p.PSK {
		p.PSK[i] = 0
	}
	for i := range p.StaticKeys {
		p.StaticKeys[i].Zero()
	}
	p.PSK = nil
	p.StaticKeys = nil
	p.Passphrase = ""
}
