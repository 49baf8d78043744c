package security

import (
	"fmt"
	"strings"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// Cipher is a data-confidentiality or integrity suite negotiated with a BSS.
type Cipher uint8

const (
	CipherNone Cipher = iota
	CipherWEP40
	CipherWEP104
	CipherTKIP
	CipherCCMP
	CipherCCMP256
	CipherGCMP
	CipherGCMP256
	CipherBIPCMAC
)

type cipherInfo struct {
	name   string
	keyLen int
	static bool
}

var ciphers = map[Cipher]cipherInfo{
	CipherNone:    {"none", 0, false},
	CipherWEP40:   {"wep40", 5, true},
	CipherWEP104:  {"wep104", 13, true},
	CipherTKIP:    {"tkip", 32, false},
	CipherCCMP:    {"ccmp", 16, false},
	CipherCCMP256: {"ccmp256", 32, false},
	CipherGCMP:    {"gcmp", 16, false},
	CipherGCMP256: {"gcmp256", 32, false},
	CipherBIPCMAC: {"bip-cmac", 16, false},
}

// String returns the lower-case cipher suite name.
func (c Cipher) String() string {
	if info, ok := ciphers[c]; ok {
		return info.name
	}
	return fmt.Sprintf("cipher(%d)", uint8(c))
}

// KeyLength returns the fixed temporal key length in bytes, 0 for CipherNone
// and -1 for unknown suites.
func (c Cipher) KeyLength() int {
	if info, ok := ciphers[c]; ok {
		return info.keyLen
	}
	return -1
}

// Static reports whether keys for the suite are configured up front (WEP)
// rather than derived by a supplicant after association.
func (c Cipher) Static() bool {
	return ciphers[c].static
}

// ParseCipher parses the names produced by Cipher.String.
func ParseCipher(s string) (Cipher, error) {
	name := strings.ToLower(s)
	if name == "" {
		return CipherNone, nil
	}
	for c, info := range ciphers {
		if info.name == name {
			return c, nil
		}
	}
	return CipherNone, fmt.Errorf("unknown cipher %q: %w", s, wlan.ErrInvalidParameter)
}

// MarshalText implements encoding.TextMarshaler.
func (c Cipher) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cipher) UnmarshalText(text []byte) error {
	parsed, err := ParseCipher(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AuthMode is the authentication and key management scheme of a profile.
type AuthMode uint8

const (
	AuthOpen AuthMode = iota
	AuthShared
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPA3SAE
	AuthWPA2Enterprise
)

var authNames = map[AuthMode]string{
	AuthOpen:           "open",
	AuthShared:         "shared",
	AuthWPAPSK:         "wpa-psk",
	AuthWPA2PSK:        "wpa2-psk",
	AuthWPA3SAE:        "wpa3-sae",
	AuthWPA2Enterprise: "wpa2-enterprise",
}

// String returns the authentication mode name.
func (a AuthMode) String() string {
	if name, ok := authNames[a]; ok {
		return name
	}
	return fmt.Sprintf("auth(%d)", uint8(a))
}

// ParseAuthMode parses the names produced by AuthMode.String.
func ParseAuthMode(s string) (AuthMode, error) {
	name := strings.ToLower(s)
	if name == "" {
		return AuthOpen, nil
	}
	for a, n := range authNames {
		if n == name {
			return a, nil
		}
	}
	return AuthOpen, fmt.Errorf("unknown auth mode %q: %w", s, wlan.ErrInvalidParameter)
}

// MarshalText implements encoding.TextMarshaler.
func (a AuthMode) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AuthMode) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthMode(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// RSN reports whether the mode negotiates keys through a 4-way handshake after
// association.
func (a AuthMode) RSN() bool {
	switch a {
	case AuthWPAPSK, AuthWPA2PSK, AuthWPA3SAE, AuthWPA2Enterprise:
		return true
	default:
		return false
	}
}

// KeyDirection selects which traffic a key protects.
type KeyDirection uint8

const (
	DirectionBoth KeyDirection = iota
	DirectionTransmit
	DirectionReceive
)

// String returns the direction name.
func (d KeyDirection) String() string {
	switch d {
	case DirectionBoth:
		return "both"
	case DirectionTransmit:
		return "tx"
	case DirectionReceive:
		return "rx"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}
