package security

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

const (
	// PSKLength is the size of a WPA pre-shared key.
	PSKLength = 32

	minPassphraseLen = 8
	maxPassphraseLen = 63
	pskIterations    = 4096
)

// DerivePSK computes the WPA pre-shared key for an SSID. A 64 character hex
// string is taken as the raw key; anything else must be an 8..63 character
// ASCII passphrase and is run through PBKDF2-SHA1.
func DerivePSK(passphrase, ssid string) ([]byte, error) {
	if len(passphrase) == 2*PSKLength {
		if raw, err := hex.DecodeString(passphrase); err == nil {
			return raw, nil
		}
	}
	if len(passphrase) < minPassphraseLen || len(passphrase) > maxPassphraseLen {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "passphrase must be %d..%d characters", minPassphraseLen, maxPassphraseLen)
	}
	for i := 0; i < len(passphrase); i++ {
		if passphrase[i] < 32 || passphrase[i] > 126 {
			return nil, oops.Wrapf(wlan.ErrInvalidParameter, "passphrase contains non-printable character at %d", i)
		}
	}
	if ssid == "" {
		return nil, oops.Wrapf(wlan.ErrInvalidParameter, "PSK derivation requires an SSID")
	}
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), pskIterations, PSKLength, sha1.New), nil
}
