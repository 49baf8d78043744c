package security

import (
	"github.com/samber/oops"

	"github.com/go-wlan/go-wlan/lib/wlan"
)

// MaxKeyID is the highest key index addressable by a set-key request.
const MaxKeyID = 3

// Slot identifies one entry of a session's installed-key table.
type Slot struct {
	Pairwise bool
	KeyID    uint8
}

// KeyMaterial is a single temporal key together with the facts needed to
// install it. Records are short lived: a set-key or remove-key command owns its
// copy and zeroes it on release.
type KeyMaterial struct {
	Cipher    Cipher
	KeyID     uint8
	Direction KeyDirection
	Pairwise  bool
	// Peer is the address the pairwise key is bound to. Ignored for group keys.
	Peer wlan.BSSID
	Key  []byte
}

// Slot returns the key table slot the material occupies.
func (k *KeyMaterial) Slot() Slot {
	return Slot{Pairwise: k.Pairwise, KeyID: k.KeyID}
}

// Validate checks the key id range and that the key length matches the fixed
// size of the cipher suite.
func (k *KeyMaterial) Validate() error {
	if k == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "nil key material")
	}
	if k.KeyID > MaxKeyID {
		return oops.Wrapf(wlan.ErrInvalidParameter, "key id %d out of range 0..%d", k.KeyID, MaxKeyID)
	}
	want := k.Cipher.KeyLength()
	if want <= 0 {
		return oops.Wrapf(wlan.ErrInvalidParameter, "cipher %s cannot carry a key", k.Cipher)
	}
	if len(k.Key) != want {
		return oops.Wrapf(wlan.ErrInvalidParameter, "key length %d does not match %s (%d bytes)", len(k.Key), k.Cipher, want)
	}
	return nil
}

// ValidateRemoval checks a remove-key request, which carries no key bytes.
func (k *KeyMaterial) ValidateRemoval() error {
	if k == nil {
		return oops.Wrapf(wlan.ErrInvalidParameter, "nil key material")
	}
	if k.KeyID > MaxKeyID {
		return oops.Wrapf(wlan.ErrInvalidParameter, "key id %d out of range 0..%d", k.KeyID, MaxKeyID)
	}
	return nil
}

// Clone returns a deep copy whose Key buffer does not alias the receiver's.
func (k *KeyMaterial) Clone() *KeyMaterial {
	if k == nil {
		return nil
	}
	c := *k
	if k.Key != nil {
		c.Key = make([]byte, len(k.Key))
		copy(c.Key, k.Key)
	}
	return &c
}

// Zero overwrites the key bytes and clears the record.
func (k *KeyMaterial) Zero() {
	if k == nil {
		return
	}
	for i := range k.Key {
		k.Key[i] = 0
	}
	*k = KeyMaterial{}
}
