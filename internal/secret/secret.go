// Package secret derives session keys and keeps enrollment secrets encrypted at rest.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

// Size is the length in bytes of generated secrets and session keys.
const Size = 32

// ErrDecryption is returned by Load when the session key does not open the
// stored secret. This is how a wrong PIN is detected.
var ErrDecryption = errors.New("secret decryption failed")

// Type tells which credential protects a stored secret.
type Type string

const (
	PIN       Type = "pin"
	Biometric Type = "biometric"
)

// Secret is symmetric key material shared with an identity provider.
type Secret struct {
	value []byte
}

// New generates fresh random key material.
func New() (Secret, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return Secret{}, fmt.Errorf("could not generate secret: %w", err)
	}
	return Secret{value: buf}, nil
}

// FromBytes wraps existing key material.
func FromBytes(b []byte) Secret {
	return Secret{value: append([]byte(nil), b...)}
}

// Bytes returns a copy of the key material.
func (s Secret) Bytes() []byte {
	return append([]byte(nil), s.value...)
}

// Hex returns the key material hex encoded, as sent on enrollment.
func (s Secret) Hex() string {
	return hex.EncodeToString(s.value)
}

// Equal compares two secrets in constant time.
func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare(s.value, other.value) == 1
}

// IsZero reports whether the secret holds no material.
func (s Secret) IsZero() bool {
	return len(s.value) == 0
}

// SessionKey wraps and unwraps secrets. It is derived from a credential and never stored.
type SessionKey struct {
	key []byte
}

// ID identifies a stored secret. It is derived from an identity and a Type.
type ID string

// IdentityFor returns the secret id for an identity row id and kind.
// Distinct (identityID, kind) pairs never share an id.
func IdentityFor(identityID int64, kind Type) ID {
	return ID(strconv.FormatInt(identityID, 10) + ":" + string(kind))
}

// Credential is what a user supplies to unlock a secret.
// Password is ignored for Biometric credentials.
type Credential struct {
	Type     Type
	Password string
}

// PINCredential returns a PIN credential.
func PINCredential(pin string) Credential {
	return Credential{Type: PIN, Password: pin}
}

// BiometricCredential returns a biometric credential.
func BiometricCredential() Credential {
	return Credential{Type: Biometric}
}
