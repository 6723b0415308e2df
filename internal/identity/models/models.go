package models

// FailedID is returned by inserts that could not produce a row id.
const FailedID int64 = -1

// IdentityProvider is the server side party an identity was enrolled with.
//
// Identifier is scoped to the provider and is not unique across providers:
// two providers may legitimately share one.
type IdentityProvider struct {
	ID                int64
	DisplayName       string
	Identifier        string
	AuthenticationURL string
	// OCRASuite describes the response algorithm, e.g. "OCRA-1:HOTP-SHA1-6:QH10-S".
	OCRASuite string
	InfoURL   string
	// Logo holds the logo URL as received from the enrollment metadata.
	Logo string
}

// Identity is an enrolled account at an IdentityProvider.
//
// Invariants:
//   - IdentityProviderID references an existing IdentityProvider
//   - BiometricInUse implies a BIOMETRIC secret was stored for this identity
type Identity struct {
	ID                    int64
	DisplayName           string
	Identifier            string
	IdentityProviderID    int64
	Blocked               bool
	SortIndex             int
	BiometricInUse        bool
	BiometricOfferUpgrade bool
}

// NewIdentity returns an identity with the defaults a fresh enrollment starts from.
func NewIdentity(identifier, displayName string) Identity {
	return Identity{
		Identifier:            identifier,
		DisplayName:           displayName,
		BiometricOfferUpgrade: true,
	}
}

// IsPersisted reports whether the identity has a store-assigned id.
func (i Identity) IsPersisted() bool {
	return i.ID > 0
}

// IdentityWithProvider pairs an identity with its provider, as listed to users.
type IdentityWithProvider struct {
	Identity Identity
	Provider IdentityProvider
}
