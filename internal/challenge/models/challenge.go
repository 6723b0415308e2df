package models

import (
	idmodels "tiqr/internal/identity/models"
)

// Kind discriminates the Challenge variants. The zero Kind marks input that
// is neither.
type Kind string

const (
	KindEnrollment     Kind = "enrollment"
	KindAuthentication Kind = "authentication"
)

// Challenge is either an *EnrollmentChallenge or an *AuthenticationChallenge.
// The set is closed; use Match to handle both.
type Challenge interface {
	Kind() Kind
	Common() *Base
	sealed()
}

// Base holds the fields shared by every challenge.
type Base struct {
	ProtocolVersion  int
	IdentityProvider idmodels.IdentityProvider
	// Identity is nil for authentication challenges until one is selected.
	Identity  *idmodels.Identity
	ReturnURL string
}

// EnrollmentChallenge asks the client to enroll Identity at IdentityProvider.
type EnrollmentChallenge struct {
	Base
	EnrollmentURL  string
	EnrollmentHost string
}

func (c *EnrollmentChallenge) Kind() Kind    { return KindEnrollment }
func (c *EnrollmentChallenge) Common() *Base { return &c.Base }
func (c *EnrollmentChallenge) sealed()       {}

// AuthenticationChallenge asks the client to prove possession of an identity's secret.
type AuthenticationChallenge struct {
	Base
	// Identities lists the candidates when the challenge does not name one.
	// Candidates may belong to different providers sharing one identifier.
	Identities []idmodels.IdentityWithProvider
	SessionKey string
	// Challenge is the server nonce answered with an OCRA response.
	Challenge                  string
	IsStepUpChallenge          bool
	ServiceProviderDisplayName string
	ServiceProviderIdentifier  string
}

func (c *AuthenticationChallenge) Kind() Kind    { return KindAuthentication }
func (c *AuthenticationChallenge) Common() *Base { return &c.Base }
func (c *AuthenticationChallenge) sealed()       {}

// HasMultipleIdentities reports whether the user must pick an identity.
func (c *AuthenticationChallenge) HasMultipleIdentities() bool {
	return len(c.Identities) > 0
}

// SelectIdentity returns a copy of c bound to one candidate and its provider.
func (c *AuthenticationChallenge) SelectIdentity(candidate idmodels.IdentityWithProvider) *AuthenticationChallenge {
	out := *c
	identity := candidate.Identity
	out.Identity = &identity
	out.IdentityProvider = candidate.Provider
	out.Identities = nil
	return &out
}

// Match calls the function matching the concrete challenge type.
func Match[T any](c Challenge, enroll func(*EnrollmentChallenge) T, auth func(*AuthenticationChallenge) T) T {
	switch v := c.(type) {
	case *EnrollmentChallenge:
		return enroll(v)
	case *AuthenticationChallenge:
		return auth(v)
	default:
		panic("unknown challenge type")
	}
}
