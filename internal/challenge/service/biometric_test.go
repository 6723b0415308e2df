package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tiqr/internal/audit"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/service"
	"tiqr/internal/challenge/service/mocks"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/secret"
	"tiqr/pkg/platform/sentinel"
)

type BiometricSuite struct {
	FlowSuite
}

func TestBiometricSuite(t *testing.T) {
	suite.Run(t, new(BiometricSuite))
}

func (s *BiometricSuite) TestUpgradeThenAuthenticate() {
	enrolled := s.enroll()

	s.Require().NoError(s.enrollment.UpgradeBiometric(s.ctx, *enrolled.Identity, enrolled.IdentityProvider, testPIN))

	persisted := s.reload(*enrolled.Identity)
	s.True(persisted.BiometricInUse)
	s.False(persisted.BiometricOfferUpgrade)
	s.Contains(s.auditActions(persisted.ID), audit.ActionBiometricUpgraded)

	c, err := s.authentication.Parse(s.ctx, s.authRaw(""))
	s.Require().NoError(err)
	s.Require().NoError(s.authentication.Complete(s.ctx, models.CompleteRequest[*models.AuthenticationChallenge]{
		Challenge:  c,
		Credential: secret.BiometricCredential(),
	}))
	s.Equal(s.expectedResponse(s.enrolledSecret()), s.server.AuthForms()[0].Get("response"))

	// The PIN keeps working after the upgrade.
	otp, err := s.authentication.CompleteOTP(s.ctx, c, secret.PINCredential(testPIN))
	s.Require().NoError(err)
	s.Equal(s.expectedResponse(s.enrolledSecret()), otp)
}

func (s *BiometricSuite) TestUpgradeWithWrongPIN() {
	enrolled := s.enroll()

	err := s.authentication.UpgradeBiometric(s.ctx, *enrolled.Identity, enrolled.IdentityProvider, "9999")
	s.Require().Error(err)

	persisted := s.reload(*enrolled.Identity)
	s.False(persisted.BiometricInUse)
	s.True(persisted.BiometricOfferUpgrade)
}

func (s *BiometricSuite) TestStopOffer() {
	enrolled := s.enroll()

	s.Require().NoError(s.authentication.StopOfferBiometric(s.ctx, *enrolled.Identity, enrolled.IdentityProvider))

	persisted := s.reload(*enrolled.Identity)
	s.False(persisted.BiometricOfferUpgrade)
	s.False(persisted.BiometricInUse)
	s.Contains(s.auditActions(persisted.ID), audit.ActionBiometricOfferMuted)
}

func (s *BiometricSuite) TestUnknownIdentity() {
	identity := idmodels.NewIdentity("nobody", "Nobody")
	provider := idmodels.IdentityProvider{Identifier: "demo.tiqr.org"}

	err := s.enrollment.UpgradeBiometric(s.ctx, identity, provider, testPIN)
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.enrollment.StopOfferBiometric(s.ctx, identity, provider)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// The biometric secret is written before the identity flags. A failed flag
// update leaves the secret in place.
func TestUpgradeBiometric_FlagUpdateFailsAfterSecretSaved(t *testing.T) {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityStore(ctrl)
	secrets := mocks.NewMockSecretService(ctrl)

	persisted := &idmodels.Identity{ID: 3, Identifier: "alice", BiometricOfferUpgrade: true}
	pinID := secret.IdentityFor(3, secret.PIN)
	bioID := secret.IdentityFor(3, secret.Biometric)
	value := secret.FromBytes([]byte("0123456789abcdef0123456789abcdef"))

	gomock.InOrder(
		identities.EXPECT().GetIdentity(gomock.Any(), "alice", "demo.tiqr.org").Return(persisted, nil),
		secrets.EXPECT().CreateSessionKey(gomock.Any(), secret.PINCredential(testPIN)).Return(secret.SessionKey{}, nil),
		secrets.EXPECT().CreateSecretIdentity(int64(3), secret.PIN).Return(pinID),
		secrets.EXPECT().Load(gomock.Any(), pinID, gomock.Any()).Return(value, nil),
		secrets.EXPECT().CreateSessionKey(gomock.Any(), secret.BiometricCredential()).Return(secret.SessionKey{}, nil),
		secrets.EXPECT().CreateSecretIdentity(int64(3), secret.Biometric).Return(bioID),
		secrets.EXPECT().Save(gomock.Any(), bioID, value, gomock.Any()).Return(nil),
		identities.EXPECT().UpdateIdentity(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, i idmodels.Identity) error {
				assert.True(t, i.BiometricInUse)
				assert.False(t, i.BiometricOfferUpgrade)
				return errors.New("database is locked")
			}),
	)

	svc, err := service.NewAuthenticationService(models.DefaultConfig(), identities, secrets, mocks.NewMockTiqrAPI(ctrl))
	require.NoError(t, err)

	err = svc.UpgradeBiometric(context.Background(), idmodels.Identity{Identifier: "alice"},
		idmodels.IdentityProvider{Identifier: "demo.tiqr.org"}, testPIN)
	assert.ErrorContains(t, err, "database is locked")
}
