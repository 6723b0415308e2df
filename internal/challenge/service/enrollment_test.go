package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tiqr/internal/api"
	"tiqr/internal/audit"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/service"
	"tiqr/internal/challenge/service/mocks"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/secret"
)

type EnrollmentSuite struct {
	FlowSuite
}

func TestEnrollmentSuite(t *testing.T) {
	suite.Run(t, new(EnrollmentSuite))
}

func parseReason(err error) models.ParseReason {
	return models.ParseReasonOf(err)
}

func completeReason(err error) models.CompleteReason {
	return models.CompleteReasonOf(err)
}

// =============================================================================
// Parse
// =============================================================================

func (s *EnrollmentSuite) TestParse() {
	c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
	s.Require().NoError(err)

	s.Equal(2, c.ProtocolVersion)
	s.Equal("Demo IdP", c.IdentityProvider.DisplayName)
	s.Equal("demo.tiqr.org", c.IdentityProvider.Identifier)
	s.Equal("OCRA-1:HOTP-SHA1-6:QH10-S", c.IdentityProvider.OCRASuite)
	s.Equal(s.server.URL+"/tiqrauth/login", c.IdentityProvider.AuthenticationURL)
	s.Equal("https://demo.tiqr.org/logo.png", c.IdentityProvider.Logo)
	s.Require().NotNil(c.Identity)
	s.Equal("alice", c.Identity.Identifier)
	s.Equal("Alice", c.Identity.DisplayName)
	s.False(c.Identity.IsPersisted())
	s.True(c.Identity.BiometricOfferUpgrade)
	s.Equal(s.server.Listener.Addr().String(), c.EnrollmentHost)
	s.Empty(c.ReturnURL)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Parsed.WithLabelValues("enrollment", "success")))
	s.Equal([]string{"2"}, s.server.ProtocolHeaders())
}

func (s *EnrollmentSuite) TestParseReturnURL() {
	raw := s.enrollRaw() + "?https%3A%2F%2Fdemo.tiqr.org%2Fdone"
	c, err := s.enrollment.Parse(s.ctx, raw)
	s.Require().NoError(err)
	s.Equal("https://demo.tiqr.org/done", c.ReturnURL)
}

func (s *EnrollmentSuite) TestParseRejected() {
	s.Run("untrusted host never reaches the server", func() {
		s.cfg.EnforcedHosts = []string{"tiqr.org"}
		s.rebuild()
		defer func() {
			s.cfg.EnforcedHosts = nil
			s.rebuild()
		}()

		s.False(s.enrollment.IsValid(s.enrollRaw()))
		_, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Equal(models.ParseInvalidChallenge, parseReason(err))
		s.Empty(s.server.ProtocolHeaders())
	})

	s.Run("metadata error status", func() {
		s.server.SetMetadataStatus(http.StatusInternalServerError)
		defer s.server.SetMetadataStatus(0)

		_, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Equal(models.ParseInvalidChallenge, parseReason(err))
	})

	s.Run("metadata with unusable ocra suite", func() {
		m := s.server.DefaultMetadata()
		m.Service.OCRASuite = "OCRA-2:HOTP-MD5-6:QN08"
		s.server.SetMetadata(m)
		defer s.server.SetMetadata(s.server.DefaultMetadata())

		_, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Equal(models.ParseInvalidChallenge, parseReason(err))
	})

	s.Run("server unreachable", func() {
		_, err := s.enrollment.Parse(s.ctx, "tiqrenroll://http://127.0.0.1:1/tiqrenroll/metadata")
		s.Equal(models.ParseConnection, parseReason(err))
	})

	s.Run("not an enrollment", func() {
		_, err := s.enrollment.Parse(s.ctx, s.authRaw(""))
		s.Equal(models.ParseInvalidChallenge, parseReason(err))
	})
}

func (s *EnrollmentSuite) TestParseAlreadyEnrolled() {
	s.enroll()

	_, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
	s.Require().Error(err)
	var failure *models.ParseFailure
	s.Require().ErrorAs(err, &failure)
	s.Equal(models.ParseInvalidChallenge, failure.Reason)
	s.Contains(failure.Message, "already enrolled")
}

// =============================================================================
// Complete
// =============================================================================

func (s *EnrollmentSuite) TestComplete() {
	c := s.enroll()

	s.Require().True(c.Identity.IsPersisted())
	s.Positive(c.IdentityProvider.ID)
	s.Equal(c.IdentityProvider.ID, c.Identity.IdentityProviderID)

	persisted := s.reload(*c.Identity)
	s.Equal("alice", persisted.Identifier)
	s.False(persisted.Blocked)
	s.False(persisted.BiometricInUse)

	key, err := s.secrets.CreateSessionKey(s.ctx, secret.PINCredential(testPIN))
	s.Require().NoError(err)
	stored, err := s.secrets.Load(s.ctx, secret.IdentityFor(c.Identity.ID, secret.PIN), key)
	s.Require().NoError(err)
	s.Equal(s.enrolledSecret(), stored.Bytes())

	form := s.server.EnrollForms()[0]
	s.Equal("register", form.Get("operation"))
	s.Equal("en", form.Get("language"))
	s.Equal("FCM_DIRECT", form.Get("notificationType"))

	s.Equal([]audit.Action{audit.ActionEnrolled}, s.auditActions(c.Identity.ID))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Completed.WithLabelValues("enrollment", "success")))
}

func (s *EnrollmentSuite) TestCompletePlainTextOK() {
	s.server.SetEnrollResponse("OK", 0)
	c := s.enroll()
	s.True(c.Identity.IsPersisted())
}

func (s *EnrollmentSuite) TestCompleteRejected() {
	complete := func() error {
		c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Require().NoError(err)
		return s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
			Challenge:  c,
			Credential: secret.PINCredential(testPIN),
		})
	}

	s.Run("response code is not success", func() {
		s.server.SetEnrollCode(101, 2)
		defer s.server.SetEnrollResponse("", 2)

		err := complete()
		s.Equal(models.CompleteInvalidResponse, completeReason(err))
		all, listErr := s.identities.ListIdentities(s.ctx)
		s.Require().NoError(listErr)
		s.Empty(all)
	})

	s.Run("undecodable body", func() {
		s.server.SetEnrollResponse("<html>", 2)
		defer s.server.SetEnrollResponse("", 2)

		s.Equal(models.CompleteInvalidResponse, completeReason(complete()))
	})

	s.Run("biometric credential", func() {
		c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Require().NoError(err)
		sent := len(s.server.EnrollForms())
		err = s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
			Challenge:  c,
			Credential: secret.BiometricCredential(),
		})
		s.Equal(models.CompleteSecurity, completeReason(err))
		s.Len(s.server.EnrollForms(), sent)
	})

	s.Run("nil challenge", func() {
		err := s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
			Credential: secret.PINCredential(testPIN),
		})
		s.Equal(models.CompleteUnknown, completeReason(err))
	})
}

func (s *EnrollmentSuite) TestCompleteProtocolVersion() {
	s.cfg.CompatibilityMode = false
	s.rebuild()

	s.Run("server version not newer than client", func() {
		s.server.SetEnrollCode(api.CodeSuccess, 2)
		c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
		s.Require().NoError(err)

		err = s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
			Challenge:  c,
			Credential: secret.PINCredential(testPIN),
		})
		s.Equal(models.CompleteInvalidResponse, completeReason(err))
		s.False(c.Identity.IsPersisted())
	})

	s.Run("newer server version", func() {
		s.server.SetEnrollCode(api.CodeSuccess, 3)
		c := s.enroll()
		s.True(c.Identity.IsPersisted())
	})
}

func (s *EnrollmentSuite) TestCompleteConnectionLost() {
	c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
	s.Require().NoError(err)
	s.server.Close()

	err = s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
		Challenge:  c,
		Credential: secret.PINCredential(testPIN),
	})
	s.Equal(models.CompleteConnection, completeReason(err))
	s.Equal([]audit.Action{audit.ActionEnrollFailed}, s.auditActions(0))
}

func (s *EnrollmentSuite) TestCompleteCancelled() {
	c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err = s.enrollment.Complete(ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
		Challenge:  c,
		Credential: secret.PINCredential(testPIN),
	})
	s.Equal(models.CompleteConnection, completeReason(err))
}

// =============================================================================
// Persistence failures
// =============================================================================

func mockEnrollment(t *testing.T) (*service.EnrollmentService, *mocks.MockIdentityStore, *mocks.MockSecretService) {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityStore(ctrl)
	secrets := mocks.NewMockSecretService(ctrl)
	client := mocks.NewMockTiqrAPI(ctrl)

	secrets.EXPECT().CreateSecret().Return(secret.FromBytes([]byte("0123456789abcdef0123456789abcdef")), nil)
	client.EXPECT().Enroll(gomock.Any(), "https://demo.tiqr.org/enroll", gomock.Any()).
		Return(&api.EnrollResponse{Code: api.CodeSuccess, ProtocolVersion: 2}, nil)
	identities.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})

	svc, err := service.NewEnrollmentService(models.DefaultConfig(), identities, secrets, client)
	require.NoError(t, err)
	return svc, identities, secrets
}

func pendingEnrollment() models.CompleteRequest[*models.EnrollmentChallenge] {
	identity := idmodels.NewIdentity("alice", "Alice")
	return models.CompleteRequest[*models.EnrollmentChallenge]{
		Challenge: &models.EnrollmentChallenge{
			Base: models.Base{
				ProtocolVersion:  2,
				IdentityProvider: idmodels.IdentityProvider{Identifier: "demo.tiqr.org", OCRASuite: "OCRA-1:HOTP-SHA1-6:QH10-S"},
				Identity:         &identity,
			},
			EnrollmentURL: "https://demo.tiqr.org/enroll",
		},
		Credential: secret.PINCredential(testPIN),
	}
}

func TestEnrollmentComplete_ProviderInsertFails(t *testing.T) {
	svc, identities, _ := mockEnrollment(t)
	identities.EXPECT().InsertIdentityProvider(gomock.Any(), gomock.Any()).Return(idmodels.FailedID, nil)

	req := pendingEnrollment()
	err := svc.Complete(context.Background(), req)

	var failure *models.CompleteFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.CompleteUnknown, failure.Reason)
	assert.Equal(t, "The identity provider could not be saved.", failure.Message)
	assert.False(t, req.Challenge.Identity.IsPersisted())
}

func TestEnrollmentComplete_IdentityInsertFails(t *testing.T) {
	svc, identities, _ := mockEnrollment(t)
	identities.EXPECT().InsertIdentityProvider(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	identities.EXPECT().InsertIdentity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, i idmodels.Identity) (int64, error) {
			assert.Equal(t, int64(7), i.IdentityProviderID)
			return 0, errors.New("disk full")
		})

	req := pendingEnrollment()
	err := svc.Complete(context.Background(), req)

	var failure *models.CompleteFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.CompleteUnknown, failure.Reason)
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, req.Challenge.IdentityProvider.ID)
}

func TestEnrollmentComplete_SecretSaveFails(t *testing.T) {
	svc, identities, secrets := mockEnrollment(t)
	identities.EXPECT().InsertIdentityProvider(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	identities.EXPECT().InsertIdentity(gomock.Any(), gomock.Any()).Return(int64(11), nil)
	secrets.EXPECT().CreateSessionKey(gomock.Any(), secret.PINCredential(testPIN)).Return(secret.SessionKey{}, nil)
	secrets.EXPECT().CreateSecretIdentity(int64(11), secret.PIN).Return(secret.IdentityFor(11, secret.PIN))
	secrets.EXPECT().Save(gomock.Any(), secret.IdentityFor(11, secret.PIN), gomock.Any(), gomock.Any()).
		Return(errors.New("keystore locked"))

	req := pendingEnrollment()
	err := svc.Complete(context.Background(), req)

	assert.Equal(t, models.CompleteSecurity, models.CompleteReasonOf(err))
	assert.False(t, req.Challenge.Identity.IsPersisted())
}

func TestEnrollmentParse_StoreLookupFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityStore(ctrl)
	client := mocks.NewMockTiqrAPI(ctrl)

	client.EXPECT().RequestMetadata(gomock.Any(), "https://demo.tiqr.org/metadata").Return(&api.Metadata{
		Service: api.ServiceMetadata{
			DisplayName:       "Demo IdP",
			Identifier:        "demo.tiqr.org",
			AuthenticationURL: "https://demo.tiqr.org/tiqrauth",
			OCRASuite:         "OCRA-1:HOTP-SHA1-6:QH10-S",
			EnrollmentURL:     "https://demo.tiqr.org/enroll",
		},
		Identity: api.IdentityMetadata{DisplayName: "Alice", Identifier: "alice"},
	}, nil)
	lookupErr := errors.New("database is locked")
	identities.EXPECT().GetIdentity(gomock.Any(), "alice", "demo.tiqr.org").Return(nil, lookupErr)

	svc, err := service.NewEnrollmentService(models.DefaultConfig(), identities, mocks.NewMockSecretService(ctrl), client)
	require.NoError(t, err)

	_, err = svc.Parse(context.Background(), "tiqrenroll://https://demo.tiqr.org/metadata")

	var failure *models.ParseFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, models.ParseInvalidChallenge, failure.Reason)
	assert.Equal(t, "This is not a valid enrollment QR code.", failure.Message)
	assert.ErrorIs(t, err, lookupErr)
}

func TestEnrollmentParse_UnclassifiedError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockTiqrAPI(ctrl)
	client.EXPECT().RequestMetadata(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (*api.Metadata, error) {
			panic("decoder bug")
		})

	svc, err := service.NewEnrollmentService(models.DefaultConfig(), mocks.NewMockIdentityStore(ctrl),
		mocks.NewMockSecretService(ctrl), client)
	require.NoError(t, err)

	_, err = svc.Parse(context.Background(), "tiqrenroll://https://demo.tiqr.org/metadata")

	assert.Equal(t, models.ParseInvalidChallenge, models.ParseReasonOf(err))
	assert.ErrorContains(t, err, "decoder bug")
}

func TestNewEnrollmentService_RequiresCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := service.NewEnrollmentService(models.DefaultConfig(), nil, mocks.NewMockSecretService(ctrl), mocks.NewMockTiqrAPI(ctrl))
	assert.Error(t, err)
}
