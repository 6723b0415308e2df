package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks IdentityStore,SecretService,TiqrAPI,AuditPublisher

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"tiqr/internal/api"
	"tiqr/internal/api/apitest"
	"tiqr/internal/audit"
	"tiqr/internal/challenge/metrics"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/ocra"
	"tiqr/internal/challenge/service"
	"tiqr/internal/identity/migrations"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/identity/store"
	"tiqr/internal/platform/sqlite"
	"tiqr/internal/platform/worker"
	"tiqr/internal/secret"
	secretstore "tiqr/internal/secret/store"
)

const (
	testPIN        = "1234"
	testSessionKey = "0a1b2c3d4e5f"
	testQuestion   = "abcdef0123"
	testSP         = "sp.example.org"
)

var fastKDF = secret.KDFParams{Time: 1, MemoryKB: 64, Threads: 1}

// FlowSuite wires both services to a real identity store, secret service
// and an in-process tiqr server.
type FlowSuite struct {
	suite.Suite
	ctx            context.Context
	cfg            models.Config
	server         *apitest.Server
	identities     *store.Store
	secrets        *secret.Service
	auditLog       *audit.Publisher
	metrics        *metrics.Metrics
	enrollment     *service.EnrollmentService
	authentication *service.AuthenticationService
}

func (s *FlowSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = models.DefaultConfig()
	s.server = apitest.New(s.T())

	db, err := sqlite.Open(filepath.Join(s.T().TempDir(), "identities.db"), "")
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	_, err = migrations.New(db).Migrate(s.ctx)
	s.Require().NoError(err)
	s.identities = store.New(db)

	handle := secret.NewFileKeyHandle(filepath.Join(s.T().TempDir(), "device.key"))
	s.secrets = secret.NewService(secretstore.NewInMemory(), handle, secret.WithKDFParams(fastKDF))
	s.auditLog = audit.NewPublisher(audit.NewInMemoryStore())
	s.metrics = metrics.New(prometheus.NewRegistry())

	s.rebuild()
}

// rebuild recreates the services after s.cfg changed.
func (s *FlowSuite) rebuild() {
	opts := []service.Option{
		service.WithAuditPublisher(s.auditLog),
		service.WithMetrics(s.metrics),
		service.WithPool(worker.New(4)),
	}
	client := api.New()

	var err error
	s.enrollment, err = service.NewEnrollmentService(s.cfg, s.identities, s.secrets, client, opts...)
	s.Require().NoError(err)
	s.authentication, err = service.NewAuthenticationService(s.cfg, s.identities, s.secrets, client, opts...)
	s.Require().NoError(err)
}

func (s *FlowSuite) enrollRaw() string {
	return s.cfg.EnrollScheme + "://" + s.server.MetadataURL()
}

func (s *FlowSuite) authRaw(userID string) string {
	host := "demo.tiqr.org"
	if userID != "" {
		host = userID + "@" + host
	}
	return s.cfg.AuthScheme + "://" + host + "/" + testSessionKey + "/" + testQuestion + "/" + testSP + "/2"
}

// enroll runs a full enrollment of the server's default identity.
func (s *FlowSuite) enroll() *models.EnrollmentChallenge {
	c, err := s.enrollment.Parse(s.ctx, s.enrollRaw())
	s.Require().NoError(err)
	s.Require().NoError(s.enrollment.Complete(s.ctx, models.CompleteRequest[*models.EnrollmentChallenge]{
		Challenge:  c,
		Credential: secret.PINCredential(testPIN),
	}))
	return c
}

// enrolledSecret returns the secret the server received during the last enrollment.
func (s *FlowSuite) enrolledSecret() []byte {
	forms := s.server.EnrollForms()
	s.Require().NotEmpty(forms)
	key, err := hex.DecodeString(forms[len(forms)-1].Get("secret"))
	s.Require().NoError(err)
	return key
}

func (s *FlowSuite) expectedResponse(key []byte) string {
	want, err := ocra.Compute("OCRA-1:HOTP-SHA1-6:QH10-S", key, ocra.Input{
		Question: testQuestion,
		Session:  testSessionKey,
	})
	s.Require().NoError(err)
	return want
}

func (s *FlowSuite) auditActions(identityID int64) []audit.Action {
	events, err := s.auditLog.List(s.ctx, identityID)
	s.Require().NoError(err)
	actions := make([]audit.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *FlowSuite) reload(identity idmodels.Identity) *idmodels.Identity {
	got, err := s.identities.GetIdentityByID(s.ctx, identity.ID)
	s.Require().NoError(err)
	return got
}

// =============================================================================
// Resolver
// =============================================================================

type ResolverSuite struct {
	FlowSuite
	resolver *service.Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.FlowSuite.SetupTest()
	s.resolver = service.NewResolver(s.enrollment, s.authentication)
}

func (s *ResolverSuite) TestKind() {
	s.Equal(models.KindEnrollment, s.resolver.Kind(s.enrollRaw()))
	s.Equal(models.KindAuthentication, s.resolver.Kind(s.authRaw("")))
	s.Equal(models.Kind(""), s.resolver.Kind("https://example.org/hello"))
}

func (s *ResolverSuite) TestParseDispatches() {
	s.Run("enrollment", func() {
		c, err := s.resolver.Parse(s.ctx, s.enrollRaw())
		s.Require().NoError(err)
		s.Equal(models.KindEnrollment, c.Kind())
		s.Equal("demo.tiqr.org", c.Common().IdentityProvider.Identifier)
	})

	s.Run("authentication after enrollment", func() {
		s.enroll()
		c, err := s.resolver.Parse(s.ctx, s.authRaw(""))
		s.Require().NoError(err)
		title := models.Match(c,
			func(*models.EnrollmentChallenge) string { return "enroll" },
			func(a *models.AuthenticationChallenge) string { return a.Identity.Identifier },
		)
		s.Equal("alice", title)
	})
}

func (s *ResolverSuite) TestParseUnrecognized() {
	_, err := s.resolver.Parse(s.ctx, "not a challenge")
	s.Require().Error(err)

	var failure *models.ParseFailure
	s.Require().ErrorAs(err, &failure)
	s.Equal(models.ParseInvalidChallenge, failure.Reason)
	s.Equal(models.Kind(""), failure.Kind)
	s.NotEmpty(failure.Title)
}

func (s *ResolverSuite) TestAccessors() {
	s.Same(s.enrollment, s.resolver.Enrollment())
	s.Same(s.authentication, s.resolver.Authentication())
}
