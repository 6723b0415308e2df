package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"tiqr/internal/identity/migrations"
	"tiqr/internal/identity/models"
	"tiqr/internal/platform/metrics"
	"tiqr/internal/platform/sqlite"
	"tiqr/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	ctx     context.Context
	db      *sql.DB
	metrics *metrics.Metrics
	store   *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := sqlite.Open(filepath.Join(s.T().TempDir(), "identities.db"), "")
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	_, err = migrations.New(db).Migrate(s.ctx)
	s.Require().NoError(err)

	s.db = db
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.store = New(db, WithMetrics(s.metrics))
}

func newProvider(identifier string) models.IdentityProvider {
	return models.IdentityProvider{
		DisplayName:       "Tiqr demo",
		Identifier:        identifier,
		AuthenticationURL: "https://demo.tiqr.org/tiqrauth",
		OCRASuite:         "OCRA-1:HOTP-SHA1-6:QH10-S",
		InfoURL:           "https://demo.tiqr.org",
		Logo:              "https://demo.tiqr.org/logo.png",
	}
}

func (s *StoreSuite) enroll(providerIdentifier, identifier string) (models.IdentityProvider, models.Identity) {
	provider := newProvider(providerIdentifier)
	providerID, err := s.store.InsertIdentityProvider(s.ctx, provider)
	s.Require().NoError(err)
	s.Require().NotEqual(models.FailedID, providerID)
	provider.ID = providerID

	identity := models.NewIdentity(identifier, "John "+identifier)
	identity.IdentityProviderID = providerID
	identityID, err := s.store.InsertIdentity(s.ctx, identity)
	s.Require().NoError(err)
	s.Require().NotEqual(models.FailedID, identityID)
	identity.ID = identityID
	return provider, identity
}

func (s *StoreSuite) TestInsertAndGetIdentity() {
	provider, identity := s.enroll("demo.tiqr.org", "john")

	got, err := s.store.GetIdentity(s.ctx, "john", "demo.tiqr.org")
	s.Require().NoError(err)
	s.Equal(identity, *got)

	gotProvider, err := s.store.GetIdentityProvider(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Equal(provider, *gotProvider)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.IdentitiesCreated))
}

func (s *StoreSuite) TestGetIdentity_NotFound() {
	s.enroll("demo.tiqr.org", "john")

	_, err := s.store.GetIdentity(s.ctx, "john", "other.tiqr.org")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.GetIdentityByID(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestInsertIdentity_UnknownProviderReturnsFailedID() {
	identity := models.NewIdentity("john", "John")
	identity.IdentityProviderID = 42

	id, err := s.store.InsertIdentity(s.ctx, identity)

	s.NoError(err)
	s.Equal(models.FailedID, id)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.InsertFailures.WithLabelValues("identity")))
}

func (s *StoreSuite) TestProvidersMayShareIdentifier() {
	first, _ := s.enroll("shared", "alice")
	second, _ := s.enroll("shared", "bob")

	s.NotEqual(first.ID, second.ID)
	list, err := s.store.IdentitiesForProvider(s.ctx, "shared")
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *StoreSuite) TestUpdateIdentity() {
	_, identity := s.enroll("demo.tiqr.org", "john")

	identity.BiometricInUse = true
	identity.BiometricOfferUpgrade = false
	identity.Blocked = true
	s.Require().NoError(s.store.UpdateIdentity(s.ctx, identity))

	got, err := s.store.GetIdentityByID(s.ctx, identity.ID)
	s.Require().NoError(err)
	s.Equal(identity, *got)

	identity.ID = 999
	s.ErrorIs(s.store.UpdateIdentity(s.ctx, identity), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestDeleteProvider_RestrictedWhileReferenced() {
	provider, identity := s.enroll("demo.tiqr.org", "john")

	err := s.store.DeleteIdentityProvider(s.ctx, provider.ID)
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.store.DeleteIdentity(s.ctx, identity.ID))
	n, err := s.store.CountIdentitiesForProvider(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Zero(n)
	s.Require().NoError(s.store.DeleteIdentityProvider(s.ctx, provider.ID))
	s.ErrorIs(s.store.DeleteIdentityProvider(s.ctx, provider.ID), sentinel.ErrNotFound)
}

func (s *StoreSuite) TestRunInTx_RollsBack() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.InsertIdentityProvider(ctx, newProvider("demo.tiqr.org")); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	var n int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM identityprovider`).Scan(&n))
	s.Zero(n)
}

func (s *StoreSuite) TestCountsAndBlocked() {
	blocked, err := s.store.AllIdentitiesBlocked(s.ctx)
	s.Require().NoError(err)
	s.False(blocked, "no identities is not all blocked")

	_, alice := s.enroll("demo.tiqr.org", "alice")
	_, bob := s.enroll("demo.tiqr.org", "bob")

	count, err := s.store.IdentityCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)

	alice.Blocked = true
	s.Require().NoError(s.store.UpdateIdentity(s.ctx, alice))
	blocked, err = s.store.AllIdentitiesBlocked(s.ctx)
	s.Require().NoError(err)
	s.False(blocked)

	bob.Blocked = true
	s.Require().NoError(s.store.UpdateIdentity(s.ctx, bob))
	blocked, err = s.store.AllIdentitiesBlocked(s.ctx)
	s.Require().NoError(err)
	s.True(blocked)
}

func (s *StoreSuite) TestListIdentities_Ordered() {
	s.enroll("b.example", "second")
	s.enroll("a.example", "first")

	list, err := s.store.ListIdentities(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("second", list[0].Identity.Identifier)
	s.Equal("b.example", list[0].Provider.Identifier)
}

func awaitValue[T comparable](s *StoreSuite, ch <-chan T, want T) {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			s.Require().True(ok, "watch channel closed")
			if v == want {
				return
			}
		case <-timeout:
			s.FailNow("timed out waiting for watched value")
		}
	}
}

func (s *StoreSuite) TestWatchIdentityCount() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	counts := s.store.WatchIdentityCount(ctx)
	s.Equal(0, <-counts, "initial emission")

	s.enroll("demo.tiqr.org", "john")
	awaitValue(s, counts, 1)

	s.enroll("demo.tiqr.org", "jane")
	awaitValue(s, counts, 2)

	cancel()
	for range counts {
	}
}

func (s *StoreSuite) TestWatchAllIdentitiesBlocked() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	_, identity := s.enroll("demo.tiqr.org", "john")
	blocked := s.store.WatchAllIdentitiesBlocked(ctx)
	s.False(<-blocked)

	identity.Blocked = true
	s.Require().NoError(s.store.UpdateIdentity(s.ctx, identity))
	awaitValue(s, blocked, true)
}

func (s *StoreSuite) TestWatch_FallsBackOnQueryFailure() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	_, err := s.db.ExecContext(s.ctx, `DROP TABLE identity`)
	s.Require().NoError(err)

	s.Equal(0, <-s.store.WatchIdentityCount(ctx))
	s.False(<-s.store.WatchAllIdentitiesBlocked(ctx))
}
