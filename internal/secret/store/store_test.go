package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"tiqr/internal/platform/sqlite"
	"tiqr/internal/secret"
	"tiqr/pkg/platform/sentinel"
)

type SecretStoreSuite struct {
	suite.Suite
	newStore func() secret.Store
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &SecretStoreSuite{newStore: func() secret.Store { return NewInMemory() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := &SecretStoreSuite{}
	s.newStore = func() secret.Store {
		db, err := sqlite.Open(filepath.Join(s.T().TempDir(), "secrets.db"), "store-password")
		s.Require().NoError(err)
		s.T().Cleanup(func() { _ = db.Close() })
		store, err := NewSQLite(context.Background(), db)
		s.Require().NoError(err)
		return store
	}
	suite.Run(t, s)
}

func (s *SecretStoreSuite) TestPutGetOverwrite() {
	ctx := context.Background()
	store := s.newStore()

	s.Require().NoError(store.Put(ctx, "1:pin", []byte("first")))
	s.Require().NoError(store.Put(ctx, "1:pin", []byte("second")))

	got, err := store.Get(ctx, "1:pin")
	s.Require().NoError(err)
	s.Equal([]byte("second"), got)
}

func (s *SecretStoreSuite) TestGetMissing() {
	_, err := s.newStore().Get(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SecretStoreSuite) TestDelete() {
	ctx := context.Background()
	store := s.newStore()
	s.Require().NoError(store.Put(ctx, "1:pin", []byte("blob")))

	s.Require().NoError(store.Delete(ctx, "1:pin"))

	_, err := store.Get(ctx, "1:pin")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(store.Delete(ctx, "1:pin"), sentinel.ErrNotFound)
}

func (s *SecretStoreSuite) TestStoredBlobIsCopied() {
	ctx := context.Background()
	store := s.newStore()
	blob := []byte("blob")
	s.Require().NoError(store.Put(ctx, "1:pin", blob))
	blob[0] = 'X'

	got, err := store.Get(ctx, "1:pin")
	s.Require().NoError(err)
	s.Equal([]byte("blob"), got)
}
