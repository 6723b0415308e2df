// Package service manages enrolled identities: listing, deletion and
// turning biometric unlock off.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tiqr/internal/audit"
	"tiqr/internal/identity/models"
	"tiqr/internal/secret"
)

// Store is the subset of the identity store this service needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListIdentities(ctx context.Context) ([]models.IdentityWithProvider, error)
	GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error)
	UpdateIdentity(ctx context.Context, i models.Identity) error
	DeleteIdentity(ctx context.Context, id int64) error
	DeleteIdentityProvider(ctx context.Context, id int64) error
	CountIdentitiesForProvider(ctx context.Context, providerID int64) (int, error)
	AllIdentitiesBlocked(ctx context.Context) (bool, error)
}

// Secrets removes stored secrets.
type Secrets interface {
	Delete(ctx context.Context, id secret.ID) error
	DeleteAll(ctx context.Context, identityID int64) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	secrets Secrets
	auditor AuditPublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func New(store Store, secrets Secrets, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if secrets == nil {
		return nil, errors.New("secret service is required")
	}
	s := &Service{store: store, secrets: secrets, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List returns every identity with its provider, in display order.
func (s *Service) List(ctx context.Context) ([]models.IdentityWithProvider, error) {
	out, err := s.store.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}

// AllBlocked reports whether identities exist and every one is blocked.
func (s *Service) AllBlocked(ctx context.Context) (bool, error) {
	return s.store.AllIdentitiesBlocked(ctx)
}

// Delete removes the identity and, when nothing else references it, its
// provider. Secrets are removed after the rows are gone.
func (s *Service) Delete(ctx context.Context, identityID int64) error {
	var identity *models.Identity
	providerRemoved := false
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		identity, err = s.store.GetIdentityByID(ctx, identityID)
		if err != nil {
			return fmt.Errorf("find identity: %w", err)
		}
		if err := s.store.DeleteIdentity(ctx, identity.ID); err != nil {
			return err
		}
		remaining, err := s.store.CountIdentitiesForProvider(ctx, identity.IdentityProviderID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if err := s.store.DeleteIdentityProvider(ctx, identity.IdentityProviderID); err != nil {
			return err
		}
		providerRemoved = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete identity %d: %w", identityID, err)
	}

	if err := s.secrets.DeleteAll(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete secrets of identity %d: %w", identity.ID, err)
	}

	s.logger.InfoContext(ctx, "identity deleted",
		"identity_id", identity.ID,
		"provider_removed", providerRemoved,
	)
	s.emit(ctx, audit.Event{
		Action:     audit.ActionIdentityDeleted,
		IdentityID: identity.ID,
		Identity:   identity.Identifier,
	})
	return nil
}

// DisableBiometric stops biometric unlock for the identity and removes its
// biometric secret. The PIN secret is kept.
func (s *Service) DisableBiometric(ctx context.Context, identityID int64) error {
	identity, err := s.store.GetIdentityByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("find identity: %w", err)
	}

	updated := *identity
	updated.BiometricInUse = false
	updated.BiometricOfferUpgrade = false
	if err := s.store.UpdateIdentity(ctx, updated); err != nil {
		return err
	}
	if err := s.secrets.Delete(ctx, secret.IdentityFor(identity.ID, secret.Biometric)); err != nil {
		return fmt.Errorf("delete biometric secret: %w", err)
	}

	s.emit(ctx, audit.Event{
		Action:     audit.ActionBiometricDisabled,
		IdentityID: identity.ID,
		Identity:   identity.Identifier,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", string(event.Action), "error", err)
	}
}
