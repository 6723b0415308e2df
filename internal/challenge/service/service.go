// Package service parses and completes tiqr challenges.
//
// EnrollmentService and AuthenticationService share the biometric upgrade
// operations through base. Every exported operation runs on the worker pool
// so callers can bound the number of concurrent server round trips and
// key derivations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tiqr/internal/api"
	"tiqr/internal/audit"
	"tiqr/internal/challenge/metrics"
	"tiqr/internal/challenge/models"
	"tiqr/internal/challenge/validation"
	idmodels "tiqr/internal/identity/models"
	"tiqr/internal/platform/worker"
	"tiqr/internal/secret"
	"tiqr/pkg/platform/sentinel"
)

const tracerName = "tiqr/internal/challenge/service"

// IdentityStore is the subset of the identity store the services use.
type IdentityStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertIdentityProvider(ctx context.Context, p idmodels.IdentityProvider) (int64, error)
	InsertIdentity(ctx context.Context, i idmodels.Identity) (int64, error)
	GetIdentity(ctx context.Context, identifier, providerIdentifier string) (*idmodels.Identity, error)
	IdentitiesForProvider(ctx context.Context, providerIdentifier string) ([]idmodels.IdentityWithProvider, error)
	UpdateIdentity(ctx context.Context, i idmodels.Identity) error
}

// SecretService creates, wraps and unwraps identity secrets.
type SecretService interface {
	CreateSecret() (secret.Secret, error)
	CreateSecretIdentity(identityID int64, kind secret.Type) secret.ID
	CreateSessionKey(ctx context.Context, cred secret.Credential) (secret.SessionKey, error)
	Save(ctx context.Context, id secret.ID, s secret.Secret, key secret.SessionKey) error
	Load(ctx context.Context, id secret.ID, key secret.SessionKey) (secret.Secret, error)
}

// TiqrAPI is the remote tiqr server.
type TiqrAPI interface {
	RequestMetadata(ctx context.Context, metadataURL string) (*api.Metadata, error)
	Enroll(ctx context.Context, enrollmentURL string, in api.EnrollRequest) (*api.EnrollResponse, error)
	Authenticate(ctx context.Context, authURL string, in api.AuthenticateRequest) (*api.AuthenticateResponse, error)
}

// AuditPublisher records completed flows.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Repository is the contract both challenge kinds fulfil.
type Repository[C models.Challenge] interface {
	IsValid(raw string) bool
	Parse(ctx context.Context, raw string) (C, error)
	Complete(ctx context.Context, req models.CompleteRequest[C]) error
	UpgradeBiometric(ctx context.Context, identity idmodels.Identity, provider idmodels.IdentityProvider, pin string) error
	StopOfferBiometric(ctx context.Context, identity idmodels.Identity, provider idmodels.IdentityProvider) error
}

var (
	_ Repository[*models.EnrollmentChallenge]     = (*EnrollmentService)(nil)
	_ Repository[*models.AuthenticationChallenge] = (*AuthenticationService)(nil)
)

// base holds the collaborators shared by both services.
type base struct {
	cfg       models.Config
	validator *validation.Validator
	store     IdentityStore
	secrets   SecretService
	api       TiqrAPI
	pool      *worker.Pool
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   AuditPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures either service.
type Option func(*base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(b *base) {
		b.auditor = p
	}
}

// WithPool runs operations on p instead of an unbounded pool.
func WithPool(p *worker.Pool) Option {
	return func(b *base) {
		b.pool = p
	}
}

func newBase(cfg models.Config, store IdentityStore, secrets SecretService, client TiqrAPI, opts []Option) (base, error) {
	if store == nil {
		return base{}, errors.New("identity store is required")
	}
	if secrets == nil {
		return base{}, errors.New("secret service is required")
	}
	if client == nil {
		return base{}, errors.New("api client is required")
	}
	b := base{
		cfg:       cfg,
		validator: validation.New(cfg),
		store:     store,
		secrets:   secrets,
		api:       client,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b, nil
}

func (b *base) registration() api.Registration {
	return api.Registration{
		Language:            b.cfg.Language,
		NotificationType:    b.cfg.NotificationType,
		NotificationAddress: b.cfg.NotificationAddress,
	}
}

func (b *base) emit(ctx context.Context, event audit.Event) {
	if b.auditor == nil {
		return
	}
	if err := b.auditor.Emit(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"error", err,
		)
	}
}

// resolve returns the persisted copy of identity, looking it up by
// identifier when it has no row id yet.
func (b *base) resolve(ctx context.Context, identity idmodels.Identity, provider idmodels.IdentityProvider) (*idmodels.Identity, error) {
	persisted, err := b.store.GetIdentity(ctx, identity.Identifier, provider.Identifier)
	if err != nil {
		return nil, fmt.Errorf("find identity %q at %q: %w", identity.Identifier, provider.Identifier, err)
	}
	return persisted, nil
}

// UpgradeBiometric re-wraps the PIN-protected secret of identity under the
// biometric key, then marks the identity as using biometrics.
//
// The two writes are not atomic: an interruption between them leaves a
// biometric secret behind while BiometricInUse is still false.
func (b *base) UpgradeBiometric(ctx context.Context, identity idmodels.Identity, provider idmodels.IdentityProvider, pin string) error {
	return worker.Do(ctx, b.pool, func(ctx context.Context) error {
		persisted, err := b.resolve(ctx, identity, provider)
		if err != nil {
			return err
		}

		pinKey, err := b.secrets.CreateSessionKey(ctx, secret.PINCredential(pin))
		if err != nil {
			return fmt.Errorf("derive pin key: %w", err)
		}
		value, err := b.secrets.Load(ctx, b.secrets.CreateSecretIdentity(persisted.ID, secret.PIN), pinKey)
		if err != nil {
			return fmt.Errorf("load pin secret: %w", err)
		}

		bioKey, err := b.secrets.CreateSessionKey(ctx, secret.BiometricCredential())
		if err != nil {
			return fmt.Errorf("derive biometric key: %w", err)
		}
		if err := b.secrets.Save(ctx, b.secrets.CreateSecretIdentity(persisted.ID, secret.Biometric), value, bioKey); err != nil {
			return fmt.Errorf("save biometric secret: %w", err)
		}

		updated := *persisted
		updated.BiometricInUse = true
		updated.BiometricOfferUpgrade = false
		if err := b.store.UpdateIdentity(ctx, updated); err != nil {
			return fmt.Errorf("update identity: %w", err)
		}

		b.logger.InfoContext(ctx, "biometric upgrade completed", "identity_id", persisted.ID)
		b.emit(ctx, audit.Event{
			Action:           audit.ActionBiometricUpgraded,
			IdentityID:       persisted.ID,
			Identity:         persisted.Identifier,
			IdentityProvider: provider.Identifier,
		})
		return nil
	})
}

// StopOfferBiometric records that the user declined the biometric upgrade.
func (b *base) StopOfferBiometric(ctx context.Context, identity idmodels.Identity, provider idmodels.IdentityProvider) error {
	return worker.Do(ctx, b.pool, func(ctx context.Context) error {
		persisted, err := b.resolve(ctx, identity, provider)
		if err != nil {
			return err
		}
		updated := *persisted
		updated.BiometricOfferUpgrade = false
		if err := b.store.UpdateIdentity(ctx, updated); err != nil {
			return fmt.Errorf("update identity: %w", err)
		}
		b.emit(ctx, audit.Event{
			Action:           audit.ActionBiometricOfferMuted,
			IdentityID:       persisted.ID,
			Identity:         persisted.Identifier,
			IdentityProvider: provider.Identifier,
		})
		return nil
	})
}

// completeReasonForAPI maps a client error to a completion reason.
func completeReasonForAPI(err error) models.CompleteReason {
	switch api.GetCategory(err) {
	case api.ErrorTransport:
		return models.CompleteConnection
	case api.ErrorDecode, api.ErrorStatus:
		return models.CompleteInvalidResponse
	default:
		return models.CompleteUnknown
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// completeFailureOf converts a pool error such as a cancelled wait into a
// typed failure when the task itself did not return one.
func completeFailureOf(kind models.Kind, err error) error {
	if err == nil {
		return nil
	}
	var f *models.CompleteFailure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewCompleteFailure(kind, models.CompleteConnection, err)
	}
	return models.NewCompleteFailure(kind, models.CompleteUnknown, err)
}

func parseFailureOf(kind models.Kind, err error) error {
	if err == nil {
		return nil
	}
	var f *models.ParseFailure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewParseFailure(kind, models.ParseConnection, err)
	}
	return models.NewParseFailure(kind, models.ParseInvalidChallenge, err)
}
