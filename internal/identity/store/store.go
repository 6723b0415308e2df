package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"tiqr/internal/identity/models"
	"tiqr/internal/platform/metrics"
	"tiqr/internal/platform/sqlite"
	"tiqr/pkg/platform/sentinel"
	txcontext "tiqr/pkg/platform/tx"
)

// Store persists identities and identity providers in SQLite.
// The schema must be at the latest version; see package migrations.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier *notifier
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New constructs a SQLite-backed identity store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default(), notifier: newNotifier()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn in a transaction. Store calls made with the ctx passed to fn
// join it. Watchers are notified once after commit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	err := sqlite.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(txcontext.WithTx(ctx, tx))
	})
	if err != nil {
		return err
	}
	s.notifier.publish()
	return nil
}

func (s *Store) q(ctx context.Context) txcontext.Querier {
	return txcontext.Or(ctx, s.db)
}

// changed notifies watchers unless the write belongs to an open transaction.
func (s *Store) changed(ctx context.Context) {
	if _, ok := txcontext.From(ctx); ok {
		return
	}
	s.notifier.publish()
}

// InsertIdentityProvider stores p and returns its row id. A constraint
// violation yields models.FailedID with a nil error.
func (s *Store) InsertIdentityProvider(ctx context.Context, p models.IdentityProvider) (int64, error) {
	query := `
		INSERT INTO identityprovider (displayName, identifier, authenticationUrl, ocraSuite, infoUrl, logo)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		p.DisplayName, p.Identifier, p.AuthenticationURL, p.OCRASuite, nullString(p.InfoURL), nullString(p.Logo),
	)
	if err != nil {
		return s.insertFailed(ctx, "identityprovider", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.FailedID, fmt.Errorf("insert identity provider id: %w", err)
	}
	s.changed(ctx)
	return id, nil
}

// InsertIdentity stores i and returns its row id. A constraint violation,
// such as an unknown provider id, yields models.FailedID with a nil error.
func (s *Store) InsertIdentity(ctx context.Context, i models.Identity) (int64, error) {
	query := `
		INSERT INTO identity (displayName, identifier, identityProvider, blocked, sortIndex, biometricInUse, biometricOfferUpgrade)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		i.DisplayName, i.Identifier, i.IdentityProviderID, i.Blocked, i.SortIndex, i.BiometricInUse, i.BiometricOfferUpgrade,
	)
	if err != nil {
		return s.insertFailed(ctx, "identity", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.FailedID, fmt.Errorf("insert identity id: %w", err)
	}
	s.metrics.IncrementIdentitiesCreated()
	s.changed(ctx)
	return id, nil
}

func (s *Store) insertFailed(ctx context.Context, table string, err error) (int64, error) {
	s.metrics.IncrementInsertFailure(table)
	if sqlite.IsConstraint(err) {
		s.logger.WarnContext(ctx, "insert rejected by constraint", "table", table, "error", err)
		return models.FailedID, nil
	}
	return models.FailedID, fmt.Errorf("insert %s: %w", table, err)
}

const identityColumns = `i._id, i.displayName, i.identifier, i.identityProvider, i.blocked, i.sortIndex, i.biometricInUse, i.biometricOfferUpgrade`

const providerColumns = `p._id, p.displayName, p.identifier, p.authenticationUrl, p.ocraSuite, p.infoUrl, p.logo`

// GetIdentity finds the identity with identifier enrolled at a provider with providerIdentifier.
// Returns sentinel.ErrNotFound when absent.
func (s *Store) GetIdentity(ctx context.Context, identifier, providerIdentifier string) (*models.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identity i
		JOIN identityprovider p ON p._id = i.identityProvider
		WHERE i.identifier = ? AND p.identifier = ?
		ORDER BY i._id
		LIMIT 1
	`
	identity, err := scanIdentity(s.q(ctx).QueryRowContext(ctx, query, identifier, providerIdentifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// GetIdentityByID returns the identity with the given row id.
func (s *Store) GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identity i WHERE i._id = ?`
	identity, err := scanIdentity(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get identity by id: %w", err)
	}
	return identity, nil
}

// GetIdentityProvider returns the provider with the given row id.
func (s *Store) GetIdentityProvider(ctx context.Context, id int64) (*models.IdentityProvider, error) {
	query := `SELECT ` + providerColumns + ` FROM identityprovider p WHERE p._id = ?`
	provider, err := scanProvider(s.q(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get identity provider: %w", err)
	}
	return provider, nil
}

// IdentitiesForProvider lists identities enrolled at any provider with
// providerIdentifier, ordered for display.
func (s *Store) IdentitiesForProvider(ctx context.Context, providerIdentifier string) ([]models.IdentityWithProvider, error) {
	query := `
		SELECT ` + identityColumns + `, ` + providerColumns + `
		FROM identity i
		JOIN identityprovider p ON p._id = i.identityProvider
		WHERE p.identifier = ?
		ORDER BY i.sortIndex, i._id
	`
	return s.listWithProvider(ctx, query, providerIdentifier)
}

// ListIdentities lists all identities with their providers, ordered for display.
func (s *Store) ListIdentities(ctx context.Context) ([]models.IdentityWithProvider, error) {
	query := `
		SELECT ` + identityColumns + `, ` + providerColumns + `
		FROM identity i
		JOIN identityprovider p ON p._id = i.identityProvider
		ORDER BY i.sortIndex, i._id
	`
	return s.listWithProvider(ctx, query)
}

func (s *Store) listWithProvider(ctx context.Context, query string, args ...any) ([]models.IdentityWithProvider, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityWithProvider
	for rows.Next() {
		var (
			item          models.IdentityWithProvider
			infoURL, logo sql.NullString
		)
		err := rows.Scan(
			&item.Identity.ID, &item.Identity.DisplayName, &item.Identity.Identifier, &item.Identity.IdentityProviderID,
			&item.Identity.Blocked, &item.Identity.SortIndex, &item.Identity.BiometricInUse, &item.Identity.BiometricOfferUpgrade,
			&item.Provider.ID, &item.Provider.DisplayName, &item.Provider.Identifier, &item.Provider.AuthenticationURL,
			&item.Provider.OCRASuite, &infoURL, &logo,
		)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		item.Provider.InfoURL = infoURL.String
		item.Provider.Logo = logo.String
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// UpdateIdentity writes every mutable column of i. Returns sentinel.ErrNotFound
// when no row has i.ID.
func (s *Store) UpdateIdentity(ctx context.Context, i models.Identity) error {
	query := `
		UPDATE identity
		SET displayName = ?, identifier = ?, identityProvider = ?, blocked = ?, sortIndex = ?,
			biometricInUse = ?, biometricOfferUpgrade = ?
		WHERE _id = ?
	`
	res, err := s.q(ctx).ExecContext(ctx, query,
		i.DisplayName, i.Identifier, i.IdentityProviderID, i.Blocked, i.SortIndex,
		i.BiometricInUse, i.BiometricOfferUpgrade, i.ID,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("update identity %d: %w", i.ID, err)
	}
	s.changed(ctx)
	return nil
}

// DeleteIdentity removes the identity with the given id.
func (s *Store) DeleteIdentity(ctx context.Context, id int64) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM identity WHERE _id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	s.changed(ctx)
	return nil
}

// DeleteIdentityProvider removes a provider. Fails with sentinel.ErrConflict
// while identities still reference it.
func (s *Store) DeleteIdentityProvider(ctx context.Context, id int64) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM identityprovider WHERE _id = ?`, id)
	if err != nil {
		if sqlite.IsConstraint(err) {
			return fmt.Errorf("delete identity provider %d: %w", id, sentinel.ErrConflict)
		}
		return fmt.Errorf("delete identity provider: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("delete identity provider %d: %w", id, err)
	}
	s.changed(ctx)
	return nil
}

// CountIdentitiesForProvider counts identities referencing the provider row.
func (s *Store) CountIdentitiesForProvider(ctx context.Context, providerID int64) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM identity WHERE identityProvider = ?`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count identities for provider: %w", err)
	}
	return n, nil
}

// IdentityCount counts all identities.
func (s *Store) IdentityCount(ctx context.Context) (int, error) {
	var n int
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM identity`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

// AllIdentitiesBlocked reports whether at least one identity exists and none is usable.
func (s *Store) AllIdentitiesBlocked(ctx context.Context) (bool, error) {
	var total, blocked int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN blocked THEN 1 ELSE 0 END), 0) FROM identity`,
	).Scan(&total, &blocked)
	if err != nil {
		return false, fmt.Errorf("count blocked identities: %w", err)
	}
	return total > 0 && total == blocked, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (*models.Identity, error) {
	var i models.Identity
	err := row.Scan(&i.ID, &i.DisplayName, &i.Identifier, &i.IdentityProviderID,
		&i.Blocked, &i.SortIndex, &i.BiometricInUse, &i.BiometricOfferUpgrade)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func scanProvider(row scanner) (*models.IdentityProvider, error) {
	var (
		p             models.IdentityProvider
		infoURL, logo sql.NullString
	)
	err := row.Scan(&p.ID, &p.DisplayName, &p.Identifier, &p.AuthenticationURL, &p.OCRASuite, &infoURL, &logo)
	if err != nil {
		return nil, err
	}
	p.InfoURL = infoURL.String
	p.Logo = logo.String
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
