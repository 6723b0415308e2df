// Package migrations evolves the identity store schema between versions.
//
// Versions 4 through 10 exist (there is no 6). The automatic chain is
// 4→5→7→8→10, plus 9→10 for stores that went through the deprecated 8→9 step.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"tiqr/internal/platform/metrics"
	"tiqr/internal/platform/sqlite"
	"tiqr/pkg/platform/sentinel"
)

const (
	// OldestVersion is the first schema version that can be upgraded.
	OldestVersion = 4
	// LatestVersion is the current schema version.
	LatestVersion = 10
)

var (
	// ErrNoPath is returned when no migration chain connects two versions.
	ErrNoPath = errors.New("no migration path")
	// ErrVersionMismatch is returned when a step is applied to a store at another version.
	ErrVersionMismatch = errors.New("schema version mismatch")
)

// Migrator applies schema migrations to a SQLite identity store.
type Migrator struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Migrator) {
		m.metrics = metrics
	}
}

// New creates a Migrator for db.
func New(db *sql.DB, opts ...Option) *Migrator {
	m := &Migrator{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Version returns the store's schema version. An empty database reports 0.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	return sqlite.UserVersion(ctx, m.db)
}

// Plan returns the steps leading from one version to another using only the
// given migrations. At each version the step reaching furthest without
// passing target is taken.
func Plan(from, to int, available []Migration) ([]Migration, error) {
	var path []Migration
	for current := from; current != to; {
		var next *Migration
		for i := range available {
			step := available[i]
			if step.From != current || step.To > to {
				continue
			}
			if next == nil || step.To > next.To {
				next = &available[i]
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w from %d to %d", ErrNoPath, from, to)
		}
		path = append(path, *next)
		current = next.To
	}
	return path, nil
}

// Migrate brings the store to LatestVersion. An empty database is created at
// LatestVersion directly. Returns the version found before migrating.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	version, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		empty, err := m.isEmpty(ctx)
		if err != nil {
			return 0, err
		}
		if !empty {
			return 0, fmt.Errorf("%w: unversioned database is not empty", ErrVersionMismatch)
		}
		m.logger.InfoContext(ctx, "creating identity store schema", "version", LatestVersion)
		return 0, CreateSchema(ctx, m.db, LatestVersion)
	}
	if version == LatestVersion {
		return version, nil
	}
	if version < OldestVersion || version > LatestVersion {
		return version, fmt.Errorf("%w: unsupported schema version %d", ErrNoPath, version)
	}

	path, err := Plan(version, LatestVersion, Valid())
	if err != nil {
		return version, err
	}
	for _, step := range path {
		if err := m.Apply(ctx, step); err != nil {
			return version, err
		}
	}
	return version, nil
}

// Apply runs a single step in one transaction. The store must be at step.From.
// Foreign key enforcement is suspended while tables are rebuilt and the
// result is checked before committing.
func (m *Migrator) Apply(ctx context.Context, step Migration) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON"); err != nil {
			m.logger.ErrorContext(ctx, "failed to re-enable foreign keys", "error", err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", step, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := sqlite.UserVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current != step.From {
		return fmt.Errorf("%w: migration %s on version %d", ErrVersionMismatch, step, current)
	}

	if step.Deprecated {
		m.logger.WarnContext(ctx, "applying deprecated migration", "migration", step.String(), "description", step.Description)
	} else {
		m.logger.InfoContext(ctx, "applying migration", "migration", step.String(), "description", step.Description)
	}

	if err := execAll(ctx, tx, step.Statements); err != nil {
		return fmt.Errorf("migration %s: %w", step, err)
	}
	if err := foreignKeyCheck(ctx, tx); err != nil {
		return fmt.Errorf("migration %s: %w", step, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.To)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", step, err)
	}

	m.metrics.IncrementMigrationStep(step.From, step.To)
	return nil
}

// Check runs a full integrity check on the store.
func (m *Migrator) Check(ctx context.Context) error {
	return sqlite.IntegrityCheck(ctx, m.db)
}

func (m *Migrator) isEmpty(ctx context.Context) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('identity', 'identityprovider')`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n == 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execAll(ctx context.Context, db execer, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if sqlite.IsConstraint(err) {
				return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
			}
			return err
		}
	}
	return nil
}

func foreignKeyCheck(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return fmt.Errorf("%w: foreign key violation after rebuild", sentinel.ErrConflict)
	}
	return rows.Err()
}

func fmtStep(from, to int) string {
	return fmt.Sprintf("%d->%d", from, to)
}
