package override

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// Repository defines the persistence interface for overrides.
type Repository interface {
	Create(ctx context.Context, o *Override) error
	// UpdateStatus rewrites only the status and reverted timestamp.
	UpdateStatus(ctx context.Context, id string, status Status, revertedAt *time.Time) error
	// Delete removes an override row. Used only to roll back a create
	// whose audit record could not be written.
	Delete(ctx context.Context, id string) error
	// Get returns one override by ID, terminal or not.
	Get(ctx context.Context, id string) (*Override, error)
	// ListActive returns all overrides in status Active, for cache
	// warm-up on startup.
	ListActive(ctx context.Context) ([]Override, error)
	// ListByScope returns recent overrides for a scope, newest first.
	ListByScope(ctx context.Context, scopeKey string, limit int) ([]Override, error)
}

// defaultHistoryLimit bounds ListByScope when the caller passes 0.
const defaultHistoryLimit = 50

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SQLiteRepository stores overrides in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new override repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new override row.
func (r *SQLiteRepository) Create(ctx context.Context, o *Override) error {
	var currentValue any
	if o.CurrentValue != nil {
		currentValue = *o.CurrentValue
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO overrides (id, scope, parameter, current_value, override_value, unit,
		                        ttl_seconds, reason, actor, precedence, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Scope.Key(), string(o.Parameter), currentValue, o.OverrideValue,
		nullableString(o.Unit), o.TTLSeconds, o.Reason, o.Actor, o.Precedence.String(),
		string(o.Status),
		o.CreatedAt.UTC().Format(time.RFC3339Nano),
		o.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting override: %w", err)
	}
	return nil
}

// UpdateStatus rewrites an override's status and reverted timestamp.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, revertedAt *time.Time) error {
	var reverted any
	if revertedAt != nil {
		reverted = revertedAt.UTC().Format(time.RFC3339Nano)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE overrides SET status = ?, reverted_at = ? WHERE id = ?",
		string(status), reverted, id)
	if err != nil {
		return fmt.Errorf("updating override status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating override status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an override row.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM overrides WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting override: %w", err)
	}
	return nil
}

// Get returns one override by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Override, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" FROM overrides WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying override %s: %w", id, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying override %s: %w", id, err)
		}
		return nil, ErrNotFound
	}
	return scanOverride(rows)
}

// ListActive returns all overrides in status Active.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Override, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+" FROM overrides WHERE status = ? ORDER BY created_at ASC",
		string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("querying active overrides: %w", err)
	}
	defer rows.Close()
	return collectOverrides(rows)
}

// ListByScope returns recent overrides for a scope, newest first.
func (r *SQLiteRepository) ListByScope(ctx context.Context, scopeKey string, limit int) ([]Override, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx,
		selectColumns+" FROM overrides WHERE scope = ? ORDER BY created_at DESC LIMIT ?",
		scopeKey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying overrides for %s: %w", scopeKey, err)
	}
	defer rows.Close()
	return collectOverrides(rows)
}

const selectColumns = `SELECT id, scope, parameter, current_value, override_value, unit,
	ttl_seconds, reason, actor, precedence, status, created_at, expires_at, reverted_at`

func collectOverrides(rows *sql.Rows) ([]Override, error) {
	var overrides []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	if overrides == nil {
		overrides = []Override{}
	}
	return overrides, nil
}

func scanOverride(rows *sql.Rows) (*Override, error) {
	var (
		o                    Override
		scopeKey             string
		parameter            string
		currentValue         sql.NullFloat64
		unit                 sql.NullString
		precedence           string
		status               string
		createdAt, expiresAt string
		revertedAt           sql.NullString
	)

	if err := rows.Scan(&o.ID, &scopeKey, &parameter, &currentValue, &o.OverrideValue,
		&unit, &o.TTLSeconds, &o.Reason, &o.Actor, &precedence, &status,
		&createdAt, &expiresAt, &revertedAt); err != nil {
		return nil, fmt.Errorf("scanning override: %w", err)
	}

	scope, err := control.ParseScope(scopeKey)
	if err != nil {
		return nil, fmt.Errorf("override %s: %w", o.ID, err)
	}
	o.Scope = scope
	o.Parameter = control.Parameter(parameter)
	if currentValue.Valid {
		v := currentValue.Float64
		o.CurrentValue = &v
	}
	if unit.Valid {
		o.Unit = unit.String
	}
	prec, err := control.ParsePrecedence(precedence)
	if err != nil {
		return nil, fmt.Errorf("override %s: %w", o.ID, err)
	}
	o.Precedence = prec
	o.Status = Status(status)

	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing override created_at %q: %w", createdAt, err)
	}
	if o.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing override expires_at %q: %w", expiresAt, err)
	}
	if revertedAt.Valid {
		t, parseErr := time.Parse(time.RFC3339Nano, revertedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing override reverted_at %q: %w", revertedAt.String, parseErr)
		}
		o.RevertedAt = &t
	}
	return &o, nil
}
