package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pagination defaults for audit queries.
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 500
)

// SQLiteRepository stores audit events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert appends an event row. The ledger has already assigned ID,
// timestamp and chain hashes; this is a plain insert and fails if the
// ID collides (entries are never replaced).
func (r *SQLiteRepository) Insert(ctx context.Context, e *Event) error {
	var metadataJSON *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling audit metadata: %w", err)
		}
		s := string(b)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, ts, type, actor, scope, action, reason, metadata, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Type), e.Actor,
		nullableString(e.Scope), e.Action, nullableString(e.Reason),
		metadataJSON, e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, ordered by timestamp ascending.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, filter.Scope)
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Since != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Until != nil {
		conditions = append(conditions, "ts < ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, ts, type, actor, scope, action, reason, metadata, prev_hash, hash FROM audit_events %s ORDER BY ts ASC, rowid ASC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// Last returns the most recent event, or nil when the ledger is empty.
func (r *SQLiteRepository) Last(ctx context.Context) (*Event, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, ts, type, actor, scope, action, reason, metadata, prev_hash, hash FROM audit_events ORDER BY ts DESC, rowid DESC LIMIT 1")

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanEvent.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		e            Event
		ts           string
		scope        sql.NullString
		reason       sql.NullString
		metadataJSON sql.NullString
		eventType    string
	)

	if err := row.Scan(&e.ID, &ts, &eventType, &e.Actor, &scope, &e.Action,
		&reason, &metadataJSON, &e.PrevHash, &e.Hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning audit event: %w", err)
	}

	e.Type = EventType(eventType)
	if scope.Valid {
		e.Scope = scope.String
	}
	if reason.Valid {
		e.Reason = reason.String
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		var metadata map[string]any
		if json.Unmarshal([]byte(metadataJSON.String), &metadata) == nil {
			e.Metadata = metadata
		}
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parsing audit event timestamp %q: %w", ts, err)
	}
	e.Timestamp = t

	return &e, nil
}
