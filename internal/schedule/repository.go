package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// Repository defines persistence for schedules, pending activations and
// batch groups.
type Repository interface {
	SaveSchedule(ctx context.Context, s *Schedule) error
	ListSchedules(ctx context.Context) ([]Schedule, error)
	SaveActivation(ctx context.Context, a *Activation) error
	DeleteActivation(ctx context.Context, id string) error
	ListActivations(ctx context.Context) ([]Activation, error)
	SaveBatchGroup(ctx context.Context, g *BatchGroup) error
	ListBatchGroups(ctx context.Context) ([]BatchGroup, error)
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a schedule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveSchedule inserts or replaces a schedule row.
func (r *SQLiteRepository) SaveSchedule(ctx context.Context, s *Schedule) error {
	blackouts, err := json.Marshal(s.Blackouts)
	if err != nil {
		return fmt.Errorf("marshaling blackouts: %w", err)
	}
	deferred, err := json.Marshal(parameterStrings(s.DeferredParams))
	if err != nil {
		return fmt.Errorf("marshaling deferred params: %w", err)
	}

	var activatedAt sql.NullString
	if s.ActivatedAt != nil {
		activatedAt = sql.NullString{String: s.ActivatedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	var activeRecipe sql.NullString
	if s.ActiveRecipeID != "" {
		activeRecipe = sql.NullString{String: s.ActiveRecipeID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO schedules
			(id, scope, timezone, day_start, night_start, blackouts,
			 active_recipe_id, active_version, activated_at, deferred_params,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Scope.Key(),
		s.Timezone,
		int(s.DayStart),
		int(s.NightStart),
		string(blackouts),
		activeRecipe,
		s.ActiveVersion,
		activatedAt,
		string(deferred),
		s.CreatedAt.UTC().Format(time.RFC3339Nano),
		s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving schedule %s: %w", s.ID, err)
	}
	return nil
}

// ListSchedules returns all schedules.
func (r *SQLiteRepository) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, timezone, day_start, night_start, blackouts,
		       active_recipe_id, active_version, activated_at, deferred_params,
		       created_at, updated_at
		FROM schedules ORDER BY scope ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SaveActivation inserts or replaces a pending activation row.
func (r *SQLiteRepository) SaveActivation(ctx context.Context, a *Activation) error {
	deferred, err := json.Marshal(parameterStrings(a.Deferred))
	if err != nil {
		return fmt.Errorf("marshaling deferred params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO activations
			(id, scope, recipe_id, version, activate_at, deferred, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Scope.Key(),
		a.RecipeID,
		a.Version,
		a.ActivateAt.UTC().Format(time.RFC3339Nano),
		string(deferred),
		a.CreatedBy,
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving activation %s: %w", a.ID, err)
	}
	return nil
}

// DeleteActivation removes a pending activation row.
func (r *SQLiteRepository) DeleteActivation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting activation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrActivationNotFound
	}
	return nil
}

// ListActivations returns all pending activations ordered by effective
// time.
func (r *SQLiteRepository) ListActivations(ctx context.Context) ([]Activation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, recipe_id, version, activate_at, deferred, created_by, created_at
		FROM activations ORDER BY activate_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing activations: %w", err)
	}
	defer rows.Close()

	var out []Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SaveBatchGroup inserts or replaces a batch group row.
func (r *SQLiteRepository) SaveBatchGroup(ctx context.Context, g *BatchGroup) error {
	pods, err := json.Marshal(g.PodIDs)
	if err != nil {
		return fmt.Errorf("marshaling pod ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO batch_groups (id, name, pod_ids, created_at)
		VALUES (?, ?, ?, ?)`,
		g.ID,
		g.Name,
		string(pods),
		g.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving batch group %s: %w", g.ID, err)
	}
	return nil
}

// ListBatchGroups returns all batch groups.
func (r *SQLiteRepository) ListBatchGroups(ctx context.Context) ([]BatchGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, pod_ids, created_at
		FROM batch_groups ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing batch groups: %w", err)
	}
	defer rows.Close()

	var out []BatchGroup
	for rows.Next() {
		var g BatchGroup
		var pods, createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &pods, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning batch group: %w", err)
		}
		if err := json.Unmarshal([]byte(pods), &g.PodIDs); err != nil {
			return nil, fmt.Errorf("parsing pod ids: %w", err)
		}
		g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*Schedule, error) {
	var (
		s            Schedule
		scopeKey     string
		dayStart     int
		nightStart   int
		blackouts    string
		activeRecipe sql.NullString
		activatedAt  sql.NullString
		deferred     string
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(
		&s.ID, &scopeKey, &s.Timezone, &dayStart, &nightStart, &blackouts,
		&activeRecipe, &s.ActiveVersion, &activatedAt, &deferred,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	scope, err := control.ParseScope(scopeKey)
	if err != nil {
		return nil, fmt.Errorf("parsing scope: %w", err)
	}
	s.Scope = scope
	s.DayStart = TimeOfDay(dayStart)
	s.NightStart = TimeOfDay(nightStart)

	if err := json.Unmarshal([]byte(blackouts), &s.Blackouts); err != nil {
		return nil, fmt.Errorf("parsing blackouts: %w", err)
	}
	var deferredNames []string
	if err := json.Unmarshal([]byte(deferred), &deferredNames); err != nil {
		return nil, fmt.Errorf("parsing deferred params: %w", err)
	}
	for _, name := range deferredNames {
		s.DeferredParams = append(s.DeferredParams, control.Parameter(name))
	}

	if activeRecipe.Valid {
		s.ActiveRecipeID = activeRecipe.String
	}
	if activatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, activatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing activated_at: %w", err)
		}
		s.ActivatedAt = &t
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func scanActivation(row rowScanner) (*Activation, error) {
	var (
		a          Activation
		scopeKey   string
		activateAt string
		deferred   string
		createdAt  string
	)
	if err := row.Scan(
		&a.ID, &scopeKey, &a.RecipeID, &a.Version, &activateAt,
		&deferred, &a.CreatedBy, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("scanning activation: %w", err)
	}

	scope, err := control.ParseScope(scopeKey)
	if err != nil {
		return nil, fmt.Errorf("parsing scope: %w", err)
	}
	a.Scope = scope

	var deferredNames []string
	if err := json.Unmarshal([]byte(deferred), &deferredNames); err != nil {
		return nil, fmt.Errorf("parsing deferred params: %w", err)
	}
	for _, name := range deferredNames {
		a.Deferred = append(a.Deferred, control.Parameter(name))
	}

	if a.ActivateAt, err = time.Parse(time.RFC3339Nano, activateAt); err != nil {
		return nil, fmt.Errorf("parsing activate_at: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &a, nil
}
