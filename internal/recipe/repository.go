package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the persistence interface for recipes and versions.
type Repository interface {
	CreateRecipe(ctx context.Context, r *Recipe) error
	UpdateRecipe(ctx context.Context, r *Recipe) error
	GetRecipe(ctx context.Context, id string) (*Recipe, error)
	ListRecipes(ctx context.Context) ([]Recipe, error)
	// DeleteRecipe removes a recipe and its versions. Used only to roll
	// back a create whose audit record could not be written.
	DeleteRecipe(ctx context.Context, id string) error

	// SaveVersion inserts or replaces a version row. Only the working
	// (unpublished) version of a draft is ever rewritten; the store
	// enforces immutability of published versions.
	SaveVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, recipeID string, number int) (*Version, error)
	ListVersions(ctx context.Context, recipeID string) ([]Version, error)
}

// SQLiteRepository stores recipes in SQLite. Stages are serialised as a
// JSON document per version row; versions are read whole, never
// partially updated.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new recipe repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateRecipe inserts a new recipe row.
func (r *SQLiteRepository) CreateRecipe(ctx context.Context, rec *Recipe) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recipes (id, name, owner, status, current_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Owner, string(rec.Status), rec.CurrentVersion,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting recipe: %w", err)
	}
	return nil
}

// UpdateRecipe rewrites a recipe row.
func (r *SQLiteRepository) UpdateRecipe(ctx context.Context, rec *Recipe) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recipes SET name = ?, owner = ?, status = ?, current_version = ?, updated_at = ?
		 WHERE id = ?`,
		rec.Name, rec.Owner, string(rec.Status), rec.CurrentVersion,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating recipe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating recipe: %w", err)
	}
	if n == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

// GetRecipe returns one recipe by ID.
func (r *SQLiteRepository) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, owner, status, current_version, created_at, updated_at FROM recipes WHERE id = ?", id)
	rec, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListRecipes returns all recipes ordered by name.
func (r *SQLiteRepository) ListRecipes(ctx context.Context) ([]Recipe, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, owner, status, current_version, created_at, updated_at FROM recipes ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying recipes: %w", err)
	}
	defer rows.Close()

	var recipes []Recipe
	for rows.Next() {
		rec, scanErr := scanRecipe(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recipes = append(recipes, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recipes: %w", err)
	}
	if recipes == nil {
		recipes = []Recipe{}
	}
	return recipes, nil
}

// DeleteRecipe removes a recipe and its versions.
func (r *SQLiteRepository) DeleteRecipe(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM recipe_versions WHERE recipe_id = ?", id); err != nil {
		return fmt.Errorf("deleting recipe versions: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting recipe: %w", err)
	}
	return nil
}

// SaveVersion inserts or replaces a version row.
func (r *SQLiteRepository) SaveVersion(ctx context.Context, v *Version) error {
	stagesJSON, err := json.Marshal(v.Stages)
	if err != nil {
		return fmt.Errorf("marshalling stages: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO recipe_versions (recipe_id, number, published, created_by, created_at, notes, stages)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.RecipeID, v.Number, boolToInt(v.Published), v.CreatedBy,
		v.CreatedAt.UTC().Format(time.RFC3339Nano), nullableString(v.Notes), string(stagesJSON),
	)
	if err != nil {
		return fmt.Errorf("saving recipe version: %w", err)
	}
	return nil
}

// GetVersion returns one version of a recipe.
func (r *SQLiteRepository) GetVersion(ctx context.Context, recipeID string, number int) (*Version, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT recipe_id, number, published, created_by, created_at, notes, stages
		 FROM recipe_versions WHERE recipe_id = ? AND number = ?`, recipeID, number)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

// ListVersions returns all versions of a recipe, oldest first.
func (r *SQLiteRepository) ListVersions(ctx context.Context, recipeID string) ([]Version, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT recipe_id, number, published, created_by, created_at, notes, stages
		 FROM recipe_versions WHERE recipe_id = ? ORDER BY number ASC`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("querying recipe versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, scanErr := scanVersion(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recipe versions: %w", err)
	}
	if versions == nil {
		versions = []Version{}
	}
	return versions, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (*Recipe, error) {
	var (
		rec                  Recipe
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Owner, &status,
		&rec.CurrentVersion, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning recipe: %w", err)
	}
	rec.Status = Status(status)

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing recipe created_at %q: %w", createdAt, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing recipe updated_at %q: %w", updatedAt, err)
	}
	return &rec, nil
}

func scanVersion(row rowScanner) (*Version, error) {
	var (
		v          Version
		published  int
		createdAt  string
		notes      sql.NullString
		stagesJSON string
	)
	if err := row.Scan(&v.RecipeID, &v.Number, &published, &v.CreatedBy,
		&createdAt, &notes, &stagesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning recipe version: %w", err)
	}
	v.Published = published != 0
	if notes.Valid {
		v.Notes = notes.String
	}
	if err := json.Unmarshal([]byte(stagesJSON), &v.Stages); err != nil {
		return nil, fmt.Errorf("unmarshalling stages for %s v%d: %w", v.RecipeID, v.Number, err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing version created_at %q: %w", createdAt, err)
	}
	v.CreatedAt = t
	return &v, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
