package recipe

import "errors"

// Domain errors for the recipe package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, recipe.ErrValidationFailed) {
//	    // surface the validation issues to the caller
//	}
var (
	// ErrRecipeNotFound is returned when a recipe ID does not exist.
	ErrRecipeNotFound = errors.New("recipe: not found")

	// ErrVersionNotFound is returned when a version number does not exist.
	ErrVersionNotFound = errors.New("recipe: version not found")

	// ErrStageNotFound is returned when a stage index does not exist.
	ErrStageNotFound = errors.New("recipe: stage not found")

	// ErrValidationFailed is returned when error-severity validation
	// issues block a save or publish.
	ErrValidationFailed = errors.New("recipe: validation failed")

	// ErrNotDraft is returned when a mutation is attempted on a recipe
	// that is no longer in draft status.
	ErrNotDraft = errors.New("recipe: not a draft")

	// ErrNotPublished is returned when an operation requires a
	// published version (clone source, schedule activation).
	ErrNotPublished = errors.New("recipe: not published")

	// ErrInvalidName is returned when a recipe name is empty or too long.
	ErrInvalidName = errors.New("recipe: invalid name")
)
