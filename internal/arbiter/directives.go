package arbiter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// DirectiveBoard holds demand-response directives. At most one
// directive is held per pair; a newer directive replaces the incumbent.
//
// Thread-safe.
type DirectiveBoard struct {
	// now is the clock source; replaced in tests.
	now func() time.Time

	mu     sync.RWMutex
	byPair map[string]*Directive
}

// NewDirectiveBoard creates an empty directive board.
func NewDirectiveBoard() *DirectiveBoard {
	return &DirectiveBoard{
		now:    time.Now,
		byPair: make(map[string]*Directive),
	}
}

// Accept validates and stores a directive, replacing any incumbent on
// the same pair. The directive ID is assigned here.
func (b *DirectiveBoard) Accept(d Directive) (*Directive, error) {
	if !d.Scope.Valid() {
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidDirective, d.Scope.Key())
	}
	if !d.Parameter.Valid() {
		return nil, fmt.Errorf("%w: parameter %q", ErrInvalidDirective, d.Parameter)
	}
	if !d.NotAfter.After(d.NotBefore) {
		return nil, fmt.Errorf("%w: validity window is empty", ErrInvalidDirective)
	}
	now := b.now()
	if !d.NotAfter.After(now) {
		return nil, fmt.Errorf("%w: validity window has passed", ErrInvalidDirective)
	}

	d.ID = "dr-" + uuid.NewString()[:8]
	d.CreatedAt = now.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.byPair[control.PairKey(d.Scope, d.Parameter)] = &d
	return d.Copy(), nil
}

// Withdraw removes a directive by ID.
func (b *DirectiveBoard) Withdraw(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, d := range b.byPair {
		if d.ID == id {
			delete(b.byPair, key)
			return nil
		}
	}
	return ErrDirectiveNotFound
}

// Active returns the directive for a pair if one is valid at t.
func (b *DirectiveBoard) Active(scope control.Scope, p control.Parameter, t time.Time) (*Directive, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.byPair[control.PairKey(scope, p)]
	if !ok || !d.InWindow(t) {
		return nil, false
	}
	return d.Copy(), true
}

// List returns every stored directive, ordered by pair key, including
// ones not yet in their validity window.
func (b *DirectiveBoard) List() []Directive {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.byPair))
	for key := range b.byPair {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Directive, 0, len(keys))
	for _, key := range keys {
		out = append(out, *b.byPair[key])
	}
	return out
}

// PruneExpired drops directives whose window has closed. Run by the
// tick driver. Returns the number dropped.
func (b *DirectiveBoard) PruneExpired() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	pruned := 0
	for key, d := range b.byPair {
		if !d.NotAfter.After(now) {
			delete(b.byPair, key)
			pruned++
		}
	}
	return pruned
}
