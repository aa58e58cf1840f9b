package arbiter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
)

// SignalBoard holds the live safety or e-stop conditions for a site.
// Signals are externally owned push inputs, not persisted state: a
// restart starts from a clear board and collaborators re-assert.
//
// Thread-safe.
type SignalBoard struct {
	kind control.Precedence

	// now is the clock source; replaced in tests.
	now func() time.Time

	mu      sync.RWMutex
	byPair  map[string]*Signal // pair key -> pair-specific signal
	byScope map[string]*Signal // scope key -> scope-wide signal
}

// NewSignalBoard creates a board for one signal kind, which must be
// PrecedenceSafety or PrecedenceEStop.
func NewSignalBoard(kind control.Precedence) *SignalBoard {
	return &SignalBoard{
		kind:    kind,
		now:     time.Now,
		byPair:  make(map[string]*Signal),
		byScope: make(map[string]*Signal),
	}
}

// Raise asserts a signal. A signal with an empty Parameter covers every
// parameter of its scope. Re-raising replaces the previous assertion.
func (b *SignalBoard) Raise(sig Signal) error {
	if !sig.Scope.Valid() {
		return fmt.Errorf("%w: scope %q", ErrInvalidSignal, sig.Scope.Key())
	}
	if sig.Parameter != "" && !sig.Parameter.Valid() {
		return fmt.Errorf("%w: parameter %q", ErrInvalidSignal, sig.Parameter)
	}
	if sig.Reason == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidSignal)
	}
	sig.RaisedAt = b.now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()
	if sig.Parameter == "" {
		b.byScope[sig.Scope.Key()] = &sig
	} else {
		b.byPair[control.PairKey(sig.Scope, sig.Parameter)] = &sig
	}
	return nil
}

// Clear withdraws a signal. An empty parameter clears the scope-wide
// assertion only; pair-specific signals are cleared individually.
func (b *SignalBoard) Clear(scope control.Scope, p control.Parameter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p == "" {
		if _, ok := b.byScope[scope.Key()]; !ok {
			return ErrSignalNotFound
		}
		delete(b.byScope, scope.Key())
		return nil
	}
	key := control.PairKey(scope, p)
	if _, ok := b.byPair[key]; !ok {
		return ErrSignalNotFound
	}
	delete(b.byPair, key)
	return nil
}

// Active returns the signal covering a pair, preferring a pair-specific
// assertion over a scope-wide one.
func (b *SignalBoard) Active(scope control.Scope, p control.Parameter) (*Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sig, ok := b.byPair[control.PairKey(scope, p)]; ok {
		dup := *sig
		return &dup, true
	}
	if sig, ok := b.byScope[scope.Key()]; ok {
		dup := *sig
		return &dup, true
	}
	return nil, false
}

// ScopeRaised reports whether any signal is asserted on a scope.
func (b *SignalBoard) ScopeRaised(scope control.Scope) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.byScope[scope.Key()]; ok {
		return true
	}
	prefix := scope.Key() + "|"
	for key := range b.byPair {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// List returns every asserted signal, ordered by scope then parameter.
func (b *SignalBoard) List() []Signal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Signal, 0, len(b.byScope)+len(b.byPair))
	for _, sig := range b.byScope {
		out = append(out, *sig)
	}
	for _, sig := range b.byPair {
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope.Key() != out[j].Scope.Key() {
			return out[i].Scope.Key() < out[j].Scope.Key()
		}
		return out[i].Parameter < out[j].Parameter
	})
	return out
}
