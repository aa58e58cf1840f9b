package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Ledger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives each event after it is durably appended. Used to
// fan events out to live subscribers; it must not block.
type Notifier func(Event)

// Ledger is the append-only, hash-chained audit log.
//
// Appends are serialised by an internal mutex so the hash chain has a
// single writer; reads go straight to the repository.
//
// All public methods are thread-safe.
type Ledger struct {
	repo   Repository
	logger Logger
	notify Notifier

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the ledger.
func (l *Ledger) SetLogger(logger Logger) {
	l.logger = logger
}

// SetNotifier registers a callback invoked after every successful
// append. Call before the first Append; there is no unset.
func (l *Ledger) SetNotifier(fn Notifier) {
	l.notify = fn
}

// Load reads the tail of the stored chain so new appends continue it.
// Call once on startup, before the first Append.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.repo.Last(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger tail: %w", err)
	}
	if last != nil {
		l.lastHash = last.Hash
	}
	l.loaded = true
	return nil
}

// Append records an event and returns its assigned ID.
//
// The event's ID, PrevHash and Hash are filled in here; anything the
// caller set in those fields is overwritten. A zero Timestamp is set
// to the current time, a caller-provided one is kept. Storage
// errors are wrapped in ErrWriteFailed and returned — never retried or
// swallowed — so the caller can roll back the state change the event
// describes.
func (l *Ledger) Append(ctx context.Context, e *Event) (string, error) {
	if e == nil || !e.Type.Valid() || e.Actor == "" || e.Action == "" {
		return "", fmt.Errorf("%w: type, actor and action are required", ErrInvalidEvent)
	}

	l.mu.Lock()

	e.ID = "aud-" + uuid.NewString()[:8]
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.PrevHash = l.lastHash
	e.Hash = chainHash(e)

	if err := l.repo.Insert(ctx, e); err != nil {
		l.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	l.lastHash = e.Hash
	l.mu.Unlock()

	l.logger.Debug("audit event appended",
		"id", e.ID,
		"type", string(e.Type),
		"scope", e.Scope,
		"action", e.Action,
	)
	if l.notify != nil {
		l.notify(*e)
	}
	return e.ID, nil
}

// Query returns events matching the filter, ordered by timestamp
// ascending. The result is finite and restartable via Filter.Offset.
func (l *Ledger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return l.repo.List(ctx, filter)
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Checked  int    `json:"checked"`
	BrokenAt string `json:"broken_at,omitempty"` // ID of first bad entry
}

// verifyPageSize is the batch size for chain verification scans.
const verifyPageSize = 500

// VerifyChain recomputes the hash chain from the beginning and compares
// it against the stored hashes. It returns ErrChainBroken (with the
// offending entry ID in the result) on the first mismatch.
//
// Verification is an on-demand integrity check; it is never run as part
// of Append.
func (l *Ledger) VerifyChain(ctx context.Context) (VerifyResult, error) {
	var (
		res      VerifyResult
		prevHash string
		offset   int
	)

	for {
		page, err := l.repo.List(ctx, Filter{Limit: verifyPageSize, Offset: offset})
		if err != nil {
			return res, fmt.Errorf("reading ledger: %w", err)
		}
		if len(page) == 0 {
			return res, nil
		}

		for i := range page {
			e := &page[i]
			if e.PrevHash != prevHash || chainHash(e) != e.Hash {
				res.BrokenAt = e.ID
				return res, fmt.Errorf("%w: entry %s", ErrChainBroken, e.ID)
			}
			prevHash = e.Hash
			res.Checked++
		}
		offset += len(page)
	}
}

// chainHash computes the SHA-256 hash of an event's content combined
// with the previous entry's hash. The Hash field itself is excluded.
func chainHash(e *Event) string {
	// Canonical content encoding. json.Marshal sorts map keys, so the
	// metadata encoding is deterministic.
	content := struct {
		ID        string         `json:"id"`
		Timestamp string         `json:"timestamp"`
		Type      EventType      `json:"type"`
		Actor     string         `json:"actor"`
		Scope     string         `json:"scope"`
		Action    string         `json:"action"`
		Reason    string         `json:"reason"`
		Metadata  map[string]any `json:"metadata"`
		PrevHash  string         `json:"prev_hash"`
	}{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:      e.Type,
		Actor:     e.Actor,
		Scope:     e.Scope,
		Action:    e.Action,
		Reason:    e.Reason,
		Metadata:  e.Metadata,
		PrevHash:  e.PrevHash,
	}

	b, err := json.Marshal(content)
	if err != nil {
		// Metadata values are plain JSON types in practice; a marshal
		// failure here means a programming error upstream.
		b = []byte(e.ID + e.PrevHash)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
