package pqlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log is the append-only hash-chained event log (C4). It owns LogEntry
// records exclusively; the store is shared read-only with the checkpoint
// engine and verifier.
type Log struct {
	store Store
	log   zerolog.Logger

	mu       sync.Mutex // serializes the read-last/compute/insert sequence
	lastID   uint64
	lastHash [HashSize]byte
	loaded   bool
}

// LogOption configures a Log at construction time.
type LogOption func(*Log)

// WithLogLogger attaches a structured logger; the zero value logs nothing.
func WithLogLogger(l zerolog.Logger) LogOption {
	return func(lg *Log) { lg.log = l }
}

// NewLog binds a Log to store.
func NewLog(store Store, opts ...LogOption) *Log {
	l := &Log{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// loadTailLocked ensures lastID/lastHash reflect the store's current tail.
// Caller must hold mu.
func (l *Log) loadTailLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	entry, ok, err := l.store.LastEntry(ctx)
	if err != nil {
		return wrapStorage("last entry", err)
	}
	if !ok {
		l.lastID = 0
		l.lastHash = genesisHash
	} else {
		l.lastID = entry.ID
		l.lastHash = entry.PrevHash
	}
	l.loaded = true
	return nil
}

// Append canonicalizes payload, computes its hash, links it to the current
// tail, assigns the next id, and persists the entry. It returns the new
// entry's id.
//
// Append fails with ErrChainRaced if the store reports the computed next id
// was not in fact contiguous with its tail — this can only happen if
// another *Log value (e.g. a second process) raced this one past the
// in-process mutex below.
func (l *Log) Append(ctx context.Context, claimID, eventType string, payload any, epochID string) (uint64, [HashSize]byte, error) {
	if len(claimID) == 0 || len(claimID) > MaxClaimIDLen {
		return 0, [HashSize]byte{}, fmt.Errorf("%w: claim_id must be 1..%d bytes", ErrInvalidInput, MaxClaimIDLen)
	}
	if len(eventType) == 0 || len(eventType) > MaxEventTypeLen {
		return 0, [HashSize]byte{}, fmt.Errorf("%w: event_type must be 1..%d bytes", ErrInvalidInput, MaxEventTypeLen)
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return 0, [HashSize]byte{}, err
	}
	payloadHash := Hash(canonical)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadTailLocked(ctx); err != nil {
		return 0, [HashSize]byte{}, err
	}

	ts := time.Now().UTC()
	nextID := l.lastID + 1
	prevHash := chainHash(l.lastHash, payloadHash, ts)

	entry := LogEntry{
		ID:          nextID,
		ClaimID:     claimID,
		EventType:   eventType,
		Timestamp:   ts,
		PayloadHash: payloadHash,
		PrevHash:    prevHash,
		EpochID:     epochID,
	}

	if err := l.store.InsertEntry(ctx, entry); err != nil {
		l.loaded = false // force a fresh tail read; another writer may have raced us
		l.log.Error().Err(err).Uint64("entry_id", nextID).Msg("append failed")
		return 0, [HashSize]byte{}, err
	}

	l.lastID = nextID
	l.lastHash = prevHash

	l.log.Info().Uint64("entry_id", nextID).Str("claim_id", claimID).Str("event_type", eventType).Msg("entry appended")
	return nextID, prevHash, nil
}

// Get fetches a single entry by id.
func (l *Log) Get(ctx context.Context, id uint64) (LogEntry, error) {
	entry, ok, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return LogEntry{}, wrapStorage("get entry", err)
	}
	if !ok {
		return LogEntry{}, fmt.Errorf("%w: no entry with id %d", ErrInvalidInput, id)
	}
	return entry, nil
}

// Range fetches entries with id in [lo, hi] inclusive, ascending.
func (l *Log) Range(ctx context.Context, lo, hi uint64) ([]LogEntry, error) {
	if lo == 0 || hi < lo {
		return nil, fmt.Errorf("%w: invalid range [%d, %d]", ErrInvalidInput, lo, hi)
	}
	entries, err := l.store.RangeEntries(ctx, lo, hi)
	if err != nil {
		return nil, wrapStorage("range entries", err)
	}
	return entries, nil
}

// Tail returns the last n entries in ascending id order.
func (l *Log) Tail(ctx context.Context, n uint64) ([]LogEntry, error) {
	last, ok, err := l.store.LastEntry(ctx)
	if err != nil {
		return nil, wrapStorage("last entry", err)
	}
	if !ok {
		return nil, nil
	}
	lo := uint64(1)
	if last.ID > n {
		lo = last.ID - n + 1
	}
	return l.Range(ctx, lo, last.ID)
}

// LastID returns the id of the most recently appended entry, or 0 if the
// log is empty.
func (l *Log) LastID(ctx context.Context) (uint64, error) {
	last, ok, err := l.store.LastEntry(ctx)
	if err != nil {
		return 0, wrapStorage("last entry", err)
	}
	if !ok {
		return 0, nil
	}
	return last.ID, nil
}
