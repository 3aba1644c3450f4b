package pqlog

import "context"

// EntryStore is the persistence surface the append log (C4) exclusively
// owns. InsertEntry must provide atomic "assign next id" semantics: the
// caller passes the entry it wants appended with ID already computed
// from the id it observed as the current tail, and the store either
// commits it as the new tail or reports ErrChainRaced.
type EntryStore interface {
	// InsertEntry appends e transactionally, failing with ErrChainRaced if
	// e.ID is not exactly one greater than the current tail's ID.
	InsertEntry(ctx context.Context, e LogEntry) error
	// GetEntry fetches a single entry by id.
	GetEntry(ctx context.Context, id uint64) (LogEntry, bool, error)
	// RangeEntries fetches entries with id in [lo, hi], ascending, honoring
	// ctx cancellation between rows.
	RangeEntries(ctx context.Context, lo, hi uint64) ([]LogEntry, error)
	// LastEntry returns the highest-id entry, or ok=false on an empty log.
	LastEntry(ctx context.Context) (entry LogEntry, ok bool, err error)
}

// CheckpointStore is the persistence surface the checkpoint engine (C5)
// exclusively owns.
type CheckpointStore interface {
	InsertCheckpoint(ctx context.Context, cp Checkpoint) error
	LastCheckpoint(ctx context.Context) (cp Checkpoint, ok bool, err error)
	GetCheckpoint(ctx context.Context, id uint64) (cp Checkpoint, ok bool, err error)
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)
	// CheckpointContaining returns the checkpoint whose [RangeLo, RangeHi]
	// contains entryID, if any.
	CheckpointContaining(ctx context.Context, entryID uint64) (cp Checkpoint, ok bool, err error)
}

// EpochStore is the persistence surface the epoch key manager (C3)
// exclusively owns. Private keys never appear here; only public records.
type EpochStore interface {
	GetEpoch(ctx context.Context, epochID string) (rec EpochKeyRecord, ok bool, err error)
	// PutEpoch inserts a new epoch record; it must fail if epochID already exists.
	PutEpoch(ctx context.Context, rec EpochKeyRecord) error
	// RetireEpoch marks epochID retired; idempotent.
	RetireEpoch(ctx context.Context, epochID string) error
}

// Store is the full persistence adapter contract (C7). Concrete backends
// are substitutable; all three owning subsystems share one Store value but
// only touch the sub-interface they own.
type Store interface {
	EntryStore
	CheckpointStore
	EpochStore
}
