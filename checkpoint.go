package pqlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CheckpointEngine builds Merkle-tree checkpoints over contiguous entry
// ranges and signs them under the current epoch key (C5).
type CheckpointEngine struct {
	entries EntryStore
	store   CheckpointStore
	epochs  *EpochManager
	log     zerolog.Logger

	mu sync.Mutex // serializes checkpoint generation, independent of Log's mutex
}

// CheckpointEngineOption configures a CheckpointEngine at construction time.
type CheckpointEngineOption func(*CheckpointEngine)

// WithCheckpointLogger attaches a structured logger; the zero value logs nothing.
func WithCheckpointLogger(l zerolog.Logger) CheckpointEngineOption {
	return func(c *CheckpointEngine) { c.log = l }
}

// NewCheckpointEngine binds a CheckpointEngine to an entry store, a
// checkpoint store, and the epoch manager it asks to sign roots.
func NewCheckpointEngine(entries EntryStore, store CheckpointStore, epochs *EpochManager, opts ...CheckpointEngineOption) *CheckpointEngine {
	c := &CheckpointEngine{entries: entries, store: store, epochs: epochs, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckpointSummary is the collaborator-facing view of a freshly generated checkpoint.
type CheckpointSummary struct {
	ID         uint64
	MerkleRoot [HashSize]byte
	RangeLo    uint64
	RangeHi    uint64
	SignerID   string
}

// Generate builds and persists the next checkpoint. If forceRangeHi is
// non-nil, it is used as the upper bound instead of the log's current tail
// (useful for reproducible tests); forceRangeHi must still be >= the
// natural RangeLo or ErrEmptyRange is returned.
func (c *CheckpointEngine) Generate(ctx context.Context, forceRangeHi *uint64) (CheckpointSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, hasPrev, err := c.store.LastCheckpoint(ctx)
	if err != nil {
		return CheckpointSummary{}, wrapStorage("last checkpoint", err)
	}

	rangeLo := uint64(1)
	if hasPrev {
		rangeLo = prev.RangeHi + 1
	}

	var rangeHi uint64
	if forceRangeHi != nil {
		rangeHi = *forceRangeHi
	} else {
		last, ok, err := c.entries.LastEntry(ctx)
		if err != nil {
			return CheckpointSummary{}, wrapStorage("last entry", err)
		}
		if !ok {
			return CheckpointSummary{}, ErrEmptyRange
		}
		rangeHi = last.ID
	}

	if rangeLo > rangeHi {
		return CheckpointSummary{}, ErrEmptyRange
	}

	entries, err := c.entries.RangeEntries(ctx, rangeLo, rangeHi)
	if err != nil {
		return CheckpointSummary{}, wrapStorage("range entries", err)
	}
	if len(entries) == 0 {
		return CheckpointSummary{}, ErrEmptyRange
	}

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.PrevHash
	}
	root, err := merkleRoot(leaves)
	if err != nil {
		return CheckpointSummary{}, err
	}

	var prevHashPtr *[HashSize]byte
	if hasPrev {
		h := Hash(canonicalCheckpointBytes(prev))
		prevHashPtr = &h
	}

	signerEpoch := c.epochs.CurrentEpochID()
	sig, err := c.epochs.SignWithEpoch(ctx, signerEpoch, root[:])
	if err != nil {
		c.log.Error().Err(err).Str("epoch_id", signerEpoch).Msg("checkpoint signing failed")
		return CheckpointSummary{}, err
	}

	cp := Checkpoint{
		ID:                 nextCheckpointID(prev, hasPrev),
		MerkleRoot:         root,
		RangeLo:            rangeLo,
		RangeHi:            rangeHi,
		PrevCheckpointHash: prevHashPtr,
		SignerEpochID:      signerEpoch,
		Signature:          sig,
		CreatedAt:          time.Now().UTC(),
	}

	if err := c.store.InsertCheckpoint(ctx, cp); err != nil {
		c.log.Error().Err(err).Uint64("checkpoint_id", cp.ID).Msg("persist checkpoint failed")
		return CheckpointSummary{}, wrapStorage("insert checkpoint", err)
	}

	c.log.Info().Uint64("checkpoint_id", cp.ID).Uint64("range_lo", rangeLo).Uint64("range_hi", rangeHi).
		Str("epoch_id", signerEpoch).Msg("checkpoint generated")

	return CheckpointSummary{ID: cp.ID, MerkleRoot: root, RangeLo: rangeLo, RangeHi: rangeHi, SignerID: signerEpoch}, nil
}

func nextCheckpointID(prev Checkpoint, hasPrev bool) uint64 {
	if !hasPrev {
		return 1
	}
	return prev.ID + 1
}

// ListLevels returns the full level-by-level Merkle reduction over
// [lo, hi], for visualization and inclusion-proof construction. level[0] is
// the leaves; the last level is the single-element root.
func (c *CheckpointEngine) ListLevels(ctx context.Context, lo, hi uint64) ([][][HashSize]byte, error) {
	entries, err := c.entries.RangeEntries(ctx, lo, hi)
	if err != nil {
		return nil, wrapStorage("range entries", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyRange
	}
	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.PrevHash
	}
	return merkleLevels(leaves)
}

// InclusionProof is the Merkle path from one entry's leaf to the root of the
// checkpoint whose range contains that entry.
type InclusionProof struct {
	CheckpointID uint64
	Steps        []ProofStep
}

// InclusionProof builds an InclusionProof for entryID.
func (c *CheckpointEngine) InclusionProof(ctx context.Context, entryID uint64) (InclusionProof, error) {
	cp, ok, err := c.store.CheckpointContaining(ctx, entryID)
	if err != nil {
		return InclusionProof{}, wrapStorage("checkpoint containing", err)
	}
	if !ok {
		return InclusionProof{}, fmt.Errorf("%w: no checkpoint covers entry %d", ErrInvalidInput, entryID)
	}

	levels, err := c.ListLevels(ctx, cp.RangeLo, cp.RangeHi)
	if err != nil {
		return InclusionProof{}, err
	}

	leafIndex := int(entryID - cp.RangeLo)
	steps := merklePath(levels, leafIndex)
	return InclusionProof{CheckpointID: cp.ID, Steps: steps}, nil
}
