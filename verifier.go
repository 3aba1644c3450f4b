package pqlog

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Verifier reconstructs chains, Merkle roots, and signatures to answer
// whether the log has been tampered with, and at which entry (C6).
type Verifier struct {
	entries     EntryStore
	checkpoints CheckpointStore
	epochs      *EpochManager
	log         zerolog.Logger
}

// VerifierOption configures a Verifier at construction time.
type VerifierOption func(*Verifier)

// WithVerifierLogger attaches a structured logger; the zero value logs nothing.
func WithVerifierLogger(l zerolog.Logger) VerifierOption {
	return func(v *Verifier) { v.log = l }
}

// NewVerifier binds a Verifier to the entry store, checkpoint store, and
// epoch manager it needs to re-derive chains, roots, and signatures.
func NewVerifier(entries EntryStore, checkpoints CheckpointStore, epochs *EpochManager, opts ...VerifierOption) *Verifier {
	v := &Verifier{entries: entries, checkpoints: checkpoints, epochs: epochs, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyChain recomputes prev_hash across [lo, hi] and compares it against
// the stored values, reporting the first divergence. When lo > 1, the
// first entry in range contributes only its stored prev_hash as a trusted
// anchor — there is no predecessor in range to re-derive it from. When
// lo == 1, the first entry is checked against the genesis constant like
// any other link, since its true predecessor (the empty log) is known.
func (v *Verifier) VerifyChain(ctx context.Context, lo, hi uint64) error {
	if lo == 0 || hi < lo {
		return fmt.Errorf("%w: invalid range [%d, %d]", ErrInvalidInput, lo, hi)
	}
	entries, err := v.entries.RangeEntries(ctx, lo, hi)
	if err != nil {
		return wrapStorage("range entries", err)
	}
	if len(entries) == 0 {
		return ErrEmptyRange
	}

	var prevHash [HashSize]byte
	start := 0
	if lo == 1 {
		prevHash = genesisHash
	} else {
		prevHash = entries[0].PrevHash
		start = 1
	}

	for i := start; i < len(entries); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := entries[i]
		expected := chainHash(prevHash, e.PayloadHash, e.Timestamp)
		if !bytes.Equal(expected[:], e.PrevHash[:]) {
			report := &TamperReport{FirstBadID: e.ID, Expected: expected, Found: e.PrevHash}
			v.log.Error().Uint64("entry_id", e.ID).Msg("chain tamper detected")
			return report
		}
		prevHash = e.PrevHash
	}
	return nil
}

// VerifyCheckpoint validates one checkpoint: its Merkle root over its
// range, its signature under the signer epoch, and (if a previous
// checkpoint exists) its prev_checkpoint_hash link. Returns the first
// failure encountered, in that order.
func (v *Verifier) VerifyCheckpoint(ctx context.Context, cp Checkpoint) error {
	entries, err := v.entries.RangeEntries(ctx, cp.RangeLo, cp.RangeHi)
	if err != nil {
		return wrapStorage("range entries", err)
	}
	if len(entries) == 0 {
		return ErrEmptyRange
	}

	leaves := make([][HashSize]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.PrevHash
	}
	root, err := merkleRoot(leaves)
	if err != nil {
		return err
	}
	if !bytes.Equal(root[:], cp.MerkleRoot[:]) {
		v.log.Error().Uint64("checkpoint_id", cp.ID).Msg("merkle root mismatch")
		return &CheckpointFault{Kind: FaultMerkleMismatch, CheckpointID: cp.ID}
	}

	ok, err := v.epochs.VerifyWithEpoch(ctx, cp.SignerEpochID, cp.MerkleRoot[:], cp.Signature)
	if err != nil {
		return err
	}
	if !ok {
		v.log.Error().Uint64("checkpoint_id", cp.ID).Msg("checkpoint signature invalid")
		return &CheckpointFault{Kind: FaultBadSignature, CheckpointID: cp.ID}
	}

	if cp.RangeLo > 1 {
		prev, ok, err := v.checkpoints.GetCheckpoint(ctx, cp.ID-1)
		if err != nil {
			return wrapStorage("get checkpoint", err)
		}
		if ok {
			expected := Hash(canonicalCheckpointBytes(prev))
			if cp.PrevCheckpointHash == nil || !bytes.Equal(expected[:], cp.PrevCheckpointHash[:]) {
				v.log.Error().Uint64("checkpoint_id", cp.ID).Msg("checkpoint chain broken")
				return &CheckpointFault{Kind: FaultBrokenCheckpointChain, CheckpointID: cp.ID}
			}
		}
	}

	return nil
}

// VerifyInclusionProof is a pure function: it replays proof against leaf's
// hash and reports whether the result equals expectedRoot.
func VerifyInclusionProof(leaf [HashSize]byte, proof InclusionProof, expectedRoot [HashSize]byte) bool {
	got := replayMerklePath(leaf, proof.Steps)
	return bytes.Equal(got[:], expectedRoot[:])
}

// AggregateReport summarizes a full-log verification run.
type AggregateReport struct {
	ChainOK          bool
	ChainFault       *TamperReport
	CheckpointFaults []*CheckpointFault
	CheckpointsOK    int
}

// FullVerification runs VerifyChain over the whole log and VerifyCheckpoint
// over every stored checkpoint, in order, honoring ctx cancellation between
// entries and between checkpoints.
func (v *Verifier) FullVerification(ctx context.Context) (AggregateReport, error) {
	var report AggregateReport

	lastID, err := lastEntryID(ctx, v.entries)
	if err != nil {
		return report, err
	}
	if lastID > 0 {
		if err := v.VerifyChain(ctx, 1, lastID); err != nil {
			if tr, ok := err.(*TamperReport); ok {
				report.ChainFault = tr
			} else {
				return report, err
			}
		} else {
			report.ChainOK = true
		}
	} else {
		report.ChainOK = true
	}

	checkpoints, err := v.checkpoints.ListCheckpoints(ctx)
	if err != nil {
		return report, wrapStorage("list checkpoints", err)
	}
	for _, cp := range checkpoints {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := v.VerifyCheckpoint(ctx, cp); err != nil {
			if cf, ok := err.(*CheckpointFault); ok {
				report.CheckpointFaults = append(report.CheckpointFaults, cf)
				continue
			}
			return report, err
		}
		report.CheckpointsOK++
	}

	return report, nil
}

func lastEntryID(ctx context.Context, entries EntryStore) (uint64, error) {
	last, ok, err := entries.LastEntry(ctx)
	if err != nil {
		return 0, wrapStorage("last entry", err)
	}
	if !ok {
		return 0, nil
	}
	return last.ID, nil
}
