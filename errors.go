package pqlog

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions that callers are expected to branch on.
// Matches the taxonomy in the system specification: each kind is either a
// sentinel (retryable or policy conditions) or a typed struct (carries a
// tamper location).
var (
	// ErrChainRaced is returned by Append when a concurrent appender won
	// the race to extend the log; the caller may retry.
	ErrChainRaced = errors.New("pqlog: concurrent append raced the chain tail")

	// ErrEmptyRange is returned by checkpoint generation or verification
	// when the requested range covers no entries.
	ErrEmptyRange = errors.New("pqlog: range covers no entries")

	// ErrEpochRetired is returned by SignWithEpoch once an epoch has been retired.
	ErrEpochRetired = errors.New("pqlog: epoch is retired and may not sign")

	// ErrUnknownEpoch is returned when verification names an epoch with no stored public key.
	ErrUnknownEpoch = errors.New("pqlog: epoch has no stored public key")

	// ErrKeyMismatch indicates the derived public key for an epoch does not
	// match the one on record, implying seed or derivation corruption.
	ErrKeyMismatch = errors.New("pqlog: derived public key does not match stored record")

	// ErrStorage wraps a persistence-backend failure; callers may retry.
	ErrStorage = errors.New("pqlog: storage error")

	// ErrInvalidInput indicates malformed input: bad ranges, oversized fields, payloads that cannot be encoded.
	ErrInvalidInput = errors.New("pqlog: invalid input")
)

// TamperReport describes where a hash-chain verification first diverged.
type TamperReport struct {
	FirstBadID uint64
	Expected   [32]byte
	Found      [32]byte
}

func (t *TamperReport) Error() string {
	return fmt.Sprintf("pqlog: chain tamper detected at entry %d: expected %x, found %x",
		t.FirstBadID, t.Expected, t.Found)
}

// CheckpointFaultKind enumerates the ways a checkpoint can fail verification.
type CheckpointFaultKind int

const (
	// FaultMerkleMismatch means the recomputed Merkle root over the checkpoint's
	// range does not equal the stored root.
	FaultMerkleMismatch CheckpointFaultKind = iota
	// FaultBadSignature means the stored signature does not verify under the
	// signer epoch's public key.
	FaultBadSignature
	// FaultBrokenCheckpointChain means the recomputed prev_checkpoint_hash does
	// not equal the stored one.
	FaultBrokenCheckpointChain
)

func (k CheckpointFaultKind) String() string {
	switch k {
	case FaultMerkleMismatch:
		return "merkle_mismatch"
	case FaultBadSignature:
		return "bad_signature"
	case FaultBrokenCheckpointChain:
		return "broken_checkpoint_chain"
	default:
		return "unknown"
	}
}

// CheckpointFault reports why a single checkpoint failed verification.
type CheckpointFault struct {
	Kind         CheckpointFaultKind
	CheckpointID uint64
}

func (f *CheckpointFault) Error() string {
	return fmt.Sprintf("pqlog: checkpoint %d failed verification: %s", f.CheckpointID, f.Kind)
}

// wrapStorage wraps a backend error with ErrStorage so callers can
// errors.Is(err, ErrStorage) regardless of the concrete backend.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
