package pqlog

import (
	"context"
	"errors"
	"testing"
)

func seedLog(t *testing.T, l *Log, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, _, err := l.Append(ctx, "claim-1", "claim.updated", i, "e1"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestCheckpointGenerateCoversWholeLog(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 5)

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)

	summary, err := engine.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if summary.RangeLo != 1 || summary.RangeHi != 5 {
		t.Fatalf("Generate range = [%d,%d], want [1,5]", summary.RangeLo, summary.RangeHi)
	}
	if summary.ID != 1 {
		t.Fatalf("first checkpoint id = %d, want 1", summary.ID)
	}
}

func TestCheckpointGenerateChainsToPrevious(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 10)

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)
	ctx := context.Background()

	five := uint64(5)
	if _, err := engine.Generate(ctx, &five); err != nil {
		t.Fatalf("Generate first checkpoint: %v", err)
	}
	second, err := engine.Generate(ctx, nil)
	if err != nil {
		t.Fatalf("Generate second checkpoint: %v", err)
	}
	if second.RangeLo != 6 || second.RangeHi != 10 {
		t.Fatalf("second checkpoint range = [%d,%d], want [6,10]", second.RangeLo, second.RangeHi)
	}

	cp, ok, err := store.GetCheckpoint(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint(2) ok=%v err=%v", ok, err)
	}
	if cp.PrevCheckpointHash == nil {
		t.Fatal("second checkpoint should carry a prev_checkpoint_hash")
	}
}

func TestCheckpointGenerateEmptyLogIsError(t *testing.T) {
	store := NewMemStore()
	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)

	if _, err := engine.Generate(context.Background(), nil); !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("Generate on empty log err = %v, want ErrEmptyRange", err)
	}
}

func TestInclusionProofVerifiesAgainstCheckpointRoot(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 7)

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)
	ctx := context.Background()

	summary, err := engine.Generate(ctx, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	proof, err := engine.InclusionProof(ctx, 4)
	if err != nil {
		t.Fatalf("InclusionProof: %v", err)
	}
	entry, err := l.Get(ctx, 4)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !VerifyInclusionProof(entry.PrevHash, proof, summary.MerkleRoot) {
		t.Fatal("inclusion proof did not verify against the checkpoint's merkle root")
	}
}

func TestInclusionProofUncoveredEntry(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 3)

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)

	if _, err := engine.InclusionProof(context.Background(), 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("InclusionProof with no checkpoints err = %v, want ErrInvalidInput", err)
	}
}
