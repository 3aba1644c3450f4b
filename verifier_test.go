package pqlog

import (
	"context"
	"errors"
	"testing"
)

func TestVerifyChainDetectsTamperedPayloadHash(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 5)
	ctx := context.Background()

	entry, err := l.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	entry.PayloadHash[0] ^= 0xFF
	store.entries[1] = entry // direct mutation to simulate tampering at rest

	mgr := NewEpochManager([SeedSize]byte{}, store)
	v := NewVerifier(store, store, mgr)

	err = v.VerifyChain(ctx, 1, 5)
	var report *TamperReport
	if !errors.As(err, &report) {
		t.Fatalf("VerifyChain err = %v, want *TamperReport", err)
	}
	if report.FirstBadID != 2 {
		t.Fatalf("TamperReport.FirstBadID = %d, want 2 (the tampered entry itself, since its recomputed chain hash no longer matches its own stored prev_hash)", report.FirstBadID)
	}
}

func TestVerifyChainSubRangeTrustsAnchor(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 5)
	ctx := context.Background()

	mgr := NewEpochManager([SeedSize]byte{}, store)
	v := NewVerifier(store, store, mgr)

	if err := v.VerifyChain(ctx, 3, 5); err != nil {
		t.Fatalf("VerifyChain over an untampered sub-range: %v", err)
	}
}

func TestVerifyChainDetectsCorruptionOfFirstEntry(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 3)
	ctx := context.Background()

	entry, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	entry.PayloadHash[0] ^= 0xFF
	store.entries[0] = entry

	mgr := NewEpochManager([SeedSize]byte{}, store)
	v := NewVerifier(store, store, mgr)

	err = v.VerifyChain(ctx, 1, 3)
	var report *TamperReport
	if !errors.As(err, &report) {
		t.Fatalf("VerifyChain err = %v, want *TamperReport", err)
	}
	if report.FirstBadID != 1 {
		t.Fatalf("TamperReport.FirstBadID = %d, want 1 (corruption at the true log start is caught directly)", report.FirstBadID)
	}
}

func TestVerifyCheckpointDetectsMerkleMismatch(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 4)
	ctx := context.Background()

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)
	summary, err := engine.Generate(ctx, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cp, ok, err := store.GetCheckpoint(ctx, summary.ID)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint ok=%v err=%v", ok, err)
	}
	cp.MerkleRoot[0] ^= 0xFF

	v := NewVerifier(store, store, mgr)
	err = v.VerifyCheckpoint(ctx, cp)
	var fault *CheckpointFault
	if !errors.As(err, &fault) || fault.Kind != FaultMerkleMismatch {
		t.Fatalf("VerifyCheckpoint err = %v, want FaultMerkleMismatch", err)
	}
}

func TestVerifyCheckpointDetectsBadSignature(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 4)
	ctx := context.Background()

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)
	summary, err := engine.Generate(ctx, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cp, ok, err := store.GetCheckpoint(ctx, summary.ID)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint ok=%v err=%v", ok, err)
	}
	cp.Signature[0] ^= 0xFF

	v := NewVerifier(store, store, mgr)
	err = v.VerifyCheckpoint(ctx, cp)
	var fault *CheckpointFault
	if !errors.As(err, &fault) || fault.Kind != FaultBadSignature {
		t.Fatalf("VerifyCheckpoint err = %v, want FaultBadSignature", err)
	}
}

func TestVerifyCheckpointDetectsBrokenChain(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 10)
	ctx := context.Background()

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)

	five := uint64(5)
	if _, err := engine.Generate(ctx, &five); err != nil {
		t.Fatalf("Generate first checkpoint: %v", err)
	}
	second, err := engine.Generate(ctx, nil)
	if err != nil {
		t.Fatalf("Generate second checkpoint: %v", err)
	}
	cp, ok, err := store.GetCheckpoint(ctx, second.ID)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint ok=%v err=%v", ok, err)
	}
	cp.PrevCheckpointHash[0] ^= 0xFF

	v := NewVerifier(store, store, mgr)
	err = v.VerifyCheckpoint(ctx, cp)
	var fault *CheckpointFault
	if !errors.As(err, &fault) || fault.Kind != FaultBrokenCheckpointChain {
		t.Fatalf("VerifyCheckpoint err = %v, want FaultBrokenCheckpointChain", err)
	}
}

func TestFullVerificationCleanLog(t *testing.T) {
	store := NewMemStore()
	l := NewLog(store)
	seedLog(t, l, 6)
	ctx := context.Background()

	mgr := NewEpochManager([SeedSize]byte{}, store)
	engine := NewCheckpointEngine(store, store, mgr)
	if _, err := engine.Generate(ctx, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	v := NewVerifier(store, store, mgr)
	report, err := v.FullVerification(ctx)
	if err != nil {
		t.Fatalf("FullVerification: %v", err)
	}
	if !report.ChainOK || report.CheckpointsOK != 1 || len(report.CheckpointFaults) != 0 {
		t.Fatalf("FullVerification report = %+v, want a clean pass", report)
	}
}

func TestFullVerificationEmptyLog(t *testing.T) {
	store := NewMemStore()
	mgr := NewEpochManager([SeedSize]byte{}, store)
	v := NewVerifier(store, store, mgr)

	report, err := v.FullVerification(context.Background())
	if err != nil {
		t.Fatalf("FullVerification: %v", err)
	}
	if !report.ChainOK {
		t.Fatal("an empty log should verify as chain-ok")
	}
}
