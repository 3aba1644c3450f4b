package pqlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "pqlog-sqlite-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := OpenSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreAppendAndRange(t *testing.T) {
	store := openTestSQLiteStore(t)
	l := NewLog(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, _, err := l.Append(ctx, "claim-1", "claim.updated", i, "e1"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := store.RangeEntries(ctx, 1, 10)
	if err != nil {
		t.Fatalf("RangeEntries failed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 records, got %d", len(entries))
	}
	for i, e := range entries {
		if e.ID != uint64(i+1) {
			t.Errorf("entry %d has id %d", i, e.ID)
		}
	}
}

func TestSQLiteStoreInsertEntryRejectsNonContiguous(t *testing.T) {
	store := openTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.InsertEntry(ctx, LogEntry{ID: 1, EpochID: "e1", Timestamp: time.Now()}); err != nil {
		t.Fatalf("InsertEntry failed: %v", err)
	}
	err := store.InsertEntry(ctx, LogEntry{ID: 3, EpochID: "e1", Timestamp: time.Now()})
	if !errors.Is(err, ErrChainRaced) {
		t.Fatalf("InsertEntry skipping id 2 err = %v, want ErrChainRaced", err)
	}
}

func TestSQLiteStoreCheckpointRoundTrip(t *testing.T) {
	store := openTestSQLiteStore(t)
	ctx := context.Background()

	cp := Checkpoint{
		ID:            1,
		MerkleRoot:    Hash([]byte("root")),
		RangeLo:       1,
		RangeHi:       10,
		SignerEpochID: "e1",
		Signature:     []byte("sig-bytes"),
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.InsertCheckpoint(ctx, cp); err != nil {
		t.Fatalf("InsertCheckpoint failed: %v", err)
	}

	got, ok, err := store.GetCheckpoint(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint ok=%v err=%v", ok, err)
	}
	if got.MerkleRoot != cp.MerkleRoot || got.RangeLo != cp.RangeLo || got.RangeHi != cp.RangeHi {
		t.Fatalf("GetCheckpoint = %+v, want %+v", got, cp)
	}
	if got.PrevCheckpointHash != nil {
		t.Fatal("first checkpoint should round-trip with a nil PrevCheckpointHash")
	}
}

func TestSQLiteStoreEpochLifecycle(t *testing.T) {
	store := openTestSQLiteStore(t)
	ctx := context.Background()

	rec := EpochKeyRecord{EpochID: "e1", PublicKey: []byte("pubkey-bytes"), CreatedAt: time.Now().UTC()}
	if err := store.PutEpoch(ctx, rec); err != nil {
		t.Fatalf("PutEpoch failed: %v", err)
	}

	got, ok, err := store.GetEpoch(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("GetEpoch ok=%v err=%v", ok, err)
	}
	if got.Retired {
		t.Fatal("freshly inserted epoch should not be retired")
	}

	if err := store.RetireEpoch(ctx, "e1"); err != nil {
		t.Fatalf("RetireEpoch failed: %v", err)
	}
	got, _, err = store.GetEpoch(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEpoch failed: %v", err)
	}
	if !got.Retired {
		t.Fatal("epoch should be retired after RetireEpoch")
	}
}

func TestSQLiteStoreRetireUnknownEpoch(t *testing.T) {
	store := openTestSQLiteStore(t)
	if err := store.RetireEpoch(context.Background(), "missing"); !errors.Is(err, ErrUnknownEpoch) {
		t.Fatalf("RetireEpoch err = %v, want ErrUnknownEpoch", err)
	}
}

func TestSQLiteStoreFullServiceAudit(t *testing.T) {
	store := openTestSQLiteStore(t)
	svc := NewService(store, [SeedSize]byte{}, WithEpochClockOption(func() string { return "epoch-fixed" }))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, _, err := svc.SubmitClaimEvent(ctx, "claim-1", "claim.updated", i); err != nil {
			t.Fatalf("SubmitClaimEvent failed: %v", err)
		}
	}
	if _, err := svc.RequestCheckpoint(ctx); err != nil {
		t.Fatalf("RequestCheckpoint failed: %v", err)
	}

	report, err := svc.Audit(ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if !report.ChainOK || report.CheckpointsOK != 1 {
		t.Fatalf("Audit report = %+v, want a clean pass", report)
	}
}
