package pqlog

import (
	"testing"
	"time"
)

func TestTimestampMicrosBigEndian(t *testing.T) {
	ts := time.UnixMicro(1).UTC()
	got := timestampMicros(ts)
	want := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	if got != want {
		t.Fatalf("timestampMicros(1) = %x, want %x", got, want)
	}
}

func TestChainHashIsDeterministic(t *testing.T) {
	prev := Hash([]byte("prev"))
	payload := Hash([]byte("payload"))
	ts := time.UnixMicro(1_700_000_000_000_000).UTC()

	a := chainHash(prev, payload, ts)
	b := chainHash(prev, payload, ts)
	if a != b {
		t.Fatal("chainHash is not deterministic for identical inputs")
	}
}

func TestChainHashDependsOnEveryInput(t *testing.T) {
	prev := Hash([]byte("prev"))
	payload := Hash([]byte("payload"))
	ts := time.UnixMicro(1_700_000_000_000_000).UTC()

	base := chainHash(prev, payload, ts)

	otherPrev := Hash([]byte("other-prev"))
	if chainHash(otherPrev, payload, ts) == base {
		t.Fatal("chainHash ignored prevHash")
	}

	otherPayload := Hash([]byte("other-payload"))
	if chainHash(prev, otherPayload, ts) == base {
		t.Fatal("chainHash ignored payloadHash")
	}

	otherTS := ts.Add(time.Second)
	if chainHash(prev, payload, otherTS) == base {
		t.Fatal("chainHash ignored timestamp")
	}
}

func TestCanonicalCheckpointBytesDependsOnFields(t *testing.T) {
	base := Checkpoint{ID: 1, MerkleRoot: Hash([]byte("root")), RangeLo: 1, RangeHi: 10, SignerEpochID: "e1"}
	variant := base
	variant.RangeHi = 11

	if string(canonicalCheckpointBytes(base)) == string(canonicalCheckpointBytes(variant)) {
		t.Fatal("canonicalCheckpointBytes ignored RangeHi")
	}
}
