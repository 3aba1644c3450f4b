package pqlog

import "time"

// Bounds on the bounded-length opaque fields the specification leaves
// otherwise unconstrained.
const (
	MaxClaimIDLen   = 256
	MaxEventTypeLen = 64
)

// LogEntry is one immutable record in the append-only chain.
type LogEntry struct {
	ID          uint64
	ClaimID     string
	EventType   string
	Timestamp   time.Time
	PayloadHash [HashSize]byte
	PrevHash    [HashSize]byte
	ActorSig    []byte // optional, nil when the event carries no actor signature
	EpochID     string
}

// timestampMicros returns the big-endian 8-byte microsecond-since-epoch
// encoding fed into the chain hash, per the canonical byte encodings.
func timestampMicros(ts time.Time) [8]byte {
	var out [8]byte
	micros := uint64(ts.UTC().UnixMicro())
	for i := 7; i >= 0; i-- {
		out[i] = byte(micros)
		micros >>= 8
	}
	return out
}

// chainHash computes prev_hash = H(prevPrevHash || payloadHash || ts_bytes).
func chainHash(prevPrevHash, payloadHash [HashSize]byte, ts time.Time) [HashSize]byte {
	tsb := timestampMicros(ts)
	return Hash(prevPrevHash[:], payloadHash[:], tsb[:])
}

// Checkpoint is a signed commitment to a contiguous range of log entries.
type Checkpoint struct {
	ID                 uint64
	MerkleRoot         [HashSize]byte
	RangeLo            uint64
	RangeHi            uint64
	PrevCheckpointHash *[HashSize]byte // nil for the first checkpoint
	SignerEpochID      string
	Signature          []byte
	CreatedAt          time.Time
}

// canonicalCheckpointBytes serializes the fields of cp that feed into the
// next checkpoint's PrevCheckpointHash, per the data model's definition of
// prev_checkpoint_hash.
func canonicalCheckpointBytes(cp Checkpoint) []byte {
	buf := make([]byte, 0, 8+32+8+8+len(cp.SignerEpochID))
	buf = appendUint64(buf, cp.ID)
	buf = append(buf, cp.MerkleRoot[:]...)
	buf = appendUint64(buf, cp.RangeLo)
	buf = appendUint64(buf, cp.RangeHi)
	buf = append(buf, []byte(cp.SignerEpochID)...)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return append(buf, b[:]...)
}

// EpochKeyRecord is the public half of an epoch signing keypair, plus its
// lifecycle state. Private keys are never part of this type.
type EpochKeyRecord struct {
	EpochID   string
	PublicKey []byte
	CreatedAt time.Time
	Retired   bool
}
