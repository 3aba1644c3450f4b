package pqlog

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// FileStore implements Store using POSIX files with append-only semantics,
// one newline-delimited JSON file per owned record kind, each append
// protected by an exclusive flock so multiple processes never interleave
// writes to the same file.
type FileStore struct {
	dir string

	entriesFile     *os.File
	checkpointsFile *os.File
	epochsFile      *os.File

	mu sync.RWMutex
}

const (
	entriesFileName     = "entries.jsonl"
	checkpointsFileName = "checkpoints.jsonl"
	epochsFileName      = "epochs.jsonl"
)

// OpenFileStore creates or opens a POSIX file-based store in dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	}

	entries, err := open(entriesFileName)
	if err != nil {
		return nil, fmt.Errorf("open entries file: %w", err)
	}
	checkpoints, err := open(checkpointsFileName)
	if err != nil {
		_ = entries.Close()
		return nil, fmt.Errorf("open checkpoints file: %w", err)
	}
	epochs, err := open(epochsFileName)
	if err != nil {
		_ = entries.Close()
		_ = checkpoints.Close()
		return nil, fmt.Errorf("open epochs file: %w", err)
	}

	return &FileStore{dir: dir, entriesFile: entries, checkpointsFile: checkpoints, epochsFile: epochs}, nil
}

// Close closes every underlying file, joining any errors.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.entriesFile.Close(), s.checkpointsFile.Close(), s.epochsFile.Close())
}

type fileEntry struct {
	ID          uint64 `json:"id"`
	ClaimID     string `json:"claim_id"`
	EventType   string `json:"event_type"`
	TimestampNS int64  `json:"ts_unix_nanos"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	ActorSig    string `json:"actor_sig,omitempty"`
	EpochID     string `json:"epoch_id"`
}

func (s *FileStore) InsertEntry(_ context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastID, err := s.lastEntryIDLocked()
	if err != nil {
		return err
	}
	if e.ID != lastID+1 {
		return fmt.Errorf("%w: have tail %d, got %d", ErrChainRaced, lastID, e.ID)
	}

	fe := fileEntry{
		ID: e.ID, ClaimID: e.ClaimID, EventType: e.EventType, TimestampNS: e.Timestamp.UTC().UnixNano(),
		PayloadHash: hexString(e.PayloadHash[:]), PrevHash: hexString(e.PrevHash[:]),
		ActorSig: hexString(e.ActorSig), EpochID: e.EpochID,
	}
	return appendJSONLineLocked(s.entriesFile, fe)
}

func (s *FileStore) lastEntryIDLocked() (uint64, error) {
	var last uint64
	err := scanJSONLinesLocked(s.entriesFile, func(raw json.RawMessage) error {
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		last = fe.ID
		return nil
	})
	return last, err
}

func (s *FileStore) GetEntry(ctx context.Context, id uint64) (LogEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found LogEntry
	var ok bool
	err := scanJSONLinesLocked(s.entriesFile, func(raw json.RawMessage) error {
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		if fe.ID == id {
			found, ok = fileEntryToLogEntry(fe), true
		}
		return nil
	})
	return found, ok, err
}

func (s *FileStore) RangeEntries(ctx context.Context, lo, hi uint64) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []LogEntry
	err := scanJSONLinesLocked(s.entriesFile, func(raw json.RawMessage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		if fe.ID >= lo && fe.ID <= hi {
			out = append(out, fileEntryToLogEntry(fe))
		}
		return nil
	})
	return out, err
}

func (s *FileStore) LastEntry(context.Context) (LogEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last LogEntry
	var ok bool
	err := scanJSONLinesLocked(s.entriesFile, func(raw json.RawMessage) error {
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		last, ok = fileEntryToLogEntry(fe), true
		return nil
	})
	return last, ok, err
}

func fileEntryToLogEntry(fe fileEntry) LogEntry {
	e := LogEntry{
		ID: fe.ID, ClaimID: fe.ClaimID, EventType: fe.EventType,
		Timestamp: timeFromUnixNanos(fe.TimestampNS), EpochID: fe.EpochID,
	}
	copy(e.PayloadHash[:], mustHexBytes(fe.PayloadHash))
	copy(e.PrevHash[:], mustHexBytes(fe.PrevHash))
	e.ActorSig = mustHexBytes(fe.ActorSig)
	return e
}

type fileCheckpoint struct {
	ID                 uint64 `json:"id"`
	MerkleRoot         string `json:"merkle_root"`
	RangeLo            uint64 `json:"range_lo"`
	RangeHi            uint64 `json:"range_hi"`
	PrevCheckpointHash string `json:"prev_checkpoint_hash,omitempty"`
	SignerEpochID      string `json:"signer_epoch_id"`
	Signature          string `json:"signature"`
	CreatedAtNS        int64  `json:"created_at_unix_nanos"`
}

func (s *FileStore) InsertCheckpoint(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := fileCheckpoint{
		ID: cp.ID, MerkleRoot: hexString(cp.MerkleRoot[:]), RangeLo: cp.RangeLo, RangeHi: cp.RangeHi,
		SignerEpochID: cp.SignerEpochID, Signature: hexString(cp.Signature), CreatedAtNS: cp.CreatedAt.UTC().UnixNano(),
	}
	if cp.PrevCheckpointHash != nil {
		fc.PrevCheckpointHash = hexString(cp.PrevCheckpointHash[:])
	}
	return appendJSONLineLocked(s.checkpointsFile, fc)
}

func (s *FileStore) LastCheckpoint(context.Context) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last Checkpoint
	var ok bool
	err := scanJSONLinesLocked(s.checkpointsFile, func(raw json.RawMessage) error {
		var fc fileCheckpoint
		if err := json.Unmarshal(raw, &fc); err != nil {
			return err
		}
		last, ok = fileCheckpointToCheckpoint(fc), true
		return nil
	})
	return last, ok, err
}

func (s *FileStore) GetCheckpoint(_ context.Context, id uint64) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found Checkpoint
	var ok bool
	err := scanJSONLinesLocked(s.checkpointsFile, func(raw json.RawMessage) error {
		var fc fileCheckpoint
		if err := json.Unmarshal(raw, &fc); err != nil {
			return err
		}
		if fc.ID == id {
			found, ok = fileCheckpointToCheckpoint(fc), true
		}
		return nil
	})
	return found, ok, err
}

func (s *FileStore) ListCheckpoints(context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Checkpoint
	err := scanJSONLinesLocked(s.checkpointsFile, func(raw json.RawMessage) error {
		var fc fileCheckpoint
		if err := json.Unmarshal(raw, &fc); err != nil {
			return err
		}
		out = append(out, fileCheckpointToCheckpoint(fc))
		return nil
	})
	return out, err
}

func (s *FileStore) CheckpointContaining(_ context.Context, entryID uint64) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found Checkpoint
	var ok bool
	err := scanJSONLinesLocked(s.checkpointsFile, func(raw json.RawMessage) error {
		var fc fileCheckpoint
		if err := json.Unmarshal(raw, &fc); err != nil {
			return err
		}
		if entryID >= fc.RangeLo && entryID <= fc.RangeHi {
			found, ok = fileCheckpointToCheckpoint(fc), true
		}
		return nil
	})
	return found, ok, err
}

func fileCheckpointToCheckpoint(fc fileCheckpoint) Checkpoint {
	cp := Checkpoint{
		ID: fc.ID, RangeLo: fc.RangeLo, RangeHi: fc.RangeHi,
		SignerEpochID: fc.SignerEpochID, Signature: mustHexBytes(fc.Signature),
		CreatedAt: timeFromUnixNanos(fc.CreatedAtNS),
	}
	copy(cp.MerkleRoot[:], mustHexBytes(fc.MerkleRoot))
	if fc.PrevCheckpointHash != "" {
		var h [HashSize]byte
		copy(h[:], mustHexBytes(fc.PrevCheckpointHash))
		cp.PrevCheckpointHash = &h
	}
	return cp
}

type fileEpoch struct {
	EpochID   string `json:"epoch_id"`
	PublicKey string `json:"public_key"`
	CreatedAt int64  `json:"created_at_unix_nanos"`
	Retired   bool   `json:"retired"`
}

func (s *FileStore) GetEpoch(_ context.Context, epochID string) (EpochKeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found EpochKeyRecord
	var ok bool
	err := scanJSONLinesLocked(s.epochsFile, func(raw json.RawMessage) error {
		var fe fileEpoch
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		if fe.EpochID == epochID {
			found, ok = EpochKeyRecord{
				EpochID: fe.EpochID, PublicKey: mustHexBytes(fe.PublicKey),
				CreatedAt: timeFromUnixNanos(fe.CreatedAt), Retired: fe.Retired,
			}, true
		}
		return nil
	})
	return found, ok, err
}

func (s *FileStore) PutEpoch(_ context.Context, rec EpochKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists := false
	if err := scanJSONLinesLocked(s.epochsFile, func(raw json.RawMessage) error {
		var fe fileEpoch
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		if fe.EpochID == rec.EpochID {
			exists = true
		}
		return nil
	}); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: epoch %q already exists", ErrInvalidInput, rec.EpochID)
	}

	fe := fileEpoch{EpochID: rec.EpochID, PublicKey: hexString(rec.PublicKey), CreatedAt: rec.CreatedAt.UTC().UnixNano()}
	return appendJSONLineLocked(s.epochsFile, fe)
}

// RetireEpoch appends a retirement marker; reads replay the file and the
// last record for an epoch id wins, so RetireEpoch never rewrites history.
func (s *FileStore) RetireEpoch(_ context.Context, epochID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec *fileEpoch
	if err := scanJSONLinesLocked(s.epochsFile, func(raw json.RawMessage) error {
		var fe fileEpoch
		if err := json.Unmarshal(raw, &fe); err != nil {
			return err
		}
		if fe.EpochID == epochID {
			fe := fe
			rec = &fe
		}
		return nil
	}); err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: epoch %q", ErrUnknownEpoch, epochID)
	}
	rec.Retired = true
	return appendJSONLineLocked(s.epochsFile, *rec)
}

// appendJSONLineLocked marshals v and appends it as one line, holding an
// exclusive flock for the duration of the write so concurrent processes
// sharing this file never interleave partial lines.
func appendJSONLineLocked(f *os.File, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock file: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return f.Sync()
}

// scanJSONLinesLocked replays every line in f from the start under a shared
// flock, invoking fn with each decoded line in file order. GetEpoch-style
// "last write wins" semantics are left to the caller, which sees every line.
func scanJSONLinesLocked(f *os.File, fn func(json.RawMessage) error) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return fmt.Errorf("lock file: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek file: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(json.RawMessage(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func hexString(b []byte) string {
	if b == nil {
		return ""
	}
	return hex.EncodeToString(b)
}

func mustHexBytes(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func timeFromUnixNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

var _ Store = (*FileStore)(nil)
