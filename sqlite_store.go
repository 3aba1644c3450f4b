package pqlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver for database/sql
)

// SQLiteStore is a durable Store implementation over modernc.org/sqlite,
// grounded on the teacher library's WAL-mode, serializable-transaction
// sqlite adapter, generalized from one MAC-chained "logs" table into the
// three independently-owned record kinds this log's data model requires.
type SQLiteStore struct{ db *sql.DB }

// OpenSQLiteStore opens/creates a SQLite database at dsn and ensures schema + PRAGMAs.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	st := &SQLiteStore{db: db}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA wal_autocheckpoint=1000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS log_entries (
  id           INTEGER PRIMARY KEY,
  claim_id     TEXT    NOT NULL,
  event_type   TEXT    NOT NULL,
  ts           INTEGER NOT NULL,  -- unix micros, UTC
  payload_hash BLOB    NOT NULL,
  prev_hash    BLOB    NOT NULL,
  actor_sig    BLOB,
  epoch_id     TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
  id                   INTEGER PRIMARY KEY,
  merkle_root          BLOB    NOT NULL,
  range_lo             INTEGER NOT NULL,
  range_hi             INTEGER NOT NULL,
  prev_checkpoint_hash BLOB,
  signer_epoch_id      TEXT    NOT NULL,
  signature            BLOB    NOT NULL,
  created_at           INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS epoch_keys (
  epoch_id   TEXT PRIMARY KEY,
  public_key BLOB    NOT NULL,
  created_at INTEGER NOT NULL,
  retired    INTEGER NOT NULL DEFAULT 0
);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// InsertEntry appends e transactionally, checking contiguity against the
// current max id inside the same serializable transaction — the same
// defense-in-depth shape as the teacher adapter's tail-contiguity check.
func (s *SQLiteStore) InsertEntry(ctx context.Context, e LogEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM log_entries`).Scan(&maxID); err != nil {
		return err
	}
	if uint64(maxID.Int64) != e.ID-1 {
		return fmt.Errorf("%w: have tail %d, got %d", ErrChainRaced, maxID.Int64, e.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_entries(id, claim_id, event_type, ts, payload_hash, prev_hash, actor_sig, epoch_id)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ClaimID, e.EventType, e.Timestamp.UTC().UnixMicro(), e.PayloadHash[:], e.PrevHash[:], nullableBlob(e.ActorSig), e.EpochID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func nullableBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func (s *SQLiteStore) GetEntry(ctx context.Context, id uint64) (LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, prev_hash, actor_sig, epoch_id FROM log_entries WHERE id=?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LogEntry{}, false, nil
	}
	if err != nil {
		return LogEntry{}, false, err
	}
	return e, true, nil
}

func (s *SQLiteStore) RangeEntries(ctx context.Context, lo, hi uint64) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, prev_hash, actor_sig, epoch_id
		 FROM log_entries WHERE id >= ? AND id <= ? ORDER BY id ASC`, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastEntry(ctx context.Context) (LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim_id, event_type, ts, payload_hash, prev_hash, actor_sig, epoch_id
		 FROM log_entries ORDER BY id DESC LIMIT 1`)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LogEntry{}, false, nil
	}
	if err != nil {
		return LogEntry{}, false, err
	}
	return e, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row *sql.Row) (LogEntry, error)      { return scanEntryRows(row) }
func scanEntryRows(row rowScanner) (LogEntry, error) {
	var e LogEntry
	var tsMicros int64
	var payloadHash, prevHash, actorSig []byte
	if err := row.Scan(&e.ID, &e.ClaimID, &e.EventType, &tsMicros, &payloadHash, &prevHash, &actorSig, &e.EpochID); err != nil {
		return LogEntry{}, err
	}
	e.Timestamp = time.UnixMicro(tsMicros).UTC()
	copy(e.PayloadHash[:], payloadHash)
	copy(e.PrevHash[:], prevHash)
	e.ActorSig = actorSig
	return e, nil
}

func (s *SQLiteStore) InsertCheckpoint(ctx context.Context, cp Checkpoint) error {
	var prevHashBlob any
	if cp.PrevCheckpointHash != nil {
		prevHashBlob = cp.PrevCheckpointHash[:]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints(id, merkle_root, range_lo, range_hi, prev_checkpoint_hash, signer_epoch_id, signature, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.MerkleRoot[:], cp.RangeLo, cp.RangeHi, prevHashBlob, cp.SignerEpochID, cp.Signature, cp.CreatedAt.UTC().UnixMicro(),
	)
	return err
}

func (s *SQLiteStore) LastCheckpoint(ctx context.Context) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_lo, range_hi, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints ORDER BY id DESC LIMIT 1`)
	return scanCheckpointRow(row)
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id uint64) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_lo, range_hi, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints WHERE id=?`, id)
	return scanCheckpointRow(row)
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, merkle_root, range_lo, range_hi, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cp, err := scanCheckpointRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CheckpointContaining(ctx context.Context, entryID uint64) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, merkle_root, range_lo, range_hi, prev_checkpoint_hash, signer_epoch_id, signature, created_at
		 FROM checkpoints WHERE range_lo <= ? AND range_hi >= ? LIMIT 1`, entryID, entryID)
	return scanCheckpointRow(row)
}

func scanCheckpointRow(row *sql.Row) (Checkpoint, bool, error) {
	cp, err := scanCheckpointRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func scanCheckpointRows(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var merkleRoot, prevHash, sig []byte
	var createdAtMicros int64
	if err := row.Scan(&cp.ID, &merkleRoot, &cp.RangeLo, &cp.RangeHi, &prevHash, &cp.SignerEpochID, &sig, &createdAtMicros); err != nil {
		return Checkpoint{}, err
	}
	copy(cp.MerkleRoot[:], merkleRoot)
	if prevHash != nil {
		var h [HashSize]byte
		copy(h[:], prevHash)
		cp.PrevCheckpointHash = &h
	}
	cp.Signature = sig
	cp.CreatedAt = time.UnixMicro(createdAtMicros).UTC()
	return cp, nil
}

func (s *SQLiteStore) GetEpoch(ctx context.Context, epochID string) (EpochKeyRecord, bool, error) {
	var rec EpochKeyRecord
	var pubKey []byte
	var createdAtMicros int64
	var retired int
	err := s.db.QueryRowContext(ctx,
		`SELECT epoch_id, public_key, created_at, retired FROM epoch_keys WHERE epoch_id=?`, epochID,
	).Scan(&rec.EpochID, &pubKey, &createdAtMicros, &retired)
	if errors.Is(err, sql.ErrNoRows) {
		return EpochKeyRecord{}, false, nil
	}
	if err != nil {
		return EpochKeyRecord{}, false, err
	}
	rec.PublicKey = pubKey
	rec.CreatedAt = time.UnixMicro(createdAtMicros).UTC()
	rec.Retired = retired != 0
	return rec, true, nil
}

func (s *SQLiteStore) PutEpoch(ctx context.Context, rec EpochKeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epoch_keys(epoch_id, public_key, created_at, retired) VALUES(?, ?, ?, ?)`,
		rec.EpochID, rec.PublicKey, rec.CreatedAt.UTC().UnixMicro(), boolToInt(rec.Retired),
	)
	return err
}

func (s *SQLiteStore) RetireEpoch(ctx context.Context, epochID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE epoch_keys SET retired=1 WHERE epoch_id=?`, epochID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: epoch %q", ErrUnknownEpoch, epochID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
