package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	job_id     INTEGER PRIMARY KEY,
	timestamp  TEXT    NOT NULL,
	latency_ms INTEGER NOT NULL,
	objects    TEXT    NOT NULL
);
`

// SQLiteStore keeps one row per job id in a local SQLite database. The object
// map is stored as a JSON document in a single column so fingerprints
// round-trip untouched.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the snapshot database at path and applies
// the standard pragmas and the snapshot schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStoreUnavailable, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: set pragma: %v", ErrStoreUnavailable, err)
		}
	}

	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrStoreUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrStoreUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap types.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}

	objects, err := json.Marshal(snap.Objects)
	if err != nil {
		return fmt.Errorf("failed to marshal object map: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (job_id, timestamp, latency_ms, objects)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			latency_ms = excluded.latency_ms,
			objects = excluded.objects
	`, int64(snap.JobID), snap.Timestamp.UTC().Format(timeLayout), snap.LatencyMS, string(objects))
	if err != nil {
		return fmt.Errorf("%w: insert snapshot: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Fetch(ctx context.Context, jobID types.JobID) (types.Snapshot, error) {
	var (
		ts      string
		latency int64
		objects string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp, latency_ms, objects FROM snapshots WHERE job_id = ?
	`, int64(jobID)).Scan(&ts, &latency, &objects)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Snapshot{}, fmt.Errorf("%w: job %d", ErrSnapshotNotFound, jobID)
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: query snapshot: %v", ErrStoreUnavailable, err)
	}

	snap := types.Snapshot{JobID: jobID, LatencyMS: latency}
	if snap.Timestamp, err = parseTime(ts); err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: corrupted timestamp for job %d: %v", ErrStoreUnavailable, jobID, err)
	}
	if err := json.Unmarshal([]byte(objects), &snap.Objects); err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: corrupted object map for job %d: %v", ErrStoreUnavailable, jobID, err)
	}
	if snap.Objects == nil {
		snap.Objects = make(map[string]types.Fingerprint)
	}
	return snap, nil
}

func (s *SQLiteStore) JobIDs(ctx context.Context) ([]types.JobID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id FROM snapshots ORDER BY job_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list job ids: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []types.JobID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan job id: %v", ErrStoreUnavailable, err)
		}
		ids = append(ids, types.JobID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate job ids: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

func (s *SQLiteStore) LatestBefore(ctx context.Context, jobID types.JobID) (types.JobID, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(job_id) FROM snapshots WHERE job_id < ?
	`, int64(jobID)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: query predecessor: %v", ErrStoreUnavailable, err)
	}
	if !id.Valid {
		return 0, fmt.Errorf("%w: no job before %d", ErrSnapshotNotFound, jobID)
	}
	return types.JobID(id.Int64), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
