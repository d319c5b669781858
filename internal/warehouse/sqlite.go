package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

const metricsSchema = `
CREATE TABLE IF NOT EXISTS job_metrics (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp       TEXT    NOT NULL,
	job_id          INTEGER NOT NULL,
	latency_ms      INTEGER NOT NULL,
	total_added     INTEGER NOT NULL,
	total_removed   INTEGER NOT NULL,
	total_modified  INTEGER NOT NULL,
	total_unchanged INTEGER NOT NULL,
	inserted_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_metrics_job_id ON job_metrics(job_id);
`

// SQLiteSink appends metrics rows to a local job_metrics table. Rows are
// append-only; a job reported twice gets two rows, matching the warehouse
// semantics of one row per reporting request.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (or creates) the metrics database at path and applies
// the standard pragmas and the metrics schema.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrInsertFailed, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: set pragma: %v", ErrInsertFailed, err)
		}
	}

	if _, err := db.Exec(metricsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrInsertFailed, err)
	}

	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Insert(ctx context.Context, record types.MetricsRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_metrics
			(timestamp, job_id, latency_ms, total_added, total_removed, total_modified, total_unchanged, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
		int64(record.JobID),
		record.LatencyMS,
		record.TotalAdded,
		record.TotalRemoved,
		record.TotalModified,
		record.TotalUnchanged,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	return nil
}

// CountRows returns the number of stored metrics rows for a job id.
// Used by status reporting and tests; the core never reads rows back.
func (s *SQLiteSink) CountRows(ctx context.Context, jobID types.JobID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_metrics WHERE job_id = ?`, int64(jobID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("warehouse: count rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
