package warehouse

// ============================================================================
// Journal Sink 測試
// 職責：驗證追加、批次 flush、checksum、重放與旋轉
// ============================================================================

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

func record(jobID types.JobID, added, removed, modified, unchanged int) types.MetricsRecord {
	return types.MetricsRecord{
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		JobID:          jobID,
		LatencyMS:      2000,
		TotalAdded:     added,
		TotalRemoved:   removed,
		TotalModified:  modified,
		TotalUnchanged: unchanged,
	}
}

func TestJournalInsertAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.journal")
	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, j.Insert(ctx, record(types.JobID(i), i, 0, 0, 10)))
	}
	require.NoError(t, j.Close())

	reopened, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	var replayed []Entry
	err = reopened.Replay(func(entry Entry) error {
		replayed = append(replayed, entry)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, replayed, 5)
	for i, entry := range replayed {
		assert.Equal(t, uint64(i+1), entry.Seq)
		assert.Equal(t, types.JobID(i+1), entry.Record.JobID)
		assert.Equal(t, i+1, entry.Record.TotalAdded)
	}
}

func TestJournalSeqContinuesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.journal")
	ctx := context.Background()

	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	require.NoError(t, j.Insert(ctx, record(1, 1, 0, 0, 0)))
	require.NoError(t, j.Insert(ctx, record(2, 0, 1, 0, 0)))
	require.NoError(t, j.Close())

	reopened, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(2), reopened.LastSeq())
	require.NoError(t, reopened.Insert(ctx, record(3, 0, 0, 1, 0)))
	assert.Equal(t, uint64(3), reopened.LastSeq())
}

func TestJournalChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.journal")

	// 手工寫入一筆 checksum 錯誤的條目
	bad := Entry{Seq: 1, Record: record(1, 2, 0, 0, 0), Written: time.Now().UnixMilli(), Checksum: 0xDEAD}
	data, err := json.Marshal(bad)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, '\n'), 0644))

	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	defer j.Close()

	err = j.Replay(func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestJournalCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.journal")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	defer j.Close()

	err = j.Replay(func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrJournalCorrupted)
}

func TestJournalRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrics.journal")
	ctx := context.Background()

	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Insert(ctx, record(1, 1, 0, 0, 0)))
	require.NoError(t, j.Rotate())

	// 旋轉後 seq 歸零，舊檔保留為備份
	assert.Equal(t, uint64(0), j.LastSeq())
	require.NoError(t, j.Insert(ctx, record(2, 0, 1, 0, 0)))
	assert.Equal(t, uint64(1), j.LastSeq())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "backup file should remain after rotate")
}

func TestJournalInsertAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.journal")
	j, err := OpenJournal(path, JournalOptions{})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	err = j.Insert(context.Background(), record(1, 0, 0, 0, 0))
	assert.ErrorIs(t, err, ErrSinkClosed)
}

// failingFile 寫入一律失敗的 fileInterface 實作
type failingFile struct{}

func (failingFile) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
func (failingFile) Sync() error                 { return nil }
func (failingFile) Close() error                { return nil }

func TestJournalFlushFailureSurfacesInsertError(t *testing.T) {
	f := failingFile{}
	j := &Journal{
		file:          f,
		encoder:       json.NewEncoder(f),
		buffer:        make([]Entry, 0, 1),
		bufferSize:    1, // 每筆都觸發 flush
		lastFlushTime: time.Now(),
		flushInterval: time.Second,
	}

	err := j.Insert(context.Background(), record(1, 1, 0, 0, 0))
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSQLiteSinkInsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.db")
	sink, err := OpenSQLiteSink(path)
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	// 同一 job 報兩次 → 兩列（每次報表請求一列）
	require.NoError(t, sink.Insert(ctx, record(7, 3, 1, 2, 40)))
	require.NoError(t, sink.Insert(ctx, record(7, 3, 1, 2, 40)))

	n, err := sink.CountRows(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sink.CountRows(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChecksumRoundTrip(t *testing.T) {
	rec := record(9, 1, 2, 3, 4)
	entry := Entry{Seq: 42, Record: rec, Checksum: CalculateChecksum(42, rec)}
	assert.True(t, VerifyChecksum(entry))

	entry.Record.TotalAdded++
	assert.False(t, VerifyChecksum(entry), fmt.Sprintf("mutated record must fail verification: %+v", entry))
}
