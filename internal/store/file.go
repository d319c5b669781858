package store

// ============================================================================
// 檔案快照儲存
// 職責：
// 1. 每個 job id 一份 JSON 檔（job_state/<id>.json 佈局）
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// ============================================================================

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

const fileSchemaVer = 1

// fileRecord 磁碟上的完整記錄：快照本體加 schema 版本
type fileRecord struct {
	SchemaVer int            `json:"schema_ver"`
	Snapshot  types.Snapshot `json:"snapshot"`
}

// FileStore 以目錄為後端的快照儲存
type FileStore struct {
	dir string
	mu  sync.Mutex // 保護寫入側的 temp+rename 流程
}

// NewFileStore 建立檔案儲存，目錄不存在時自動建立
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create dir: %v", ErrStoreUnavailable, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID types.JobID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.json", jobID))
}

// Put 原子性寫入快照
//
// 流程：
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (s *FileStore) Put(ctx context.Context, snap types.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := fileRecord{SchemaVer: fileSchemaVer, Snapshot: snap}
	jsonBytes, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := s.path(snap.JobID)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("%w: write temp snapshot: %v", ErrStoreUnavailable, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// 重新命名失敗，清理臨時檔案
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename snapshot: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Fetch 載入指定 job id 的快照
//
// 行為：
//   - 檔案不存在 → ErrSnapshotNotFound
//   - JSON 損壞或版本不符 → ErrStoreUnavailable（視為儲存層故障）
func (s *FileStore) Fetch(ctx context.Context, jobID types.JobID) (types.Snapshot, error) {
	jsonBytes, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Snapshot{}, fmt.Errorf("%w: job %d", ErrSnapshotNotFound, jobID)
		}
		return types.Snapshot{}, fmt.Errorf("%w: read snapshot: %v", ErrStoreUnavailable, err)
	}

	var record fileRecord
	if err := json.Unmarshal(jsonBytes, &record); err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: corrupted snapshot for job %d: %v", ErrStoreUnavailable, jobID, err)
	}

	if record.SchemaVer != fileSchemaVer {
		return types.Snapshot{}, fmt.Errorf("%w: schema version %d, want %d", ErrStoreUnavailable, record.SchemaVer, fileSchemaVer)
	}

	// 確保 Objects map 不為 nil（空快照合法）
	if record.Snapshot.Objects == nil {
		record.Snapshot.Objects = make(map[string]types.Fingerprint)
	}

	return record.Snapshot, nil
}

// JobIDs 列出所有已儲存的 job id（遞增排序）
func (s *FileStore) JobIDs(ctx context.Context) ([]types.JobID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list dir: %v", ErrStoreUnavailable, err)
	}

	var ids []types.JobID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue // 忽略非快照檔案
		}
		ids = append(ids, types.JobID(id))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LatestBefore 回傳小於 jobID 的最大已儲存 id
func (s *FileStore) LatestBefore(ctx context.Context, jobID types.JobID) (types.JobID, error) {
	ids, err := s.JobIDs(ctx)
	if err != nil {
		return 0, err
	}

	best := types.JobID(0)
	for _, id := range ids {
		if id < jobID && id > best {
			best = id
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%w: no job before %d", ErrSnapshotNotFound, jobID)
	}
	return best, nil
}

// Close 檔案儲存無需釋放資源
func (s *FileStore) Close() error {
	return nil
}
