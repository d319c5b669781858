// Package types 定義了 buildtrace 系統中使用的核心領域模型
package types

import (
	"time"
)

// JobID 建置任務唯一識別碼（遞增整數，與提交順序一致）
type JobID int64

// Fingerprint 物件內容指紋（不透明值，只做精確比較）
type Fingerprint string

// Snapshot 快照結構，代表一次建置任務的完整物件狀態
// 整合了 metadata 與 state map 兩部分（對應 ingestion payload）
type Snapshot struct {
	// 識別與計量
	JobID     JobID     `json:"job_id"`     // 任務唯一識別碼
	Timestamp time.Time `json:"timestamp"`  // 任務開始時間
	LatencyMS int64     `json:"latency_ms"` // 建置總耗時（毫秒）

	// 狀態資料
	// key 在單一快照內必須唯一；快照一旦寫入即不可變
	Objects map[string]Fingerprint `json:"state"` // 物件 key 到指紋的映射
}

// Meta 回傳快照的中繼資料（不含 Objects），供報表層使用
func (s Snapshot) Meta() SnapshotMeta {
	return SnapshotMeta{
		JobID:     s.JobID,
		Timestamp: s.Timestamp,
		LatencyMS: s.LatencyMS,
	}
}

// SnapshotMeta 快照中繼資料，與物件映射分離以便單獨傳遞
type SnapshotMeta struct {
	JobID     JobID     `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMS int64     `json:"latency_ms"`
}

// MovePair 表示一組搬移關係：previous 中的 key 以相同指紋
// 出現在 current 的另一個 key 底下
type MovePair struct {
	From string `json:"from"` // previous 中被移除的 key
	To   string `json:"to"`   // current 中新增的 key
}

// ChangeSet 兩份快照比對的完整分類結果
//
// 不變量：
//   - Added ∪ Modified ∪ Unchanged = keys(current)
//   - Removed ∪ Modified ∪ Unchanged = keys(previous)
//   - 四個主分類互不重疊
//   - Moves 只是 Added/Removed 配對上的註記，不是第五個分類，
//     聚合計數時不得重複計算
type ChangeSet struct {
	Added     []string   `json:"added"`     // current 有、previous 無
	Removed   []string   `json:"removed"`   // previous 有、current 無
	Modified  []string   `json:"modified"`  // 兩邊都有，指紋不同
	Unchanged []string   `json:"unchanged"` // 兩邊都有，指紋相同
	Moves     []MovePair `json:"moves"`     // 指紋相同但 key 不同的配對
}

// MetricsRecord 一次報表請求寫入倉儲的彙總列
// 建構一次、寫入一次（best-effort），之後不再讀取或修改
type MetricsRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	JobID          JobID     `json:"job_id"`
	LatencyMS      int64     `json:"latency_ms"`
	TotalAdded     int       `json:"total_added"`
	TotalRemoved   int       `json:"total_removed"`
	TotalModified  int       `json:"total_modified"`
	TotalUnchanged int       `json:"total_unchanged"`
}

// WarehouseStatus 倉儲寫入結果，必須明確反映嘗試與否及成敗
type WarehouseStatus string

const (
	WarehouseSucceeded WarehouseStatus = "attempted, succeeded"
	WarehouseFailed    WarehouseStatus = "attempted, failed"
	WarehouseSkipped   WarehouseStatus = "not attempted"
)

// Report 回傳給呼叫端的可讀變更報告
type Report struct {
	JobID          JobID           `json:"job_id"`
	PreviousJobID  JobID           `json:"previous_job_id"`
	TotalAdded     int             `json:"total_added"`
	TotalRemoved   int             `json:"total_removed"`
	TotalModified  int             `json:"total_modified"`
	TotalUnchanged int             `json:"total_unchanged"`
	Added          []string        `json:"added"`
	Removed        []string        `json:"removed"`
	Modified       []string        `json:"modified"`
	Moved          []MovePair      `json:"moved"`
	Summary        string          `json:"summary"`
	Warehouse      WarehouseStatus `json:"metrics_status"`
}
