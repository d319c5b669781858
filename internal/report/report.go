// ============================================================================
// Metrics & Report Builder - 報表與彙總建構器
// ============================================================================
//
// Package: internal/report
// 文件: report.go
// 功能: 將 ChangeSet 與兩份快照的中繼資料組裝成 MetricsRecord 與 Report，
//       並以 best-effort 方式寫入倉儲
//
// 設計原則:
//   倉儲寫入失敗被攔截並記錄到 Report.Warehouse 欄位與 log，
//   絕不向呼叫端拋出；報表本身是必要輸出，彙總列只是副作用。
//   搬移配對在報表中獨立列出以利閱讀，但計數仍歸 added/removed，
//   不會改變四個主計數。
//
// ============================================================================

package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ChuLiYu/buildtrace/internal/warehouse"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Builder 組裝報表並推送彙總列到倉儲
type Builder struct {
	sink   warehouse.Sink // 可為 nil：不嘗試寫入
	logger *slog.Logger
}

// NewBuilder 建立 Builder；sink 為 nil 時倉儲狀態標記為未嘗試
func NewBuilder(sink warehouse.Sink, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{sink: sink, logger: logger}
}

// Build 由 ChangeSet 與中繼資料產出 (MetricsRecord, Report)
//
// 行為：
//   - 計數取自 ChangeSet 四個主分類的長度
//   - MetricsRecord 的 timestamp/job_id/latency_ms 取自 current 的中繼資料
//   - 倉儲寫入為 best-effort；結果一律反映在 Report.Warehouse
func (b *Builder) Build(ctx context.Context, cs types.ChangeSet, previous, current types.SnapshotMeta) (types.MetricsRecord, types.Report) {
	record := types.MetricsRecord{
		Timestamp:      current.Timestamp,
		JobID:          current.JobID,
		LatencyMS:      current.LatencyMS,
		TotalAdded:     len(cs.Added),
		TotalRemoved:   len(cs.Removed),
		TotalModified:  len(cs.Modified),
		TotalUnchanged: len(cs.Unchanged),
	}

	rep := types.Report{
		JobID:          current.JobID,
		PreviousJobID:  previous.JobID,
		TotalAdded:     record.TotalAdded,
		TotalRemoved:   record.TotalRemoved,
		TotalModified:  record.TotalModified,
		TotalUnchanged: record.TotalUnchanged,
		Added:          cs.Added,
		Removed:        cs.Removed,
		Modified:       cs.Modified,
		Moved:          cs.Moves,
		Summary:        summarize(cs),
		Warehouse:      types.WarehouseSkipped,
	}

	if b.sink == nil {
		return record, rep
	}

	if err := b.sink.Insert(ctx, record); err != nil {
		// 倉儲失敗不得中斷報表，只記錄並反映在狀態欄位
		b.logger.Error("warehouse insert failed",
			"job_id", int64(current.JobID),
			"error", err,
		)
		rep.Warehouse = types.WarehouseFailed
		return record, rep
	}

	rep.Warehouse = types.WarehouseSucceeded
	return record, rep
}

// summarize 產生單行摘要，沿用原服務的 " | " 分段格式
func summarize(cs types.ChangeSet) string {
	var parts []string
	if n := len(cs.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) added.", n))
	}
	if n := len(cs.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) removed.", n))
	}
	if n := len(cs.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) modified.", n))
	}
	if n := len(cs.Moves); n > 0 {
		parts = append(parts, fmt.Sprintf("%d item(s) moved.", n))
	}
	if len(parts) == 0 {
		return "No significant changes detected."
	}
	return strings.Join(parts, " | ")
}
