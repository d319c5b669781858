// ============================================================================
// BuildTrace Service - 報表管線協調器
// ============================================================================
//
// Package: internal/service
// 文件: service.go
// 功能: 串接所有模組，完成一次報表請求的完整流程
//
// 單次請求流程:
//   1. resolver 解析前驅 job id
//   2. store 取回 current 與 previous 兩份快照
//   3. diff 引擎計算 ChangeSet（純函式，計時供監控）
//   4. report builder 組裝 MetricsRecord 與 Report，
//      並 best-effort 寫入倉儲
//
// 併發模型:
//   Service 本身無可變共享狀態，所有請求各自獨立，
//   可被 HTTP handler 併發呼叫而不需協調
//
// ============================================================================

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/buildtrace/internal/diff"
	"github.com/ChuLiYu/buildtrace/internal/metrics"
	"github.com/ChuLiYu/buildtrace/internal/report"
	"github.com/ChuLiYu/buildtrace/internal/resolver"
	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Service 報表服務：儲存、比對、彙總的組合
type Service struct {
	store     store.Store
	resolver  resolver.Predecessor
	builder   *report.Builder
	collector *metrics.Collector // 可為 nil（測試或關閉監控時）
	logger    *slog.Logger
}

// New 建立 Service 實例
func New(s store.Store, r resolver.Predecessor, b *report.Builder, c *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     s,
		resolver:  r,
		builder:   b,
		collector: c,
		logger:    logger,
	}
}

// Ingest 驗證並儲存一批快照（ingestion boundary）
//
// 整批先驗證再寫入：任一快照結構不合法時整批拒絕，不落任何一筆；
// 寫入失敗才會留下部分狀態，回傳已儲存的數量與錯誤
func (s *Service) Ingest(ctx context.Context, snaps []types.Snapshot) (int, error) {
	for i, snap := range snaps {
		if err := store.Validate(snap); err != nil {
			return 0, fmt.Errorf("snapshot %d/%d: %w", i+1, len(snaps), err)
		}
	}

	for i, snap := range snaps {
		if err := s.store.Put(ctx, snap); err != nil {
			return i, fmt.Errorf("store snapshot for job %d: %w", snap.JobID, err)
		}
		s.logger.Info("snapshot stored", "job_id", int64(snap.JobID), "objects", len(snap.Objects))
	}

	if s.collector != nil {
		s.collector.RecordIngested(len(snaps))
		if ids, err := s.store.JobIDs(ctx); err == nil {
			s.collector.SetSnapshotsStored(len(ids))
		}
	}
	return len(snaps), nil
}

// Report 對指定 job id 產出變更報表
//
// 錯誤對應（§ 錯誤分類）：
//   - 前驅解析失敗或任一快照不存在 → store.ErrSnapshotNotFound
//   - 儲存層故障 → store.ErrStoreUnavailable
//   - 倉儲寫入失敗不回傳錯誤，反映在 Report.Warehouse
func (s *Service) Report(ctx context.Context, jobID types.JobID) (types.Report, error) {
	rep, _, err := s.reportWithRecord(ctx, jobID)
	return rep, err
}

func (s *Service) reportWithRecord(ctx context.Context, jobID types.JobID) (types.Report, types.MetricsRecord, error) {
	current, err := s.store.Fetch(ctx, jobID)
	if err != nil {
		s.recordFailure()
		return types.Report{}, types.MetricsRecord{}, err
	}

	prevID, err := s.resolver.Resolve(ctx, jobID)
	if err != nil {
		s.recordFailure()
		return types.Report{}, types.MetricsRecord{}, fmt.Errorf("resolve predecessor of job %d: %w", jobID, err)
	}

	previous, err := s.store.Fetch(ctx, prevID)
	if err != nil {
		s.recordFailure()
		// 缺少前驅快照對本次請求是致命的；不得靜默當成空基準
		return types.Report{}, types.MetricsRecord{}, fmt.Errorf("fetch baseline job %d: %w", prevID, err)
	}

	started := time.Now()
	cs := diff.Diff(previous, current)
	elapsed := time.Since(started).Seconds()

	record, rep := s.builder.Build(ctx, cs, previous.Meta(), current.Meta())

	if s.collector != nil {
		s.collector.RecordReport(elapsed)
		if rep.Warehouse == types.WarehouseFailed {
			s.collector.RecordWarehouseFailure()
		}
	}

	s.logger.Info("report generated",
		"job_id", int64(jobID),
		"previous_job_id", int64(prevID),
		"added", rep.TotalAdded,
		"removed", rep.TotalRemoved,
		"modified", rep.TotalModified,
		"unchanged", rep.TotalUnchanged,
		"warehouse", string(rep.Warehouse),
	)
	return rep, record, nil
}

// Healthy 檢查儲存層是否可用
func (s *Service) Healthy(ctx context.Context) error {
	_, err := s.store.JobIDs(ctx)
	if err != nil && !errors.Is(err, store.ErrSnapshotNotFound) {
		return err
	}
	return nil
}

func (s *Service) recordFailure() {
	if s.collector != nil {
		s.collector.RecordReportFailed()
	}
}
