package service

// ============================================================================
// Backfill - 倉儲回填
// 職責：
// 1. 對一段已儲存的 job id 區間重新計算彙總列
// 2. 以固定數量的 worker goroutine 併發處理
// 3. 缺快照或缺基準的 id 跳過而非失敗（回填是盡力而為）
// ============================================================================

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// BackfillResult 回填統計
type BackfillResult struct {
	Processed int           // 成功寫入彙總列的 job 數
	Skipped   int           // 因缺快照或缺基準而跳過的 job 數
	Failed    []types.JobID // 儲存層故障導致失敗的 job（遞增排序）
}

// Backfill 對 [from, to] 區間內每個已儲存的 job 重算並寫入彙總列
//
// 併發控制：
//   - workers 個 goroutine 從共享的 id channel 取工作
//   - 結果經 result channel 收攏，由單一 goroutine 彙總
//   - ctx 取消時停止派發，已在途的工作跑完
func (s *Service) Backfill(ctx context.Context, from, to types.JobID, workers int) (BackfillResult, error) {
	if workers <= 0 {
		workers = 4
	}
	if from <= 0 || to < from {
		return BackfillResult{}, errors.New("backfill: invalid job id range")
	}

	ids, err := s.store.JobIDs(ctx)
	if err != nil {
		return BackfillResult{}, err
	}

	idCh := make(chan types.JobID, len(ids))
	type outcome struct {
		id      types.JobID
		err     error
		skipped bool
	}
	resultCh := make(chan outcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idCh {
				_, _, err := s.reportWithRecord(ctx, id)
				switch {
				case err == nil:
					resultCh <- outcome{id: id}
				case errors.Is(err, store.ErrSnapshotNotFound):
					// 首個 job 沒有基準，序列缺口也可能讓解析失敗
					resultCh <- outcome{id: id, skipped: true}
				default:
					resultCh <- outcome{id: id, err: err}
				}
			}
		}()
	}

	dispatched := 0
	for _, id := range ids {
		if id < from || id > to {
			continue
		}
		select {
		case idCh <- id:
			dispatched++
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(idCh)
	wg.Wait()
	close(resultCh)

	var result BackfillResult
	for out := range resultCh {
		switch {
		case out.skipped:
			result.Skipped++
		case out.err != nil:
			s.logger.Error("backfill failed for job", "job_id", int64(out.id), "error", out.err)
			result.Failed = append(result.Failed, out.id)
		default:
			result.Processed++
		}
	}
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i] < result.Failed[j] })

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}
