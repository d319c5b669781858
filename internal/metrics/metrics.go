// ============================================================================
// BuildTrace Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露服務運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 計數器 (Counter) - 累計值，只增不減：
//      - snapshots_ingested_total: 已接收快照總數
//      - reports_generated_total: 已產出報表總數
//      - reports_failed_total: 報表請求失敗總數
//      - warehouse_insert_failures_total: 倉儲寫入失敗總數
//
//   2. 性能指標 (Histogram) - 分佈統計：
//      - diff_duration_seconds: 比對耗時分佈
//
//   3. 狀態指標 (Gauge) - 瞬時值：
//      - snapshots_stored: 目前已儲存的快照數
//
// HTTP 端點:
//   通過 /metrics 端點暴露，由 Prometheus 定期抓取
//
// ============================================================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector Prometheus 指標收集器
type Collector struct {
	snapshotsIngested prometheus.Counter
	reportsGenerated  prometheus.Counter
	reportsFailed     prometheus.Counter
	warehouseFailures prometheus.Counter

	diffDuration prometheus.Histogram

	snapshotsStored prometheus.Gauge
}

// NewCollector 創建新的指標收集器並註冊所有指標
func NewCollector() *Collector {
	c := &Collector{
		snapshotsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtrace_snapshots_ingested_total",
			Help: "Total number of snapshots accepted at the ingestion boundary",
		}),
		reportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtrace_reports_generated_total",
			Help: "Total number of change reports returned to callers",
		}),
		reportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtrace_reports_failed_total",
			Help: "Total number of report requests that failed",
		}),
		warehouseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildtrace_warehouse_insert_failures_total",
			Help: "Total number of best-effort warehouse inserts that failed",
		}),
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buildtrace_diff_duration_seconds",
			Help:    "Snapshot diff computation time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buildtrace_snapshots_stored",
			Help: "Current number of snapshots in the store",
		}),
	}

	prometheus.MustRegister(c.snapshotsIngested)
	prometheus.MustRegister(c.reportsGenerated)
	prometheus.MustRegister(c.reportsFailed)
	prometheus.MustRegister(c.warehouseFailures)
	prometheus.MustRegister(c.diffDuration)
	prometheus.MustRegister(c.snapshotsStored)

	return c
}

// RecordIngested 記錄接收的快照數
func (c *Collector) RecordIngested(count int) {
	c.snapshotsIngested.Add(float64(count))
}

// RecordReport 記錄一次成功的報表產出與其比對耗時
func (c *Collector) RecordReport(diffSeconds float64) {
	c.reportsGenerated.Inc()
	c.diffDuration.Observe(diffSeconds)
}

// RecordReportFailed 記錄報表請求失敗
func (c *Collector) RecordReportFailed() {
	c.reportsFailed.Inc()
}

// RecordWarehouseFailure 記錄倉儲寫入失敗
func (c *Collector) RecordWarehouseFailure() {
	c.warehouseFailures.Inc()
}

// SetSnapshotsStored 更新已儲存快照數
func (c *Collector) SetSnapshotsStored(count int) {
	c.snapshotsStored.Set(float64(count))
}
