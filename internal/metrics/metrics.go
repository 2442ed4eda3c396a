// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/ojtracker/internal/model"
)

// Collector は取り込みと射影再構築のPrometheusメトリクスを収集する。
type Collector struct {
	fetchTotal       *prometheus.CounterVec
	attemptsInserted prometheus.Counter
	failedWrites     prometheus.Counter
	runDuration      prometheus.Histogram
	rebuildDuration  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ojtracker_fetch_total",
			Help: "プラットフォーム×結果別のフェッチ数",
		}, []string{"platform", "result"}),
		attemptsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ojtracker_attempts_inserted_total",
			Help: "新規永続化された試行の合計数",
		}),
		failedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ojtracker_failed_writes_total",
			Help: "リトライ後も失敗した書き込みの合計数",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ojtracker_ingest_run_duration_seconds",
			Help:    "取り込みサイクルの所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ojtracker_projection_rebuild_duration_seconds",
			Help:    "射影再構築の所要時間（秒）",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	reg.MustRegister(
		c.fetchTotal,
		c.attemptsInserted,
		c.failedWrites,
		c.runDuration,
		c.rebuildDuration,
	)

	return c
}

// RecordFetch はプラットフォーム×ハンドル単位のフェッチ結果を記録する。
func (c *Collector) RecordFetch(platform model.Platform, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.fetchTotal.WithLabelValues(string(platform), result).Inc()
}

// RecordAttemptsInserted は新規永続化された試行数を記録する。
func (c *Collector) RecordAttemptsInserted(n int) {
	c.attemptsInserted.Add(float64(n))
}

// RecordFailedWrite はリトライ後も失敗した書き込みを記録する。
func (c *Collector) RecordFailedWrite() {
	c.failedWrites.Inc()
}

// ObserveRunDuration は取り込みサイクルの所要時間を記録する。
func (c *Collector) ObserveRunDuration(d time.Duration) {
	c.runDuration.Observe(d.Seconds())
}

// ObserveRebuildDuration は射影再構築の所要時間を記録する。
func (c *Collector) ObserveRebuildDuration(d time.Duration) {
	c.rebuildDuration.Observe(d.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
