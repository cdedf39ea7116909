// Package metrics はパイプラインと HTTP サーバーの Prometheus メトリクスを定義します。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "graphic_novel"

	stageLabel    = "stage"
	attemptLabel  = "attempt"
	strategyLabel = "strategy"
	statusLabel   = "status"
)

// Recorder はパイプラインの観測点を Prometheus のコレクターに記録します。
type Recorder struct {
	registry           *prometheus.Registry
	stageAttempts      *prometheus.CounterVec
	strategyErrors     *prometheus.CounterVec
	checkpointFailures prometheus.Counter
	jobsFinished       *prometheus.CounterVec
	renderDuration     prometheus.Histogram
}

// NewRecorder は専用のレジストリにコレクターを登録した Recorder を作成します。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_success_total",
			Help:      "Successful stage executions partitioned by the fallback attempt index that produced the result.",
		}, []string{stageLabel, attemptLabel, strategyLabel}),
		strategyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_errors_total",
			Help:      "Failed strategy attempts partitioned by stage and strategy.",
		}, []string{stageLabel, strategyLabel}),
		checkpointFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_failures_total",
			Help:      "Page checkpoints that could not be persisted after one retry.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{statusLabel}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_render_seconds",
			Help:      "Time spent rendering and persisting one page.",
			Buckets:   []float64{1, 5, 15, 30, 60, 90, 180, 300},
		}),
	}
	r.registry.MustRegister(
		r.stageAttempts,
		r.strategyErrors,
		r.checkpointFailures,
		r.jobsFinished,
		r.renderDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry は HTTP ミドルウェアなど追加のコレクターを登録するためのレジストリです。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler は /metrics のハンドラーを返します。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveAttempt(stage string, attempt int, strategy string) {
	r.stageAttempts.WithLabelValues(stage, strconv.Itoa(attempt), strategy).Inc()
}

func (r *Recorder) ObserveStrategyError(stage, strategy string) {
	r.strategyErrors.WithLabelValues(stage, strategy).Inc()
}

func (r *Recorder) CheckpointFailed() {
	r.checkpointFailures.Inc()
}

func (r *Recorder) JobFinished(status domain.Status) {
	r.jobsFinished.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) ObserveRender(d time.Duration) {
	r.renderDuration.Observe(d.Seconds())
}
