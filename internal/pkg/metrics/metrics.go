package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deedeoliveira/GRIDD-OpenDT/internal/domain/apperror"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約操作の総数（operation: create/checkin/checkout/cancel/approve, result: success またはエラー種別）
	ReservationOperationsTotal *prometheus.CounterVec

	// スイープで no_show にした予約の総数
	NoShowsMarkedTotal prometheus.Counter

	// スイープ1回の所要時間
	SweepDuration prometheus.Histogram

	// アセットロックの操作時間（operation: acquire/release, status: success/failed）
	AssetLockDuration *prometheus.HistogramVec

	// アセットキャッシュの参照結果（result: hit/miss/error）
	AssetCacheRequestsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Total number of reservation lifecycle operations by result",
			},
			[]string{"operation", "result"},
		),
		NoShowsMarkedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reservation_no_shows_marked_total",
				Help: "Total number of approved reservations swept to no_show",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reservation_sweep_duration_seconds",
				Help:    "Time spent marking expired reservations as no_show",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
		),
		AssetLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asset_lock_duration_seconds",
				Help:    "Time spent on distributed asset lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		AssetCacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_cache_requests_total",
				Help: "Asset catalog cache lookups by result",
			},
			[]string{"result"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationOperationsTotal,
		m.NoShowsMarkedTotal,
		m.SweepDuration,
		m.AssetLockDuration,
		m.AssetCacheRequestsTotal,
	)

	return m
}

// ObserveOperation は予約操作の結果を記録する。nil の Metrics では何もしない
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = string(apperror.KindOf(err))
	}
	m.ReservationOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveSweep はスイープ結果を記録する
func (m *Metrics) ObserveSweep(marked int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.NoShowsMarkedTotal.Add(float64(marked))
	m.SweepDuration.Observe(elapsed.Seconds())
}

// ObserveLock はアセットロック操作の時間を記録する
func (m *Metrics) ObserveLock(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.AssetLockDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}

// ObserveCache はキャッシュ参照結果を記録する
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.AssetCacheRequestsTotal.WithLabelValues(result).Inc()
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
