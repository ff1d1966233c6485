// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// プローブ、ゲートウェイ、セッションストアから利用する。
type MetricsCollector interface {
	RecordProbe(collection string, accessible bool)
	RecordDegradedRead(collection string, reason string)
	RecordRejectedWrite(collection string)
	RecordTransition(state string)
	RecordStaleDiscard()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	probes         *prometheus.CounterVec
	degradedReads  *prometheus.CounterVec
	rejectedWrites *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	staleDiscards  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confide_probe_total",
			Help: "コレクションのプロビジョニング確認回数",
		}, []string{"collection", "accessible"}),
		degradedReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confide_gateway_degraded_reads_total",
			Help: "空の結果に縮退した読み取りの合計数",
		}, []string{"collection", "reason"}),
		rejectedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confide_gateway_rejected_writes_total",
			Help: "スキーマ未作成のため拒否した書き込みの合計数",
		}, []string{"collection"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confide_session_transitions_total",
			Help: "セッション状態遷移の合計数",
		}, []string{"state"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confide_session_stale_discards_total",
			Help: "後続イベントにより破棄された解決結果の合計数",
		}),
	}

	reg.MustRegister(
		c.probes,
		c.degradedReads,
		c.rejectedWrites,
		c.transitions,
		c.staleDiscards,
	)

	return c
}

// RecordProbe はプローブ結果を記録する。
func (c *Collector) RecordProbe(collection string, accessible bool) {
	c.probes.WithLabelValues(collection, strconv.FormatBool(accessible)).Inc()
}

// RecordDegradedRead は縮退した読み取りを記録する。
func (c *Collector) RecordDegradedRead(collection string, reason string) {
	c.degradedReads.WithLabelValues(collection, reason).Inc()
}

// RecordRejectedWrite は拒否した書き込みを記録する。
func (c *Collector) RecordRejectedWrite(collection string) {
	c.rejectedWrites.WithLabelValues(collection).Inc()
}

// RecordTransition はセッション状態遷移を記録する。
func (c *Collector) RecordTransition(state string) {
	c.transitions.WithLabelValues(state).Inc()
}

// RecordStaleDiscard は破棄された解決結果を記録する。
func (c *Collector) RecordStaleDiscard() {
	c.staleDiscards.Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordProbe(string, bool)          {}
func (Nop) RecordDegradedRead(string, string) {}
func (Nop) RecordRejectedWrite(string)        {}
func (Nop) RecordTransition(string)           {}
func (Nop) RecordStaleDiscard()               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
