package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 业务指标
type AppMetrics struct {
	FramesBuilt      *prometheus.CounterVec // labels: opcode, result=ok|param_error|unsupported
	FrameWarnings    *prometheus.CounterVec // labels: kind
	FramesValidated  *prometheus.CounterVec // labels: result=ok|<错误关卡>
	LinkExchanges    *prometheus.CounterVec // labels: opcode, result=ok|error|throttled
	LinkBytesSent    prometheus.Counter
	LinkBytesRecv    prometheus.Counter
	LinkRoundTrip    prometheus.Histogram
	LinkBreakerState prometheus.Gauge // 0=closed 1=open 2=half_open
	OccupiedSlots    prometheus.Gauge // 最近一次读索引表得到的已注册指纹数
	IndexTableParsed prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FramesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zw_frames_built_total",
			Help: "Command frames built by opcode and result.",
		}, []string{"opcode", "result"}),
		FrameWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zw_frame_warnings_total",
			Help: "Non-fatal parameter adjustments while building frames.",
		}, []string{"kind"}),
		FramesValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zw_frames_validated_total",
			Help: "Response frame validations by result.",
		}, []string{"result"}),
		LinkExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zw_link_exchanges_total",
			Help: "Command/response exchanges over the serial link.",
		}, []string{"opcode", "result"}),
		LinkBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zw_link_bytes_sent_total",
			Help: "Total bytes written to the serial link.",
		}),
		LinkBytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zw_link_bytes_received_total",
			Help: "Total bytes read from the serial link.",
		}),
		LinkRoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zw_link_round_trip_seconds",
			Help:    "Time from command write to validated response.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		LinkBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zw_link_breaker_state",
			Help: "Serial link circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		OccupiedSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zw_occupied_slots",
			Help: "Enrolled fingerprint slots from the last index table read.",
		}),
		IndexTableParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zw_index_table_parsed_total",
			Help: "Index table responses parsed successfully.",
		}),
	}
	reg.MustRegister(
		m.FramesBuilt, m.FrameWarnings, m.FramesValidated,
		m.LinkExchanges, m.LinkBytesSent, m.LinkBytesRecv, m.LinkRoundTrip, m.LinkBreakerState,
		m.OccupiedSlots, m.IndexTableParsed,
	)
	return m
}
