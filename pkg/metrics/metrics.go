package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		VerifyTotal, VerifyDuration,
		SourceCallsTotal, SourceLatency,
		CircuitState, RateLimitWait,
		CacheLookups, DedupJoins,
	)
}

// VerifyTotal 核查请求总数（按最终结论）
var VerifyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "verify_requests_total",
		Help: "核查请求总数（按结论）",
	},
	[]string{"verdict", "tier"},
)

// VerifyDuration 单次核查端到端耗时（秒）
var VerifyDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "verify_duration_seconds",
		Help:    "核查端到端耗时（秒）",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"tier"},
)

// SourceCallsTotal 数据源调用次数（按结果）
var SourceCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "verify_source_calls_total",
		Help: "数据源调用次数",
	},
	[]string{"source", "outcome"}, // ok | timeout | rate_limited | circuit_open | error
)

// SourceLatency 数据源单次调用耗时（秒）
var SourceLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "verify_source_latency_seconds",
		Help:    "数据源调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"source"},
)

// CircuitState 熔断器状态：0 closed, 1 half_open, 2 open
var CircuitState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "verify_circuit_state",
		Help: "熔断器状态（0 closed / 1 half_open / 2 open）",
	},
	[]string{"source"},
)

// RateLimitWait 限流等待时间（秒）
var RateLimitWait = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "verify_rate_limit_wait_seconds",
		Help:    "令牌桶等待时间（秒）",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
	},
	[]string{"source"},
)

// CacheLookups 结果缓存查询次数
var CacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "verify_cache_lookups_total",
		Help: "结果缓存查询次数",
	},
	[]string{"result"}, // hit | miss
)

// DedupJoins 加入进行中核查的请求数
var DedupJoins = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "verify_dedup_joins_total",
		Help: "合并到进行中核查的请求数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
