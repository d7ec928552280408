package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "模型调用次数。",
		},
		[]string{"model", "result"},
	)

	llmLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "模型调用耗时（秒）。",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)
)

// ObserveLLMCall 记录一次模型调用。
func ObserveLLMCall(model string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	llmRequestsTotal.WithLabelValues(model, result).Inc()
	llmLatency.WithLabelValues(model).Observe(time.Since(started).Seconds())
}
