package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "按路由与状态类别统计的请求耗时（秒）。",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30},
	}, []string{"method", "route", "class"})

	httpResponseBytes = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "响应体大小。",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"route"})

	httpActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "active_requests",
		Help:      "处理中的请求数。",
	})
)

// statusClass 把 201 归为 2xx，避免 status 标签基数膨胀。
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// routeLabel 使用路由模板而非原始路径，/cv/:id 不会按 id 拆分。
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// GinMiddleware 采集每个请求的耗时与响应大小。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpActive.Inc()
		began := time.Now()

		c.Next()

		httpActive.Dec()
		route := routeLabel(c)
		httpLatency.WithLabelValues(c.Request.Method, route, statusClass(c.Writer.Status())).
			Observe(time.Since(began).Seconds())
		if size := c.Writer.Size(); size > 0 {
			httpResponseBytes.WithLabelValues(route).Observe(float64(size))
		}
	}
}
