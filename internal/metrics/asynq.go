package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	taskOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "task_outcomes_total",
		Help:      "任务结果：ok、retry 或 skip_retry。",
	}, []string{"type", "outcome"})

	taskLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "单次任务执行耗时（秒）。",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"type"})

	taskActive = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "active_tasks",
		Help:      "执行中的任务数。",
	}, []string{"type"})
)

func taskOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "skip_retry"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware 包裹 mux 上的所有任务处理器。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			active := taskActive.WithLabelValues(task.Type())
			active.Inc()
			defer active.Dec()

			began := time.Now()
			err := next.ProcessTask(ctx, task)
			taskLatency.WithLabelValues(task.Type()).Observe(time.Since(began).Seconds())
			taskOutcomes.WithLabelValues(task.Type(), taskOutcome(err)).Inc()
			return err
		})
	}
}
