package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 409: "4xx", 503: "5xx", 0: "other"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/v1/cv/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	before := testutil.CollectAndCount(httpLatency)
	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/cv/"+id, nil))
	}
	if got := testutil.CollectAndCount(httpLatency) - before; got > 1 {
		t.Fatalf("expected one series for the route, got %d new", got)
	}
}

func TestAsynqMetricsOutcome(t *testing.T) {
	handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}))
	_ = handler.ProcessTask(context.Background(), asynq.NewTask("test:task", nil))

	if got := testutil.ToFloat64(taskOutcomes.WithLabelValues("test:task", "skip_retry")); got != 1 {
		t.Fatalf("skip_retry count = %v", got)
	}
	if taskOutcome(errors.New("boom")) != "retry" || taskOutcome(nil) != "ok" {
		t.Fatal("unexpected outcome mapping")
	}
}
