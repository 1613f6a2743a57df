package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/deepthoughts/internal/metrics"
)

// NewMetricsMiddleware はHTTPステータスとルート別レイテンシを記録するミドルウェアを返す。
// ルートはchiのルートパターンで集計し、未一致のリクエストは"unmatched"とする。
func NewMetricsMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			collector.RecordHTTPStatus(rec.statusCode())
			collector.RecordHTTPLatency(route, time.Since(start))
		})
	}
}
