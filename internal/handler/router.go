// Package handler はHTTPルーティングと操作エンドポイントのハンドラーを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/deepthoughts/internal/metrics"
	"github.com/hitoshi/deepthoughts/internal/middleware"
	"github.com/hitoshi/deepthoughts/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenResolver     middleware.TokenResolver
	CORSAllowedOrigin string // カンマ区切りで複数指定可
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// 操作
	GraphQL    http.Handler
	Dispatcher Dispatcher

	// 運用
	HealthChecker   repository.HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Auth → Logging → Metrics → RateLimit(GeneralMiddleware)
//
// 運用ルート（/health, /metrics）はAuthとRateLimitの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(middleware.ParseOrigins(deps.CORSAllowedOrigin)...))

	opsHandler := NewOpsHandler(deps.Dispatcher)

	// --- 運用ルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker).Check)
	}
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 操作ルート ---
	// 認証は拒否せず、認可の判定は各操作が行う
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenResolver))
		r.Use(middleware.NewLoggingMiddleware(slog.Default()))
		if deps.Metrics != nil {
			r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
		}
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Method(http.MethodPost, "/graphql", deps.GraphQL)

		r.Route("/api/ops", func(r chi.Router) {
			r.Get("/", opsHandler.ListOperations)
			r.Post("/{operation}", opsHandler.Invoke)
		})
	})

	return r
}
