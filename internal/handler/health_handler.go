package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/deepthoughts/internal/repository"
)

// healthCheckTimeout はストア疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthHandler はストアの疎通を確認するHTTPハンドラー。
type HealthHandler struct {
	checker repository.HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker repository.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Check はストアへの疎通を確認する。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.checker.PingContext(ctx); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
