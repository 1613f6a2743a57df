package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/deepthoughts/internal/auth"
)

// responseRecorder はステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

// NewLoggingMiddleware はアクセスログをJSON構造化ログとして出力するミドルウェアを返す。
//
// 記録するフィールドはmethod、path、status、bytes、duration_ms。操作エンドポイントでは
// operation、認証済みのリクエストではidentity_idを追加する。
// identity_idを記録するため、AuthMiddlewareの内側に配置すること。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			// ルーティング後にはchiのURLパラメータが埋まっている
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if op := rctx.URLParam("operation"); op != "" {
					args = append(args, slog.String("operation", op))
				}
			}
			if ac := auth.FromContext(r.Context()); !ac.IsAnonymous() {
				args = append(args, slog.String("identity_id", ac.IdentityID))
			}

			logger.Log(r.Context(), levelForStatus(status), "http_request", args...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
