package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hitoshi/deepthoughts/internal/auth"
)

// NewRecoveryMiddleware はハンドラー内のpanicを捕捉してINTERNALエラー（500）を返すミドルウェアを生成する。
// http.ErrAbortHandlerはレスポンスの中断を意味するため、捕捉せずに再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				}
				if ac := auth.FromContext(r.Context()); !ac.IsAnonymous() {
					attrs = append(attrs, slog.String("identity_id", ac.IdentityID))
				}
				slog.ErrorContext(r.Context(), "panic recovered", attrs...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
