// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"net/http"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/model"
)

// TokenResolver はトークンから認可コンテキストを解決するインターフェース。
// auth.Serviceが実装する。
type TokenResolver interface {
	Resolve(token string) model.AuthContext
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンから認可コンテキストを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い、または不正な場合は匿名コンテキストを注入し、リクエストは拒否しない。
// 認可の判定は各操作が行う。
func NewAuthMiddleware(resolver TokenResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			ac := resolver.Resolve(token)
			ctx := auth.WithAuthContext(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
