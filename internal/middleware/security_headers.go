package middleware

import "net/http"

// apiSecurityHeaders はJSON/GraphQL APIのレスポンスに常に付与するヘッダー。
// HTMLを返さないため、CSPはすべての読み込みを禁止する。
var apiSecurityHeaders = [...]struct{ name, value string }{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// Authorizationヘッダー付きのリクエストとPOSTのレスポンスはトークンや個人データを含み得るため
// キャッシュさせない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hdr := range apiSecurityHeaders {
				h.Set(hdr.name, hdr.value)
			}
			if r.Method == http.MethodPost || r.Header.Get("Authorization") != "" {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
