package middleware

import (
	"net/http"
	"slices"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
	corsMaxAge       = "86400"
)

// ParseOrigins はカンマ区切りのオリジン指定を分割する。空要素は除外する。
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware は許可オリジンの一覧に対するCORSミドルウェアを返す。
//
// リクエストのOriginが一覧に含まれる場合はそのOriginを返し、含まれない場合は
// Access-Control-Allow-Originを付与しない。Originヘッダーのないリクエスト
// （同一オリジンやCLI）には先頭のオリジンを返す。"*"を含めると全オリジンを許可する。
// 資格情報はAuthorizationヘッダーで送るため、Cookieの送信は許可しない。
func NewCORSMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := allowedOrigin(r.Header.Get("Origin"), allowedOrigins, allowAll); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			// プリフライトは許可の有無にかかわらず204で終える
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(origin string, allowed []string, allowAll bool) string {
	switch {
	case allowAll:
		return "*"
	case origin == "":
		if len(allowed) == 0 {
			return ""
		}
		return allowed[0]
	case slices.Contains(allowed, origin):
		return origin
	default:
		return ""
	}
}
