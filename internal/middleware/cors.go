package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// ParseOrigins はカンマ区切りのオリジン指定を分解する。
// 前後の空白と末尾の"/"は取り除く。
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewCORSMiddleware はカンマ区切りで指定されたオリジンに対するCORSミドルウェアを返す。
// クライアントIDCookieを送信させるため、ワイルドカード(*)は使用せず、
// リクエストのOriginが許可リストにあればそのまま返す。
// Originヘッダーのないリクエストには先頭のオリジンを返す。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := ParseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			if allow := allowOrigin(origins, r.Header.Get("Origin")); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowOrigin(origins []string, requested string) string {
	if len(origins) == 0 {
		return ""
	}
	if requested == "" {
		return origins[0]
	}
	if slices.Contains(origins, requested) {
		return requested
	}
	return ""
}
