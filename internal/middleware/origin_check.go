package middleware

import (
	"log/slog"
	"net/http"
)

// NewOriginCheckMiddleware はクロスサイトからの状態変更リクエストを
// 遮断するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// 状態変更メソッド（POST, PUT, PATCH, DELETE）はOriginヘッダー
// （なければRefererヘッダー）が許可オリジンであることを必須とする。
// ブラウザ以外のクライアントはどちらのヘッダーも送らないため通過する。
func NewOriginCheckMiddleware(trusted *TrustedOrigins) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 安全なメソッドは検証をスキップ
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				if referer := r.Header.Get("Referer"); referer != "" {
					origin = normalizeOrigin(referer)
				}
			}

			// OriginもRefererもないリクエストはブラウザ発ではないとみなす
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !trusted.Allows(origin) {
				slog.Warn("origin validation failed",
					slog.String("origin", origin),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "origin validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
