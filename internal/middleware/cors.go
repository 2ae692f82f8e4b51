package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// TrustedOrigins は許可オリジンの集合。管理コンソールとストアの
// URLに加え、CookieDomainが設定されている場合はそのサブドメインも
// 信頼する。
type TrustedOrigins struct {
	origins      []string
	cookieDomain string
}

// NewTrustedOrigins はオリジンリストから許可集合を生成する。
// 各URLはスキーム+ホスト（+ポート）のオリジン部分に正規化される。
func NewTrustedOrigins(urls []string, cookieDomain string) *TrustedOrigins {
	origins := make([]string, 0, len(urls))
	for _, u := range urls {
		origins = append(origins, normalizeOrigin(u))
	}
	return &TrustedOrigins{
		origins:      origins,
		cookieDomain: strings.TrimPrefix(cookieDomain, "."),
	}
}

// Allows は指定されたOriginヘッダー値が許可対象かどうかを判定する。
func (t *TrustedOrigins) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range t.origins {
		if origin == o {
			return true
		}
	}
	if t.cookieDomain != "" {
		host := originHost(origin)
		if host == t.cookieDomain || strings.HasSuffix(host, "."+t.cookieDomain) {
			return true
		}
	}
	return false
}

// normalizeOrigin はURLをオリジン（スキーム://ホスト[:ポート]）に正規化する。
func normalizeOrigin(rawURL string) string {
	u := strings.TrimSuffix(rawURL, "/")
	// パス付きURLが渡された場合はオリジン部分だけを残す
	if idx := strings.Index(u, "://"); idx >= 0 {
		rest := u[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			u = u[:idx+3] + rest[:slash]
		}
	}
	return u
}

// originHost はオリジンからポートを除いたホスト名を取り出す。
func originHost(origin string) string {
	host := origin
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// CORSConfig はCORSミドルウェアの設定。パスごとに許可メソッドや
// ヘッダーが異なるため、マウント単位で個別に構成する。
type CORSConfig struct {
	Trusted        *TrustedOrigins
	AllowedMethods []string
	AllowedHeaders []string
	ExposeHeaders  []string
	MaxAge         int // プリフライト結果のキャッシュ秒数
}

// NewCORSMiddleware はCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用せず
// リクエストのOriginが許可対象の場合のみそれをエコーバックする。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(config CORSConfig) func(next http.Handler) http.Handler {
	allowMethods := strings.Join(config.AllowedMethods, ", ")
	allowHeaders := strings.Join(config.AllowedHeaders, ", ")
	exposeHeaders := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// キャッシュがオリジンごとにレスポンスを区別できるようにする
			w.Header().Add("Vary", "Origin")

			if config.Trusted.Allows(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				if exposeHeaders != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
				}
				w.Header().Set("Access-Control-Max-Age", maxAge)
			}

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
