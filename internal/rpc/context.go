package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/model"
)

// Context はリクエストスコープの認可コンテキスト。
// リクエストごとに新規生成され、永続化されない。
// ハンドラーが呼び出し元の身元を観測する唯一のチャネル。
// 未認証の場合はSession・UserともにnilのままでOK（公開プロシージャ用）。
type Context struct {
	Session *model.Session
	User    *model.User
}

// SessionReader はセッション解決に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionReader interface {
	GetSession(ctx context.Context, credential string) (*model.Session, *model.User, error)
}

// ContextBuilder はリクエストヘッダーから認可コンテキストを構築する。
type ContextBuilder struct {
	sessions SessionReader
}

// NewContextBuilder はContextBuilderを生成する。
func NewContextBuilder(sessions SessionReader) *ContextBuilder {
	return &ContextBuilder{sessions: sessions}
}

// Build はヘッダーから認可コンテキストを解決する。決して失敗しない。
// セッションストアへの到達失敗はソフトエラーとしてログに記録し、
// 未認証コンテキストとして処理を続行する（認証失敗でリクエスト処理を
// 落とさない）。期限切れ・不正なセッションも未認証として扱う。
func (b *ContextBuilder) Build(ctx context.Context, header http.Header) *Context {
	credential := extractCredential(header)
	if credential == "" {
		return &Context{}
	}

	session, user, err := b.sessions.GetSession(ctx, credential)
	if err != nil {
		slog.Error("session resolution failed, treating request as anonymous",
			slog.String("error", err.Error()),
		)
		return &Context{}
	}

	return &Context{Session: session, User: user}
}

// extractCredential はヘッダーからセッション資格情報を取り出す。
// Cookieを優先し、なければAuthorization: Bearerを見る。
func extractCredential(header http.Header) string {
	req := &http.Request{Header: header}
	if cookie, err := req.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authz := header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}

	return ""
}
