// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/middleware"
	"github.com/hitoshi/taskdeck/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*model.Session, *model.User, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	SignOut(ctx context.Context, credential string) error
	GetSession(ctx context.Context, credential string) (*model.Session, *model.User, error)
	CookieValue(session *model.Session) string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール+パスワード認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// signUpRequest はサインアップのリクエストボディ。
type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
}

// signInRequest はサインインのリクエストボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionBody はレスポンスに含めるセッション情報。IDは含めない。
type sessionBody struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// sessionResponse はセッションを返すエンドポイントの共通レスポンス。
type sessionResponse struct {
	User    model.PublicUser `json:"user"`
	Session sessionBody      `json:"session"`
}

// SignUp は新規ユーザーを登録し、セッションCookieを設定する。
// POST /api/auth/sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignUpInputError("リクエストボディのJSON解析に失敗しました"))
		return
	}

	session, user, err := h.service.SignUp(r.Context(), auth.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Image:    req.Image,
	})
	if err != nil {
		h.writeAuthError(w, err, "sign-up failed")
		return
	}

	h.setSessionCookie(w, session)
	writeSessionResponse(w, user, session)
}

// SignIn は認証情報を検証し、セッションCookieを設定する。
// POST /api/auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCredentialsError())
		return
	}

	session, user, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err, "sign-in failed")
		return
	}

	h.setSessionCookie(w, session)
	writeSessionResponse(w, user, session)
}

// SignOut はセッションを破棄し、Cookieをクリアする。
// セッションCookieがない場合でも成功として扱う（冪等）。
// POST /api/auth/sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// サインアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// GetSession は現在のセッションとユーザーを返す。
// 未認証の場合はエラーではなくnullを返す。
// GET /api/auth/get-session
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		w.Write([]byte("null"))
		return
	}

	session, user, err := h.service.GetSession(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if session == nil {
		w.Write([]byte("null"))
		return
	}

	writeSessionResponse(w, user, session)
}

// writeAuthError はサービス層のエラーをHTTPステータスにマッピングして書き込む。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error, logMessage string) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error(logMessage, slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	status := http.StatusBadRequest
	switch apiErr.Code {
	case model.ErrCodeEmailTaken:
		status = http.StatusConflict
	case model.ErrCodeInvalidCredentials:
		status = http.StatusUnauthorized
	}

	middleware.WriteErrorResponse(w, status, apiErr)
}

// setSessionCookie は署名付きセッションCookieを設定する。
// クロスオリジンのフロントエンドからcredentials付きで送信されるため、
// Secureな環境ではSameSite=Noneを使用する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    h.service.CookieValue(session),
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: h.cookieSameSite(),
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: h.cookieSameSite(),
	})
}

// cookieSameSite はCookieのSameSite属性を決定する。
// SameSite=NoneはSecureが必須のため、非Secure環境ではLaxに落とす。
func (h *AuthHandler) cookieSameSite() http.SameSite {
	if h.config.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// writeSessionResponse はユーザーとセッションの組をJSONで書き込む。
func writeSessionResponse(w http.ResponseWriter, user *model.User, session *model.Session) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionResponse{
		User: user.Public(),
		Session: sessionBody{
			ExpiresAt: session.ExpiresAt,
		},
	})
}
