// Package auth はメール+パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
)

// SessionCookieName はセッションCookieの名前。
// 値は署名付きセッションID（"<sessionID>.<hex署名>"）。
const SessionCookieName = "taskdeck_session"

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// AvatarGuard はアバターURL検証に必要なインターフェース。
// security.AvatarGuardServiceの部分集合として定義する。
type AvatarGuard interface {
	ValidateURL(rawURL string) error
	Probe(rawURL string) error
}

// Metrics は認証サービスが記録するメトリクスのインターフェース。
// nilを渡すと記録をスキップする。
type Metrics interface {
	RecordSessionIssued()
	RecordSessionCacheHit()
	RecordSessionCacheMiss()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AuthSecret      string        // セッションCookie署名用シークレット
	SessionMaxAge   int           // セッション有効期間（秒）
	SessionCacheTTL time.Duration // セッション読み取りキャッシュのTTL
	AvatarProbe     bool          // サインアップ時にアバターURLへ到達性チェックを行うか
}

// SignUpInput はサインアップの入力。
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Image    string // 任意のアバター画像URL
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
	avatarGuard AvatarGuard
	cache       *sessionCache
	config      ServiceConfig
	metrics     Metrics
}

// NewService はServiceを生成する。metricsにはnilを渡せる。
func NewService(
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	avatarGuard AvatarGuard,
	config ServiceConfig,
	metrics Metrics,
) *Service {
	return &Service{
		userRepo:    userRepo,
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		avatarGuard: avatarGuard,
		cache:       newSessionCache(config.SessionCacheTTL),
		config:      config,
		metrics:     metrics,
	}
}

// Close はサービスが保持するバックグラウンド処理を停止する。
func (s *Service) Close() {
	s.cache.Stop()
}

// SignUp は新規ユーザーを登録し、セッションを発行する。
// パスワードはbcryptでハッシュ化して保存する。
// メールアドレス重複時はmodel.APIErrorを返す。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*model.Session, *model.User, error) {
	if err := validateSignUpInput(in); err != nil {
		return nil, nil, err
	}

	if in.Image != "" {
		if err := s.avatarGuard.ValidateURL(in.Image); err != nil {
			return nil, nil, model.NewInvalidAvatarURLError(err.Error())
		}
		if s.config.AvatarProbe {
			if err := s.avatarGuard.Probe(in.Image); err != nil {
				return nil, nil, model.NewInvalidAvatarURLError(err.Error())
			}
		}
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailTakenError(email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		Name:          strings.TrimSpace(in.Name),
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Image != "" {
		image := in.Image
		user.Image = &image
	}
	account := &model.Account{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Provider:     model.ProviderCredential,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	if err := s.userRepo.CreateWithAccount(ctx, user, account); err != nil {
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
	)

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザー不明とパスワード不一致はどちらも同一のエラーを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	account, err := s.accountRepo.FindByUserAndProvider(ctx, user.ID, model.ProviderCredential)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
	)

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// SignOut は署名付きCookie値からセッションを特定し破棄する。
// キャッシュエントリも同時に無効化する。
// Cookie値が不正な場合は何もせず正常終了する（冪等）。
func (s *Service) SignOut(ctx context.Context, credential string) error {
	sessionID, ok := verifySignedSessionID(credential, s.config.AuthSecret)
	if !ok {
		return nil
	}

	s.cache.Delete(sessionID)

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetSession は署名付きCookie値からセッション/ユーザーの組を解決する。
// 署名不正・期限切れ・不在はいずれも(nil, nil, nil)として扱う。
// TTL付きキャッシュを前置してストア読み取りを抑える。
func (s *Service) GetSession(ctx context.Context, credential string) (*model.Session, *model.User, error) {
	sessionID, ok := verifySignedSessionID(credential, s.config.AuthSecret)
	if !ok {
		return nil, nil, nil
	}

	if session, user, hit := s.cache.Get(sessionID); hit {
		s.recordCacheHit()
		return session, user, nil
	}
	s.recordCacheMiss()

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session user: %w", err)
	}
	if user == nil {
		// セッションは残っているがユーザーが削除済み。未認証として扱う。
		return nil, nil, nil
	}

	s.cache.Set(sessionID, session, user)
	return session, user, nil
}

// CookieValue はセッションをCookieに載せる署名付き値に変換する。
func (s *Service) CookieValue(session *model.Session) string {
	return signSessionID(session.ID, s.config.AuthSecret)
}

// issueSession は新しいセッションを発行して永続化する。
func (s *Service) issueSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionIssued()
	}

	return session, nil
}

func (s *Service) recordCacheHit() {
	if s.metrics != nil {
		s.metrics.RecordSessionCacheHit()
	}
}

func (s *Service) recordCacheMiss() {
	if s.metrics != nil {
		s.metrics.RecordSessionCacheMiss()
	}
}

// validateSignUpInput はサインアップ入力の形式を検証する。
func validateSignUpInput(in SignUpInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return model.NewInvalidSignUpInputError("名前が空です")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return model.NewInvalidSignUpInputError("メールアドレスの形式が不正です")
	}
	if len(in.Password) < minPasswordLength {
		return model.NewInvalidSignUpInputError(fmt.Sprintf("パスワードは%d文字以上必要です", minPasswordLength))
	}
	return nil
}
