package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/taskdeck/internal/model"
)

// --- モック定義 ---

type mockUserRepository struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn       func(ctx context.Context, email string) (*model.User, error)
	createWithAccountFn func(ctx context.Context, user *model.User, account *model.Account) error
	deleteByIDFn        func(ctx context.Context, id string) error
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepository) CreateWithAccount(ctx context.Context, user *model.User, account *model.Account) error {
	if m.createWithAccountFn != nil {
		return m.createWithAccountFn(ctx, user, account)
	}
	return nil
}

func (m *mockUserRepository) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockAccountRepository struct {
	findByUserAndProviderFn func(ctx context.Context, userID, provider string) (*model.Account, error)
}

func (m *mockAccountRepository) FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Account, error) {
	if m.findByUserAndProviderFn != nil {
		return m.findByUserAndProviderFn(ctx, userID, provider)
	}
	return nil, nil
}

type mockSessionRepository struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepository) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepository) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockAvatarGuard struct {
	validateURLFn func(rawURL string) error
	probeFn       func(rawURL string) error
}

func (m *mockAvatarGuard) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

func (m *mockAvatarGuard) Probe(rawURL string) error {
	if m.probeFn != nil {
		return m.probeFn(rawURL)
	}
	return nil
}

// --- ヘルパー ---

func newTestService(t *testing.T, userRepo *mockUserRepository, accountRepo *mockAccountRepository, sessionRepo *mockSessionRepository) *Service {
	t.Helper()
	svc := NewService(userRepo, accountRepo, sessionRepo, &mockAvatarGuard{}, ServiceConfig{
		AuthSecret:      "test-secret",
		SessionMaxAge:   3600,
		SessionCacheTTL: time.Minute,
	}, nil)
	t.Cleanup(svc.Close)
	return svc
}

func validSignUpInput() SignUpInput {
	return SignUpInput{
		Name:     "Test User",
		Email:    "Test@Example.com",
		Password: "password123",
	}
}

// --- SignUp ---

func TestSignUp_Success(t *testing.T) {
	var createdUser *model.User
	var createdAccount *model.Account
	var createdSession *model.Session

	userRepo := &mockUserRepository{
		createWithAccountFn: func(ctx context.Context, user *model.User, account *model.Account) error {
			createdUser = user
			createdAccount = account
			return nil
		},
	}
	sessionRepo := &mockSessionRepository{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	svc := newTestService(t, userRepo, &mockAccountRepository{}, sessionRepo)

	session, user, err := svc.SignUp(context.Background(), validSignUpInput())
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	// メールアドレスは小文字に正規化される
	if createdUser.Email != "test@example.com" {
		t.Errorf("email = %q, want %q", createdUser.Email, "test@example.com")
	}
	if createdAccount.Provider != model.ProviderCredential {
		t.Errorf("provider = %q, want %q", createdAccount.Provider, model.ProviderCredential)
	}
	// パスワードは平文で保存されない
	if createdAccount.PasswordHash == "password123" {
		t.Error("password must not be stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(createdAccount.PasswordHash), []byte("password123")) != nil {
		t.Error("stored hash does not match the password")
	}
	if session == nil || createdSession == nil || session.UserID != user.ID {
		t.Errorf("session = %+v, user = %+v", session, user)
	}
}

func TestSignUp_EmailTaken(t *testing.T) {
	userRepo := &mockUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing", Email: email}, nil
		},
	}
	svc := newTestService(t, userRepo, &mockAccountRepository{}, &mockSessionRepository{})

	_, _, err := svc.SignUp(context.Background(), validSignUpInput())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("err = %v, want EMAIL_TAKEN", err)
	}
}

func TestSignUp_InputValidation(t *testing.T) {
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, &mockSessionRepository{})

	tests := []struct {
		name  string
		input SignUpInput
	}{
		{"empty name", SignUpInput{Name: " ", Email: "a@b.com", Password: "password123"}},
		{"invalid email", SignUpInput{Name: "A", Email: "not-an-email", Password: "password123"}},
		{"short password", SignUpInput{Name: "A", Email: "a@b.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SignUp(context.Background(), tt.input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidSignUpInput {
				t.Errorf("err = %v, want INVALID_SIGNUP_INPUT", err)
			}
		})
	}
}

func TestSignUp_InvalidAvatarURL(t *testing.T) {
	svc := NewService(&mockUserRepository{}, &mockAccountRepository{}, &mockSessionRepository{},
		&mockAvatarGuard{
			validateURLFn: func(rawURL string) error {
				return errors.New("blocked host")
			},
		},
		ServiceConfig{AuthSecret: "test-secret", SessionMaxAge: 3600, SessionCacheTTL: time.Minute}, nil)
	defer svc.Close()

	in := validSignUpInput()
	in.Image = "http://169.254.169.254/latest/meta-data"

	_, _, err := svc.SignUp(context.Background(), in)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAvatarURL {
		t.Errorf("err = %v, want INVALID_AVATAR_URL", err)
	}
}

// --- SignIn ---

func signInFixtures(password string) (*mockUserRepository, *mockAccountRepository) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	userRepo := &mockUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email == "user@example.com" {
				return &model.User{ID: "u1", Email: email}, nil
			}
			return nil, nil
		},
	}
	accountRepo := &mockAccountRepository{
		findByUserAndProviderFn: func(ctx context.Context, userID, provider string) (*model.Account, error) {
			return &model.Account{ID: "a1", UserID: userID, Provider: provider, PasswordHash: string(hash)}, nil
		},
	}
	return userRepo, accountRepo
}

func TestSignIn_Success(t *testing.T) {
	userRepo, accountRepo := signInFixtures("password123")
	svc := newTestService(t, userRepo, accountRepo, &mockSessionRepository{})

	session, user, err := svc.SignIn(context.Background(), "User@Example.com", "password123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.ID != "u1" || session.UserID != "u1" {
		t.Errorf("user = %+v, session = %+v", user, session)
	}
}

// ユーザー不明とパスワード不一致が同一エラーになることを検証（列挙攻撃対策）
func TestSignIn_InvalidCredentials(t *testing.T) {
	userRepo, accountRepo := signInFixtures("password123")
	svc := newTestService(t, userRepo, accountRepo, &mockSessionRepository{})

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown user", "nobody@example.com", "password123"},
		{"wrong password", "user@example.com", "wrong-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SignIn(context.Background(), tt.email, tt.password)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Errorf("err = %v, want INVALID_CREDENTIALS", err)
			}
		})
	}
}

// --- SignOut ---

func TestSignOut_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepository{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, sessionRepo)

	credential := signSessionID("session-1", "test-secret")
	if err := svc.SignOut(context.Background(), credential); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if deletedID != "session-1" {
		t.Errorf("deleted ID = %q, want %q", deletedID, "session-1")
	}
}

// 署名不正のCookie値ではストアに触れず正常終了することを検証（冪等）
func TestSignOut_InvalidCredential_Noop(t *testing.T) {
	sessionRepo := &mockSessionRepository{
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("session store must not be touched for invalid credential")
			return nil
		},
	}
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, sessionRepo)

	if err := svc.SignOut(context.Background(), "forged.deadbeef"); err != nil {
		t.Errorf("SignOut = %v, want nil", err)
	}
}

// --- GetSession ---

func TestGetSession_ResolvesAndCaches(t *testing.T) {
	findCalls := 0
	sessionRepo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			findCalls++
			return &model.Session{ID: id, UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Name: "Test User"}, nil
		},
	}
	svc := newTestService(t, userRepo, &mockAccountRepository{}, sessionRepo)

	credential := signSessionID("session-1", "test-secret")

	for i := 0; i < 3; i++ {
		session, user, err := svc.GetSession(context.Background(), credential)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if session == nil || user == nil || user.ID != "u1" {
			t.Fatalf("session = %+v, user = %+v", session, user)
		}
	}

	// 2回目以降はキャッシュから返る
	if findCalls != 1 {
		t.Errorf("store reads = %d, want 1", findCalls)
	}
}

func TestGetSession_ForgedCredential_ReturnsNil(t *testing.T) {
	sessionRepo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			t.Error("session store must not be queried for forged credential")
			return nil, nil
		},
	}
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, sessionRepo)

	session, user, err := svc.GetSession(context.Background(), "session-1.0000")
	if session != nil || user != nil || err != nil {
		t.Errorf("got (%+v, %+v, %v), want (nil, nil, nil)", session, user, err)
	}
}

// セッションは残っているがユーザーが削除済みの場合は未認証として扱う
func TestGetSession_DeletedUser_ReturnsNil(t *testing.T) {
	sessionRepo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "gone", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, sessionRepo)

	credential := signSessionID("session-1", "test-secret")
	session, user, err := svc.GetSession(context.Background(), credential)
	if session != nil || user != nil || err != nil {
		t.Errorf("got (%+v, %+v, %v), want (nil, nil, nil)", session, user, err)
	}
}

func TestGetSession_AfterSignOut_Misses(t *testing.T) {
	deleted := false
	sessionRepo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if deleted {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	userRepo := &mockUserRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := newTestService(t, userRepo, &mockAccountRepository{}, sessionRepo)

	credential := signSessionID("session-1", "test-secret")

	if _, user, _ := svc.GetSession(context.Background(), credential); user == nil {
		t.Fatal("expected authenticated session before sign-out")
	}

	if err := svc.SignOut(context.Background(), credential); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// キャッシュエントリも無効化されているため、ストアのnilが反映される
	session, user, err := svc.GetSession(context.Background(), credential)
	if session != nil || user != nil || err != nil {
		t.Errorf("got (%+v, %+v, %v) after sign-out, want (nil, nil, nil)", session, user, err)
	}
}

func TestCookieValue_VerifiableWithSecret(t *testing.T) {
	svc := newTestService(t, &mockUserRepository{}, &mockAccountRepository{}, &mockSessionRepository{})

	value := svc.CookieValue(&model.Session{ID: "session-9"})
	id, ok := verifySignedSessionID(value, "test-secret")
	if !ok || id != "session-9" {
		t.Errorf("verify(%q) = (%q, %v)", value, id, ok)
	}
}
