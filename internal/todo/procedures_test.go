package todo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskdeck/internal/auth"
	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/rpc"
)

// --- モック定義 ---

type mockTodoRepository struct {
	createFn   func(ctx context.Context, todo *model.Todo) (*model.Todo, error)
	findByIDFn func(ctx context.Context, id string) (*model.TodoWithAuthor, error)
	listAllFn  func(ctx context.Context) ([]model.Todo, error)
	updateFn   func(ctx context.Context, id string, update model.TodoUpdate) (*model.Todo, error)
	deleteFn   func(ctx context.Context, id string) (*model.Todo, error)
}

func (m *mockTodoRepository) Create(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	if m.createFn != nil {
		return m.createFn(ctx, todo)
	}
	return todo, nil
}

func (m *mockTodoRepository) FindByID(ctx context.Context, id string) (*model.TodoWithAuthor, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTodoRepository) ListAll(ctx context.Context) ([]model.Todo, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockTodoRepository) Update(ctx context.Context, id string, update model.TodoUpdate) (*model.Todo, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, update)
	}
	return nil, nil
}

func (m *mockTodoRepository) Delete(ctx context.Context, id string) (*model.Todo, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil, nil
}

// passthroughSanitizer はトリムのみを行うテスト用サニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(raw)
}

type mockSessionReader struct {
	user *model.User
}

func (m *mockSessionReader) GetSession(ctx context.Context, credential string) (*model.Session, *model.User, error) {
	if m.user == nil {
		return nil, nil, nil
	}
	return &model.Session{ID: "s1", UserID: m.user.ID, ExpiresAt: time.Now().Add(time.Hour)}, m.user, nil
}

// --- ヘルパー ---

func newTestHandler(repo *mockTodoRepository, user *model.User) http.Handler {
	svc := NewService(repo, passthroughSanitizer{})
	router := rpc.NewRouter(rpc.NewContextBuilder(&mockSessionReader{user: user}), nil)
	Register(router, svc)

	r := chi.NewRouter()
	r.Get("/api/rpc/{procedure}", router.ServeHTTP)
	r.Post("/api/rpc/{procedure}", router.ServeHTTP)
	return r
}

func doQuery(t *testing.T, handler http.Handler, procedure string, input interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := rpc.Encode(input)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/rpc/"+procedure+"?input="+url.QueryEscape(string(encoded)), nil)
	if authed {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "signed"})
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func doMutation(t *testing.T, handler http.Handler, procedure string, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/rpc/"+procedure, strings.NewReader(body))
	if authed {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "signed"})
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeResult[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env rpc.ResultEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if env.Error != nil {
		t.Fatalf("unexpected error response: %+v", env.Error)
	}
	var out T
	if err := rpc.Decode(env.Result.Data, &out); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *rpc.ErrorShape {
	t.Helper()
	var env rpc.ResultEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if env.Error == nil {
		t.Fatalf("expected error response, got %s", w.Body.String())
	}
	return env.Error
}

func strPtr(s string) *string { return &s }

// --- 入力バリデーション ---

func TestCreateInput_Validate(t *testing.T) {
	longText := strings.Repeat("あ", 251)
	longDescription := strings.Repeat("a", 1001)
	badStatus := model.TodoStatus("DONE")

	tests := []struct {
		name      string
		input     CreateInput
		wantField string
	}{
		{"text too short", CreateInput{Text: "ab"}, "text"},
		{"text too long", CreateInput{Text: longText}, "text"},
		{"description too long", CreateInput{Text: "valid text", Description: strPtr(longDescription)}, "description"},
		{"invalid status", CreateInput{Text: "valid text", Status: &badStatus}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if _, ok := err.FieldErrors[tt.wantField]; !ok {
				t.Errorf("fieldErrors = %v, want field %q", err.FieldErrors, tt.wantField)
			}
		})
	}
}

// 境界値（3文字・250文字）は許容されることを検証
func TestCreateInput_Validate_Boundaries(t *testing.T) {
	for _, text := range []string{"abc", "三文字だ", strings.Repeat("あ", 250)} {
		in := CreateInput{Text: text}
		if err := in.Validate(); err != nil {
			t.Errorf("Validate(%d runes) = %v, want nil", len([]rune(text)), err)
		}
	}
}

func TestUpdateInput_Validate(t *testing.T) {
	if err := (UpdateInput{}).Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	in := UpdateInput{ID: "some-id", Text: strPtr("ab")}
	err := in.Validate()
	if err == nil {
		t.Fatal("expected validation error for short text")
	}
	if _, ok := err.FieldErrors["text"]; !ok {
		t.Errorf("fieldErrors = %v, want field text", err.FieldErrors)
	}

	// idだけの更新は許容される（何も変更しない更新）
	if err := (UpdateInput{ID: "some-id"}).Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestIDInput_Validate(t *testing.T) {
	if err := (IDInput{}).Validate(); err == nil {
		t.Error("expected error for missing id")
	}
	if err := (IDInput{ID: "t1"}).Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

// --- todo.all ---

func TestTodoAll_RequiresAuthentication(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, nil)

	w := doQuery(t, handler, ProcAll, EmptyInput{}, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestTodoAll_ReturnsViewsWithoutOwnerID(t *testing.T) {
	now := time.Now()
	repo := &mockTodoRepository{
		listAllFn: func(ctx context.Context) ([]model.Todo, error) {
			return []model.Todo{
				{ID: "t3", Text: "newest", Status: model.TodoStatusNotStarted, UserID: "u2", CreatedAt: now},
				{ID: "t2", Text: "middle", Status: model.TodoStatusInProgress, UserID: "u1", CreatedAt: now.Add(-time.Hour)},
				{ID: "t1", Text: "oldest", Status: model.TodoStatusCompleted, UserID: "u1", CreatedAt: now.Add(-2 * time.Hour)},
			}, nil
		},
	}
	handler := newTestHandler(repo, &model.User{ID: "u1"})

	w := doQuery(t, handler, ProcAll, EmptyInput{}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	views := decodeResult[[]TodoView](t, w)
	if len(views) != 3 {
		t.Fatalf("len(views) = %d, want 3", len(views))
	}
	// リポジトリの並び（created_at降順）がそのまま保たれる
	for i, want := range []string{"t3", "t2", "t1"} {
		if views[i].ID != want {
			t.Errorf("views[%d].ID = %q, want %q", i, views[i].ID, want)
		}
	}

	// レスポンスJSONにuserIdが含まれないことを検証
	if strings.Contains(w.Body.String(), "userId") {
		t.Error("todo.all response must not expose owner IDs")
	}
}

// --- todo.byId ---

func TestTodoByID_PublicAndFound(t *testing.T) {
	repo := &mockTodoRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.TodoWithAuthor, error) {
			return &model.TodoWithAuthor{
				Todo:   model.Todo{ID: id, Text: "found", Status: model.TodoStatusNotStarted, UserID: "u1"},
				Author: model.TodoAuthor{ID: "u1", Name: "John Doe"},
			}, nil
		},
	}
	// 未認証でも呼び出せる公開query
	handler := newTestHandler(repo, nil)

	w := doQuery(t, handler, ProcByID, IDInput{ID: "t1"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	detail := decodeResult[*TodoDetail](t, w)
	if detail.ID != "t1" || detail.Author.Name != "John Doe" {
		t.Errorf("detail = %+v", detail)
	}
}

// 不在のTodoはNOT_FOUND（入力不正のBAD_REQUESTとは別種別）で返ることを検証
func TestTodoByID_NotFound(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, nil)

	w := doQuery(t, handler, ProcByID, IDInput{ID: "missing-id"}, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	shape := decodeError(t, w)
	if shape.Code != string(rpc.CodeNotFound) {
		t.Errorf("code = %q, want NOT_FOUND", shape.Code)
	}
	if !strings.Contains(shape.Message, "missing-id") {
		t.Errorf("message %q should name the missing id", shape.Message)
	}
}

func TestTodoByID_MissingID_ReturnsBadRequest(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, nil)

	w := doQuery(t, handler, ProcByID, IDInput{}, false)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	shape := decodeError(t, w)
	if shape.Code != string(rpc.CodeBadRequest) {
		t.Errorf("code = %q, want BAD_REQUEST", shape.Code)
	}
}

// --- todo.create ---

// 所有者は常にセッションのユーザーになり、クライアントが送った
// userIdフィールドは入力契約に存在しないため破棄されることを検証
func TestTodoCreate_OwnerComesFromSession(t *testing.T) {
	var created *model.Todo
	repo := &mockTodoRepository{
		createFn: func(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
			created = todo
			return todo, nil
		},
	}
	handler := newTestHandler(repo, &model.User{ID: "u1"})

	body := `{"json":{"text":"my new todo","userId":"attacker-chosen-id"}}`
	w := doMutation(t, handler, ProcCreate, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if created.UserID != "u1" {
		t.Errorf("owner = %q, want session user u1", created.UserID)
	}

	record := decodeResult[*TodoRecord](t, w)
	if record.UserID != "u1" {
		t.Errorf("record.UserID = %q, want u1", record.UserID)
	}
}

func TestTodoCreate_Defaults(t *testing.T) {
	var created *model.Todo
	repo := &mockTodoRepository{
		createFn: func(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
			created = todo
			return todo, nil
		},
	}
	handler := newTestHandler(repo, &model.User{ID: "u1"})

	w := doMutation(t, handler, ProcCreate, `{"json":{"text":"minimal todo"}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if created.Status != model.TodoStatusNotStarted {
		t.Errorf("status = %q, want NOT_STARTED", created.Status)
	}
	if !created.Active {
		t.Error("new todo must be active")
	}
	if created.Description != nil {
		t.Errorf("description = %v, want nil", created.Description)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestTodoCreate_RequiresAuthentication(t *testing.T) {
	repo := &mockTodoRepository{
		createFn: func(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
			t.Error("repository must not be reached for unauthenticated create")
			return todo, nil
		},
	}
	handler := newTestHandler(repo, nil)

	w := doMutation(t, handler, ProcCreate, `{"json":{"text":"no auth"}}`, false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestTodoCreate_ValidationErrorNamesField(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, &model.User{ID: "u1"})

	w := doMutation(t, handler, ProcCreate, `{"json":{"text":"ab"}}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	shape := decodeError(t, w)
	got := shape.Data.FieldErrors["text"]
	if len(got) != 1 || got[0] != "textは3文字以上で入力してください" {
		t.Errorf("fieldErrors[text] = %v", got)
	}
}

// --- todo.update ---

func TestTodoUpdate_PartialFields(t *testing.T) {
	var gotID string
	var gotUpdate model.TodoUpdate
	repo := &mockTodoRepository{
		updateFn: func(ctx context.Context, id string, update model.TodoUpdate) (*model.Todo, error) {
			gotID = id
			gotUpdate = update
			return &model.Todo{ID: id, Text: "updated text", Status: model.TodoStatusInProgress, UserID: "u1"}, nil
		},
	}
	handler := newTestHandler(repo, &model.User{ID: "u1"})

	body := `{"json":{"id":"t1","text":"updated text","status":"IN_PROGRESS"}}`
	w := doMutation(t, handler, ProcUpdate, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if gotID != "t1" {
		t.Errorf("id = %q, want t1", gotID)
	}
	if gotUpdate.Text == nil || *gotUpdate.Text != "updated text" {
		t.Errorf("update.Text = %v", gotUpdate.Text)
	}
	if gotUpdate.Status == nil || *gotUpdate.Status != model.TodoStatusInProgress {
		t.Errorf("update.Status = %v", gotUpdate.Status)
	}
	// 指定しなかったフィールドはnilのまま
	if gotUpdate.Description != nil || gotUpdate.Active != nil {
		t.Errorf("unspecified fields must stay nil: %+v", gotUpdate)
	}
}

// 不在のTodoの更新はエラーではなくnullが返ることを検証
func TestTodoUpdate_Absent_ReturnsNull(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, &model.User{ID: "u1"})

	w := doMutation(t, handler, ProcUpdate, `{"json":{"id":"missing"}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	record := decodeResult[*TodoRecord](t, w)
	if record != nil {
		t.Errorf("record = %+v, want nil", record)
	}
}

// --- todo.delete ---

func TestTodoDelete_ReturnsDeletedRow(t *testing.T) {
	repo := &mockTodoRepository{
		deleteFn: func(ctx context.Context, id string) (*model.Todo, error) {
			return &model.Todo{ID: id, Text: "deleted todo", Status: model.TodoStatusCompleted, UserID: "u1"}, nil
		},
	}
	handler := newTestHandler(repo, &model.User{ID: "u1"})

	w := doMutation(t, handler, ProcDelete, `{"json":{"id":"t1"}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	record := decodeResult[*TodoRecord](t, w)
	if record == nil || record.ID != "t1" {
		t.Errorf("record = %+v, want ID t1", record)
	}
}

func TestTodoDelete_Absent_ReturnsNull(t *testing.T) {
	handler := newTestHandler(&mockTodoRepository{}, &model.User{ID: "u1"})

	w := doMutation(t, handler, ProcDelete, `{"json":{"id":"missing"}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	record := decodeResult[*TodoRecord](t, w)
	if record != nil {
		t.Errorf("record = %+v, want nil", record)
	}
}
