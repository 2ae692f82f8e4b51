package todo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/rpc"
)

// テキスト・説明文の文字数制約。バリデーション境界で強制する。
const (
	minTextLength        = 3
	maxTextLength        = 250
	maxDescriptionLength = 1000
)

// --- 入力契約 ---

// EmptyInput は入力を取らないプロシージャの入力契約。
type EmptyInput struct{}

// Validate は常にnilを返す。
func (EmptyInput) Validate() *rpc.Error { return nil }

// IDInput はIDのみを取るプロシージャの入力契約。
type IDInput struct {
	ID string `json:"id"`
}

// Validate はidの存在を検証する。id未指定は「見つからない」とは
// 区別されるBAD_REQUEST。
func (in IDInput) Validate() *rpc.Error {
	if in.ID == "" {
		return rpc.NewValidationError(map[string][]string{
			"id": {"idを指定してください"},
		})
	}
	return nil
}

// CreateInput はtodo.createの入力契約。
// 所有ユーザーIDのフィールドは意図的に存在しない。所有者は常に
// 認可コンテキストから刻印され、クライアント指定の値は破棄される。
type CreateInput struct {
	Text        string            `json:"text"`
	Description *string           `json:"description,omitempty"`
	Status      *model.TodoStatus `json:"status,omitempty"`
}

// Validate は文字数制約とステータスの妥当性を検証する。
// 違反ごとにフィールド単位のメッセージを保持する。
func (in CreateInput) Validate() *rpc.Error {
	fields := make(map[string][]string)

	validateText(in.Text, fields)
	if in.Description != nil {
		validateDescription(*in.Description, fields)
	}
	if in.Status != nil && !in.Status.IsValid() {
		fields["status"] = append(fields["status"], statusMessage(*in.Status))
	}

	if len(fields) > 0 {
		return rpc.NewValidationError(fields)
	}
	return nil
}

// UpdateInput はtodo.updateの入力契約。id以外はすべて任意で、
// 指定されたフィールドだけが更新される。
type UpdateInput struct {
	ID          string            `json:"id"`
	Text        *string           `json:"text,omitempty"`
	Description *string           `json:"description,omitempty"`
	Active      *bool             `json:"active,omitempty"`
	Status      *model.TodoStatus `json:"status,omitempty"`
}

// Validate はidの存在と、指定されたフィールドの制約を検証する。
func (in UpdateInput) Validate() *rpc.Error {
	fields := make(map[string][]string)

	if in.ID == "" {
		fields["id"] = append(fields["id"], "idを指定してください")
	}
	if in.Text != nil {
		validateText(*in.Text, fields)
	}
	if in.Description != nil {
		validateDescription(*in.Description, fields)
	}
	if in.Status != nil && !in.Status.IsValid() {
		fields["status"] = append(fields["status"], statusMessage(*in.Status))
	}

	if len(fields) > 0 {
		return rpc.NewValidationError(fields)
	}
	return nil
}

// validateText はtextの文字数制約（3〜250文字）を検証する。
func validateText(text string, fields map[string][]string) {
	length := len([]rune(text))
	if length < minTextLength {
		fields["text"] = append(fields["text"], fmt.Sprintf("textは%d文字以上で入力してください", minTextLength))
	}
	if length > maxTextLength {
		fields["text"] = append(fields["text"], fmt.Sprintf("textは%d文字以内で入力してください", maxTextLength))
	}
}

// validateDescription はdescriptionの文字数制約（1000文字以内）を検証する。
func validateDescription(description string, fields map[string][]string) {
	if len([]rune(description)) > maxDescriptionLength {
		fields["description"] = append(fields["description"], fmt.Sprintf("descriptionは%d文字以内で入力してください", maxDescriptionLength))
	}
}

func statusMessage(status model.TodoStatus) string {
	return fmt.Sprintf("statusが不正です: %s（NOT_STARTED、IN_PROGRESS、COMPLETEDのいずれかを指定してください）", status)
}

// --- レスポンス型 ---

// TodoView はtodo.allが返すサマリー。所有者IDは含めない。
type TodoView struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	Description *string          `json:"description"`
	Status      model.TodoStatus `json:"status"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TodoRecord はmutationが返す行全体。
type TodoRecord struct {
	TodoView
	UserID string `json:"userId"`
}

// TodoDetail はtodo.byIdが返す詳細。所有ユーザーの公開フィールドを結合する。
type TodoDetail struct {
	TodoView
	Author model.TodoAuthor `json:"author"`
}

func toView(t *model.Todo) TodoView {
	return TodoView{
		ID:          t.ID,
		Text:        t.Text,
		Description: t.Description,
		Status:      t.Status,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toRecord(t *model.Todo) *TodoRecord {
	return &TodoRecord{
		TodoView: toView(t),
		UserID:   t.UserID,
	}
}

// --- プロシージャ登録 ---

// プロシージャ名。クライアントプロキシと共有する。
const (
	ProcAll    = "todo.all"
	ProcByID   = "todo.byId"
	ProcCreate = "todo.create"
	ProcUpdate = "todo.update"
	ProcDelete = "todo.delete"
)

// Register はTodoプロシージャをルーターに登録する。
// サーバー側でプロシージャを追加すれば、クライアントプロキシは
// 同じ型を参照するため別途スタブの保守は不要。
func Register(router *rpc.Router, svc *Service) {
	router.Register(rpc.ProtectedQuery(ProcAll, svc.handleAll))
	router.Register(rpc.PublicQuery(ProcByID, svc.handleByID))
	router.Register(rpc.ProtectedMutation(ProcCreate, svc.handleCreate))
	router.Register(rpc.ProtectedMutation(ProcUpdate, svc.handleUpdate))
	router.Register(rpc.ProtectedMutation(ProcDelete, svc.handleDelete))
}

// handleAll は全Todoを作成日時の降順で返す。ページネーションは行わない。
func (s *Service) handleAll(ctx context.Context, _ *rpc.Context, _ EmptyInput) ([]TodoView, *rpc.Error) {
	todos, err := s.ListAll(ctx)
	if err != nil {
		slog.Error("failed to list todos", slog.String("error", err.Error()))
		return nil, rpc.NewInternal()
	}

	views := make([]TodoView, 0, len(todos))
	for i := range todos {
		views = append(views, toView(&todos[i]))
	}
	return views, nil
}

// handleByID は指定IDのTodoを返す。不在はNOT_FOUND（入力不正とは別種別）。
func (s *Service) handleByID(ctx context.Context, _ *rpc.Context, in IDInput) (*TodoDetail, *rpc.Error) {
	row, err := s.GetByID(ctx, in.ID)
	if err != nil {
		slog.Error("failed to get todo", slog.String("error", err.Error()))
		return nil, rpc.NewInternal()
	}
	if row == nil {
		return nil, rpc.NewNotFound(fmt.Sprintf("指定されたTodoが見つかりません: %s", in.ID))
	}

	return &TodoDetail{
		TodoView: toView(&row.Todo),
		Author:   row.Author,
	}, nil
}

// handleCreate はTodoを作成する。所有者は認可コンテキストのユーザー。
func (s *Service) handleCreate(ctx context.Context, rc *rpc.Context, in CreateInput) (*TodoRecord, *rpc.Error) {
	created, err := s.Create(ctx, rc.User.ID, in)
	if err != nil {
		slog.Error("failed to create todo", slog.String("error", err.Error()))
		return nil, rpc.NewInternal()
	}
	return toRecord(created), nil
}

// handleUpdate はTodoを部分更新する。不在の場合はnull（エラーにしない）を
// 返すため、呼び出し側は結果の有無を確認すること。
func (s *Service) handleUpdate(ctx context.Context, _ *rpc.Context, in UpdateInput) (*TodoRecord, *rpc.Error) {
	updated, err := s.Update(ctx, in)
	if err != nil {
		slog.Error("failed to update todo", slog.String("error", err.Error()))
		return nil, rpc.NewInternal()
	}
	if updated == nil {
		return nil, nil
	}
	return toRecord(updated), nil
}

// handleDelete はTodoを削除する。不在の場合はnullを返す（エラーにしない）。
func (s *Service) handleDelete(ctx context.Context, _ *rpc.Context, in IDInput) (*TodoRecord, *rpc.Error) {
	deleted, err := s.Delete(ctx, in.ID)
	if err != nil {
		slog.Error("failed to delete todo", slog.String("error", err.Error()))
		return nil, rpc.NewInternal()
	}
	if deleted == nil {
		return nil, nil
	}
	return toRecord(deleted), nil
}
