// Package todo はTodoのバリデーションとCRUDビジネスロジックを提供する。
package todo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/repository"
	"github.com/hitoshi/taskdeck/internal/security"
)

// Service はTodoに関するビジネスロジックを提供する。
type Service struct {
	repo      repository.TodoRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(repo repository.TodoRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
	}
}

// ListAll は全Todoを作成日時の降順で返す。
func (s *Service) ListAll(ctx context.Context) ([]model.Todo, error) {
	return s.repo.ListAll(ctx)
}

// GetByID は指定IDのTodoを所有ユーザーの公開フィールド付きで返す。
// 見つからない場合はnilを返す。
func (s *Service) GetByID(ctx context.Context, id string) (*model.TodoWithAuthor, error) {
	return s.repo.FindByID(ctx, id)
}

// Create はTodoを作成する。所有ユーザーIDは必ず認可コンテキスト由来の
// ownerIDを使用する（入力契約に所有者フィールドは存在せず、クライアントが
// 送ってきても境界で破棄される）。テキストと説明文は永続化前に
// サニタイズする。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Todo, error) {
	now := time.Now()

	status := model.TodoStatusNotStarted
	if in.Status != nil {
		status = *in.Status
	}

	todo := &model.Todo{
		ID:        uuid.New().String(),
		Text:      s.sanitizer.Sanitize(in.Text),
		Active:    true,
		Status:    status,
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != nil {
		desc := s.sanitizer.Sanitize(*in.Description)
		todo.Description = &desc
	}

	return s.repo.Create(ctx, todo)
}

// Update は指定IDのTodoを部分更新する。指定されたフィールドだけを
// 永続化し、行が存在しない場合はnilを返す（呼び出し側は不在を
// 自分で判定する契約）。
func (s *Service) Update(ctx context.Context, in UpdateInput) (*model.Todo, error) {
	update := model.TodoUpdate{
		Active: in.Active,
		Status: in.Status,
	}
	if in.Text != nil {
		text := s.sanitizer.Sanitize(*in.Text)
		update.Text = &text
	}
	if in.Description != nil {
		desc := s.sanitizer.Sanitize(*in.Description)
		update.Description = &desc
	}

	return s.repo.Update(ctx, in.ID, update)
}

// Delete は指定IDのTodoを削除し、削除された行を返す。
// 行が存在しない場合はnilを返す（エラーにしない）。
func (s *Service) Delete(ctx context.Context, id string) (*model.Todo, error) {
	return s.repo.Delete(ctx, id)
}
