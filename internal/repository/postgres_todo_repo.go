package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/taskdeck/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTodoリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// todoColumns はtodosテーブルのSELECT対象カラム。
const todoColumns = `id, text, description, active, status, user_id, created_at, updated_at`

// Create はTodoを作成し、作成された行を返す。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	created := &model.Todo{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todos (id, text, description, active, status, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+todoColumns,
		todo.ID, todo.Text, todo.Description, todo.Active, todo.Status, todo.UserID, todo.CreatedAt, todo.UpdatedAt,
	).Scan(&created.ID, &created.Text, &created.Description, &created.Active, &created.Status, &created.UserID, &created.CreatedAt, &created.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create todo: %w", err)
	}

	return created, nil
}

// FindByID は指定IDのTodoを所有ユーザーの公開フィールド付きで取得する。
// 見つからない場合はnilを返す。uuid形式でないIDは存在しないものとして扱う。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id string) (*model.TodoWithAuthor, error) {
	if !isUUID(id) {
		return nil, nil
	}

	row := &model.TodoWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.text, t.description, t.active, t.status, t.user_id, t.created_at, t.updated_at,
		        u.id, u.name
		 FROM todos t
		 INNER JOIN users u ON u.id = t.user_id
		 WHERE t.id = $1`,
		id,
	).Scan(&row.ID, &row.Text, &row.Description, &row.Active, &row.Status, &row.UserID, &row.CreatedAt, &row.UpdatedAt,
		&row.Author.ID, &row.Author.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo by ID: %w", err)
	}

	return row, nil
}

// ListAll は全Todoをcreated_at降順で返す。
func (r *PostgresTodoRepo) ListAll(ctx context.Context) ([]model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+`
		 FROM todos
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Description, &t.Active, &t.Status, &t.UserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}

	return todos, nil
}

// Update は指定IDのTodoを部分更新し、更新後の行を返す。
// nilフィールドは変更しない。行が存在しない場合はnilを返す（エラーにしない）。
func (r *PostgresTodoRepo) Update(ctx context.Context, id string, update model.TodoUpdate) (*model.Todo, error) {
	if !isUUID(id) {
		return nil, nil
	}

	sets := []string{"updated_at = now()"}
	args := []interface{}{}
	idx := 1

	if update.Text != nil {
		sets = append(sets, fmt.Sprintf("text = $%d", idx))
		args = append(args, *update.Text)
		idx++
	}
	if update.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, *update.Description)
		idx++
	}
	if update.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", idx))
		args = append(args, *update.Active)
		idx++
	}
	if update.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *update.Status)
		idx++
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE todos SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idx, todoColumns,
	)

	updated := &model.Todo{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&updated.ID, &updated.Text, &updated.Description, &updated.Active, &updated.Status, &updated.UserID, &updated.CreatedAt, &updated.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}

	return updated, nil
}

// Delete は指定IDのTodoを削除し、削除された行を返す。
// 行が存在しない場合はnilを返す（エラーにしない）。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id string) (*model.Todo, error) {
	if !isUUID(id) {
		return nil, nil
	}

	deleted := &model.Todo{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM todos WHERE id = $1 RETURNING `+todoColumns,
		id,
	).Scan(&deleted.ID, &deleted.Text, &deleted.Description, &deleted.Active, &deleted.Status, &deleted.UserID, &deleted.CreatedAt, &deleted.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete todo: %w", err)
	}

	return deleted, nil
}

// isUUID はidがuuid形式かどうかを返す。
// todosのPKはuuid型のため、形式不正のIDをそのままクエリすると
// PostgreSQLが構文エラーを返す。形式不正は「存在しない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
