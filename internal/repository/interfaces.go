// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/taskdeck/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithAccount はユーザーとaccountを同一トランザクションで作成する。
	CreateWithAccount(ctx context.Context, user *model.User, account *model.Account) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するaccounts、sessions、todosはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// AccountRepository は認証手段の永続化インターフェース。
type AccountRepository interface {
	// FindByUserAndProvider はユーザーIDとproviderでaccountを検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndProvider(ctx context.Context, userID, provider string) (*model.Account, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TodoRepository はTodoデータの永続化インターフェース。
type TodoRepository interface {
	// Create はTodoを作成し、作成された行を返す。
	Create(ctx context.Context, todo *model.Todo) (*model.Todo, error)

	// FindByID は指定IDのTodoを所有ユーザーの公開フィールド付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TodoWithAuthor, error)

	// ListAll は全Todoをcreated_at降順で返す。ページネーションは行わない。
	ListAll(ctx context.Context) ([]model.Todo, error)

	// Update は指定IDのTodoを部分更新し、更新後の行を返す。
	// nilフィールドは変更しない。行が存在しない場合はnilを返す（エラーにしない）。
	Update(ctx context.Context, id string, update model.TodoUpdate) (*model.Todo, error)

	// Delete は指定IDのTodoを削除し、削除された行を返す。
	// 行が存在しない場合はnilを返す（エラーにしない）。
	Delete(ctx context.Context, id string) (*model.Todo, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
