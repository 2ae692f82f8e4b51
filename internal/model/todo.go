// Package model はドメインモデルを定義する。
package model

import "time"

// TodoStatus はTodoの進行状態を表す。
type TodoStatus string

const (
	// TodoStatusNotStarted は未着手。新規作成時のデフォルト値。
	TodoStatusNotStarted TodoStatus = "NOT_STARTED"
	// TodoStatusInProgress は進行中。
	TodoStatusInProgress TodoStatus = "IN_PROGRESS"
	// TodoStatusCompleted は完了。
	TodoStatusCompleted TodoStatus = "COMPLETED"
)

// IsValid はTodoStatusが定義済みの値かどうかを返す。
func (s TodoStatus) IsValid() bool {
	switch s {
	case TodoStatusNotStarted, TodoStatusInProgress, TodoStatusCompleted:
		return true
	default:
		return false
	}
}

// Todo はCRUD管理対象のリソースを表す。
// 必ず1人の所有ユーザーを持ち、ユーザー削除時はCASCADE削除される。
// textの文字数制約（3〜250文字）はバリデーション境界で強制し、
// ストア層では強制しない。
type Todo struct {
	ID          string
	Text        string
	Description *string
	Active      bool
	Status      TodoStatus
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoUpdate はTodoの部分更新を表す。nilフィールドは変更しない。
type TodoUpdate struct {
	Text        *string
	Description *string
	Active      *bool
	Status      *TodoStatus
}

// TodoAuthor はTodoに結合された所有ユーザーの公開フィールド。
type TodoAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TodoWithAuthor はTodoと所有ユーザーの公開フィールドを結合した構造体。
type TodoWithAuthor struct {
	Todo
	Author TodoAuthor
}
