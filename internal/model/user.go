// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 管理コンソールとストアの両アプリで共有されるアカウント情報。
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	Image         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Account はユーザーの認証手段を表す。
// 現状はメール+パスワードのみだが、将来的に複数の認証方式
// （OAuth等）に対応可能な構造。
type Account struct {
	ID           string
	UserID       string
	Provider     string
	PasswordHash string
	CreatedAt    time.Time
}

// ProviderCredential はメール+パスワード認証を示すprovider値。
const ProviderCredential = "credential"

// Session はユーザーのログインセッションを表す。
// IDはCookieに載せる不透明トークン（64桁hex）そのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PublicUser はAPIレスポンスに含めてよいユーザーの公開フィールド。
type PublicUser struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"emailVerified"`
	Image         *string `json:"image"`
}

// Public はUserの公開フィールドのみを抜き出す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
	}
}
