// Package model はドメインモデルを定義する。
package model

import "time"

// ユーザーアカウントの状態。
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// 認証プロバイダー名。ProviderEmailはパスワード認証を表す。
const (
	ProviderEmail     = "email"
	ProviderGitHub    = "github"
	ProviderGoogle    = "google"
	ProviderFacebook  = "facebook"
	ProviderMicrosoft = "microsoft"
)

// User はストア利用ユーザーを表す。
// パスワード認証のユーザーはPasswordHashを持ち、
// OAuth連携ユーザーはProvider/ProviderIDの組で一意に特定される。
type User struct {
	ID            string
	Email         string
	PasswordHash  string // OAuth連携のみのユーザーは空
	Provider      string
	ProviderID    string
	EmailVerified bool
	IsAdmin       bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはクライアントが保持するトークンのSHA-256ハッシュであり、
// 生のトークンはデータベースに保存されない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordResetToken はパスワード再設定用のワンタイムトークンを表す。
// IDはセッションと同様にトークンのSHA-256ハッシュ。
type PasswordResetToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
