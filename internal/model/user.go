// Package model はドメインモデルを定義する。
package model

import "time"

// UserRole はユーザーの権限種別を表す。
type UserRole string

const (
	// UserRoleAdmin は管理者ユーザー。現状はこの種別のみ。
	UserRoleAdmin UserRole = "admin"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはレスポンスに含めてはならない。
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Phone        string
	ProfileImage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Profile はサインアップ時に受け付けるプロフィール情報。
type Profile struct {
	Name  string
	Phone string
}

// Session はリフレッシュトークン1つ分のサーバー側記録を表す。
// RefreshTokenは生のトークン文字列で、永続化層ではハッシュ化して保存される。
type Session struct {
	ID           int64
	UserID       int64
	RefreshToken string
	ExpiresAt    time.Time
	LastUsedAt   *time.Time // 一度もリフレッシュされていなければnil
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はトークン検証で得られる認証済み主体。
type Identity struct {
	UserID int64
	Email  string
}

// TokenPair はアクセストークンとリフレッシュトークンの組。永続化はしない。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult はサインアップ・ログイン成功時の結果。
type AuthResult struct {
	User *User
	TokenPair
}

// WithoutPassword はPasswordHashを空にしたコピーを返す。外部に返すユーザーは必ずこれを通す。
func (u *User) WithoutPassword() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}
