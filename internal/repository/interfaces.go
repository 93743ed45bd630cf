// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

var (
	// ErrEmailTaken は未退会ユーザーとメールアドレスが重複したことを表す。
	ErrEmailTaken = errors.New("email already taken")
	// ErrSessionConflict は同一リフレッシュトークンのセッションが既に存在することを表す。
	ErrSessionConflict = errors.New("session already exists for refresh token")
	// ErrSessionNotFound はローテーション対象のセッションが既に存在しないことを表す。
	// 同じトークンでの並行リフレッシュに負けた場合に返る。
	ErrSessionNotFound = errors.New("session not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
// 退会済み（deleted_at設定済み）のユーザーは存在しないものとして扱う。
type UserRepository interface {
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// メールアドレスが重複した場合はErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// SoftDeleteByID はdeleted_atを設定してユーザーを退会状態にする。
	SoftDeleteByID(ctx context.Context, id int64) error
}

// SessionRepository はリフレッシュトークンセッションの永続化インターフェース。
// トークンは生の文字列で受け取り、保存時と検索時にハッシュ化する。
type SessionRepository interface {
	// Create はセッションを作成する。同一トークンが既に存在する場合はErrSessionConflictを返す。
	Create(ctx context.Context, userID int64, refreshToken string, expiresAt time.Time) (*model.Session, error)

	// FindByToken はトークンでセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByToken(ctx context.Context, refreshToken string) (*model.Session, error)

	// Touch はlast_used_atを更新する。トークンが存在しなければ何もしない。
	Touch(ctx context.Context, refreshToken string, at time.Time) error

	// DeleteByToken はセッションを削除する。存在しない場合もエラーにしない。
	DeleteByToken(ctx context.Context, refreshToken string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired はexpires_atがnowより前のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Rotate は旧トークンのセッション削除と新トークンのセッション作成を1トランザクションで行う。
	// 旧セッションが既に存在しない場合はErrSessionNotFoundを返し、何も作成しない。
	Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*model.Session, error)
}
