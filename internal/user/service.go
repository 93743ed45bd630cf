// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/repository"
)

// SessionRevoker はユーザーの全セッションを破棄する。
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
}

// PasswordHasher は初期管理者のパスワードをハッシュ化する。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// AdminSeed は初期管理者ユーザーの登録内容。
type AdminSeed struct {
	Email    string
	Password string
	Name     string
}

// Service はユーザー管理のサービス層。
// 退会処理と初期管理者の投入を提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionRevoker
	hasher   PasswordHasher
}

// NewService はServiceの新しいインスタンスを生成する。
// hasherはEnsureAdminを使わない場合nilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessions SessionRevoker,
	hasher PasswordHasher,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		hasher:   hasher,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（論理削除）。退会後は同じメールアドレスで再登録できる。
func (s *Service) Withdraw(ctx context.Context, userID int64) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.Int64("user_id", userID),
	)

	// 1. セッションを削除（発行済みリフレッシュトークンを無効化）
	revoked, err := s.sessions.DeleteByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. ユーザーを論理削除
	if err := s.userRepo.SoftDeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", userID),
		slog.Int64("revoked_sessions", revoked),
	)

	return nil
}

// EnsureAdmin は初期管理者ユーザーが存在しなければ作成する。
// 既に存在する場合は何もせずcreated=falseを返す。
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) (created bool, err error) {
	if seed.Email == "" || seed.Password == "" {
		return false, errors.New("admin email and password are required")
	}
	if s.hasher == nil {
		return false, errors.New("password hasher is not configured")
	}

	existing, err := s.userRepo.FindByEmail(ctx, seed.Email)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		slog.Info("admin user already exists", slog.Int64("user_id", existing.ID))
		return false, nil
	}

	hash, err := s.hasher.Hash(seed.Password)
	if err != nil {
		return false, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	admin := &model.User{
		Name:         seed.Name,
		Email:        seed.Email,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		// 並行実行された別のseedが先に作成した
		if errors.Is(err, repository.ErrEmailTaken) {
			return false, nil
		}
		return false, fmt.Errorf("管理者ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("admin user created",
		slog.Int64("user_id", admin.ID),
		slog.String("email", admin.Email),
	)
	return true, nil
}
