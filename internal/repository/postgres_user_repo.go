package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

const userColumns = `id, name, email, password, role, COALESCE(phone, ''), COALESCE(profile_image, ''),
	created_at, updated_at, deleted_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`,
		email,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.UserRoleAdmin
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password, role, phone, profile_image)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		 RETURNING id, created_at, updated_at`,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.Phone, user.ProfileImage,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err, "") {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// SoftDeleteByID はユーザーを退会状態にする。対象が存在しない場合はエラーを返す。
func (r *PostgresUserRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %d", id)
	}
	return nil
}

// scanUser は1行をUserに読み込む。行が無い場合は(nil, nil)を返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var role string
	var deletedAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role,
		&user.Phone, &user.ProfileImage, &user.CreatedAt, &user.UpdatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Role = model.UserRole(role)
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
