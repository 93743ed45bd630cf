package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/security"
)

const sessionTokenConstraint = "uq_sessions_refresh_token_hash"

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// refresh_token_hashにはSHA-256ハッシュのみを保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, userID int64, refreshToken string, expiresAt time.Time) (*model.Session, error) {
	session := &model.Session{
		UserID:       userID,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (user_id, refresh_token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		userID, security.HashRefreshToken(refreshToken), expiresAt,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if isUniqueViolation(err, sessionTokenConstraint) {
		return nil, ErrSessionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// FindByToken はトークンでセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	session := &model.Session{RefreshToken: refreshToken}
	var lastUsedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, last_used_at, created_at, updated_at
		 FROM sessions
		 WHERE refresh_token_hash = $1 AND expires_at > now()`,
		security.HashRefreshToken(refreshToken),
	).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &lastUsedAt, &session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if lastUsedAt.Valid {
		session.LastUsedAt = &lastUsedAt.Time
	}
	return session, nil
}

// Touch はlast_used_atをatに更新する。
func (r *PostgresSessionRepo) Touch(ctx context.Context, refreshToken string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_used_at = $2, updated_at = $2 WHERE refresh_token_hash = $1`,
		security.HashRefreshToken(refreshToken), at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteByToken はセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, refreshToken string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE refresh_token_hash = $1`,
		security.HashRefreshToken(refreshToken),
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpired は期限切れセッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Rotate は旧セッションを削除し、同じユーザーの新セッションを作成する。
// 並行して同じ旧トークンでRotateした場合、DELETEの行ロックにより後続側は0件となり
// ErrSessionNotFoundを返す。期限切れの旧セッションも存在しないものとして扱う。
func (r *PostgresSessionRepo) Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*model.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx,
		`DELETE FROM sessions WHERE refresh_token_hash = $1 AND expires_at > now() RETURNING user_id`,
		security.HashRefreshToken(oldToken),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete rotated session: %w", err)
	}

	session := &model.Session{
		UserID:       userID,
		RefreshToken: newToken,
		ExpiresAt:    expiresAt,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sessions (user_id, refresh_token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		userID, security.HashRefreshToken(newToken), expiresAt,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if isUniqueViolation(err, sessionTokenConstraint) {
		return nil, ErrSessionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert rotated session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return session, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
