// Package auth はサインアップ・ログイン・トークンリフレッシュ・ログアウトを提供する。
//
// リフレッシュトークンはサーバー側のセッションとして記録され、リフレッシュのたびに
// 旧セッションを削除して新セッションに置き換える（1回限り使用）。
// 認証失敗は原因にかかわらず "invalid credentials" または "access denied" のみを返す。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
	"github.com/safwat-fathi/almuetasim-api/internal/repository"
	"github.com/safwat-fathi/almuetasim-api/internal/security"
)

// SessionTTL はセッション（リフレッシュトークン記録）の有効期間。
const SessionTTL = 30 * 24 * time.Hour

// セッション作成時にトークンが衝突した場合の最大試行回数。
const maxSessionAttempts = 2

// 無害化後のプロフィール項目の上限（文字数）。usersテーブルの列幅に合わせる。
const (
	maxNameLength  = 100
	maxPhoneLength = 30
)

// 操作結果のラベル。メトリクスに使用する。
const (
	ResultSuccess            = "success"
	ResultInvalidInput       = "invalid_input"
	ResultConflict           = "conflict"
	ResultInvalidCredentials = "invalid_credentials"
	ResultDenied             = "denied"
	ResultError              = "error"
)

// 操作名。メトリクスに使用する。
const (
	OpSignup  = "signup"
	OpLogin   = "login"
	OpRefresh = "refresh"
	OpLogout  = "logout"
)

// TokenIssuer はトークンペアを発行する。
type TokenIssuer interface {
	IssuePair(userID int64, email string) (model.TokenPair, error)
}

// PasswordHasher はパスワードのハッシュ化と照合を行う。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// ProfileSanitizer はサインアップ時のプロフィール入力を無害化する。
type ProfileSanitizer interface {
	SanitizeProfile(p model.Profile) model.Profile
}

// MetricsRecorder は認証操作の結果を記録する。
type MetricsRecorder interface {
	RecordAuthOutcome(operation, result string)
}

// SignupInput はサインアップの入力。
type SignupInput struct {
	Email    string
	Password string
	Profile  model.Profile
}

// ServiceConfig は認証サービスの任意設定。nilの項目は既定の実装を使う。
type ServiceConfig struct {
	Sanitizer ProfileSanitizer
	Metrics   MetricsRecorder
	Now       func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokens      TokenIssuer
	hasher      PasswordHasher
	sanitizer   ProfileSanitizer
	metrics     MetricsRecorder
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens TokenIssuer,
	hasher PasswordHasher,
	config ServiceConfig,
) *Service {
	s := &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		hasher:      hasher,
		sanitizer:   config.Sanitizer,
		metrics:     config.Metrics,
		now:         config.Now,
	}
	if s.sanitizer == nil {
		s.sanitizer = passthroughSanitizer{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Signup はユーザーを登録し、トークンペアを発行する。
// 未退会ユーザーと同じメールアドレスの場合はEMAIL_ALREADY_REGISTEREDを返す。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.AuthResult, error) {
	// 1. プロフィールの無害化と検証
	profile := s.sanitizer.SanitizeProfile(in.Profile)
	if err := validateProfile(in.Profile, profile); err != nil {
		s.metrics.RecordAuthOutcome(OpSignup, ResultInvalidInput)
		return nil, err
	}

	// 2. メールアドレスの重複確認
	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpSignup, ResultError)
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		s.metrics.RecordAuthOutcome(OpSignup, ResultConflict)
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	// 3. パスワードをハッシュ化してユーザーを作成
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			s.metrics.RecordAuthOutcome(OpSignup, ResultInvalidInput)
			return nil, model.NewValidationError("password must be at most 72 bytes")
		}
		s.metrics.RecordAuthOutcome(OpSignup, ResultError)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Name:         profile.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.UserRoleAdmin,
		Phone:        profile.Phone,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 重複確認と作成の間に同じメールアドレスで登録された場合
		if errors.Is(err, repository.ErrEmailTaken) {
			s.metrics.RecordAuthOutcome(OpSignup, ResultConflict)
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		s.metrics.RecordAuthOutcome(OpSignup, ResultError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 4. トークン発行とセッション作成
	pair, err := s.startSession(ctx, user)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpSignup, ResultError)
		return nil, err
	}

	s.metrics.RecordAuthOutcome(OpSignup, ResultSuccess)
	slog.Info("user signed up",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return &model.AuthResult{User: user.WithoutPassword(), TokenPair: pair}, nil
}

// validateProfile は無害化後の値が保存可能な長さに収まることを確認する。
// 入力に名前があったのにタグだけで空になった場合も拒否する。
func validateProfile(raw, sanitized model.Profile) error {
	if strings.TrimSpace(raw.Name) != "" && sanitized.Name == "" {
		return model.NewValidationError("name must contain text")
	}
	if utf8.RuneCountInString(sanitized.Name) > maxNameLength {
		return model.NewValidationError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(sanitized.Phone) > maxPhoneLength {
		return model.NewValidationError(fmt.Sprintf("phone must be at most %d characters", maxPhoneLength))
	}
	return nil
}

// Login はメールアドレスとパスワードを照合し、トークンペアを発行する。
// ユーザー不在とパスワード不一致は同じINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpLogin, ResultError)
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		// 応答時間でアカウントの有無を推測させないため、ダミーのハッシュと照合する
		s.compareDummy(password)
		s.metrics.RecordAuthOutcome(OpLogin, ResultInvalidCredentials)
		slog.Info("login failed", slog.String("email", email), slog.String("reason", "unknown email"))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.metrics.RecordAuthOutcome(OpLogin, ResultInvalidCredentials)
		slog.Info("login failed", slog.String("email", email), slog.String("reason", "password mismatch"))
		return nil, model.NewInvalidCredentialsError()
	}

	pair, err := s.startSession(ctx, user)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpLogin, ResultError)
		return nil, err
	}

	s.metrics.RecordAuthOutcome(OpLogin, ResultSuccess)
	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return &model.AuthResult{User: user.WithoutPassword(), TokenPair: pair}, nil
}

// Refresh は提示されたリフレッシュトークンを新しいトークンペアに交換する。
// 署名と種別はガードで検証済みであることを前提とし、ここではセッションの生存を確認する。
// 旧トークンは削除され、2回目以降の提示はACCESS_DENIEDになる。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	// 1. セッションの生存確認
	session, err := s.sessionRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpRefresh, ResultError)
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		s.metrics.RecordAuthOutcome(OpRefresh, ResultDenied)
		return nil, model.NewAccessDeniedError()
	}

	// 2. 使用日時を記録
	now := s.now()
	if err := s.sessionRepo.Touch(ctx, refreshToken, now); err != nil {
		s.metrics.RecordAuthOutcome(OpRefresh, ResultError)
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	// 3. セッション所有者の確認
	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpRefresh, ResultError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.metrics.RecordAuthOutcome(OpRefresh, ResultDenied)
		return nil, model.NewAccessDeniedError()
	}

	// 4. 新しいトークンペアを発行し、5. 旧セッションを新セッションに置き換える
	var pair model.TokenPair
	for attempt := 1; ; attempt++ {
		pair, err = s.tokens.IssuePair(user.ID, user.Email)
		if err != nil {
			s.metrics.RecordAuthOutcome(OpRefresh, ResultError)
			return nil, fmt.Errorf("failed to issue tokens: %w", err)
		}

		_, err = s.sessionRepo.Rotate(ctx, refreshToken, pair.RefreshToken, now.Add(SessionTTL))
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrSessionNotFound) {
			// 同じトークンによる並行リフレッシュに負けた
			s.metrics.RecordAuthOutcome(OpRefresh, ResultDenied)
			slog.Info("refresh lost rotation race", slog.Int64("user_id", user.ID))
			return nil, model.NewAccessDeniedError()
		}
		if !errors.Is(err, repository.ErrSessionConflict) || attempt >= maxSessionAttempts {
			s.metrics.RecordAuthOutcome(OpRefresh, ResultError)
			return nil, fmt.Errorf("failed to rotate session: %w", err)
		}
	}

	s.metrics.RecordAuthOutcome(OpRefresh, ResultSuccess)
	slog.Info("session rotated", slog.Int64("user_id", user.ID))
	return &pair, nil
}

// Logout は提示されたリフレッシュトークンのセッションを削除する。
// トークンの所持のみを権限とし、呼び出し元の本人確認は行わない。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessionRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		s.metrics.RecordAuthOutcome(OpLogout, ResultError)
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		s.metrics.RecordAuthOutcome(OpLogout, ResultDenied)
		return model.NewAccessDeniedError()
	}

	if err := s.sessionRepo.DeleteByToken(ctx, refreshToken); err != nil {
		s.metrics.RecordAuthOutcome(OpLogout, ResultError)
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.metrics.RecordAuthOutcome(OpLogout, ResultSuccess)
	slog.Info("user logged out", slog.Int64("user_id", session.UserID))
	return nil
}

// LogoutAll は指定ユーザーの全セッションを削除し、削除件数を返す。
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.sessionRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("all sessions revoked",
		slog.Int64("user_id", userID),
		slog.Int64("revoked", n),
	)
	return n, nil
}

// CurrentUser はアクセストークンの主体に対応するユーザーを返す。
// 退会済みまたは存在しない場合はACCESS_DENIEDを返す。
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewAccessDeniedError()
	}
	return user.WithoutPassword(), nil
}

// startSession はトークンペアを発行し、リフレッシュトークンをセッションとして保存する。
func (s *Service) startSession(ctx context.Context, user *model.User) (model.TokenPair, error) {
	for attempt := 1; ; attempt++ {
		pair, err := s.tokens.IssuePair(user.ID, user.Email)
		if err != nil {
			return model.TokenPair{}, fmt.Errorf("failed to issue tokens: %w", err)
		}

		_, err = s.sessionRepo.Create(ctx, user.ID, pair.RefreshToken, s.now().Add(SessionTTL))
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, repository.ErrSessionConflict) || attempt >= maxSessionAttempts {
			return model.TokenPair{}, fmt.Errorf("failed to create session: %w", err)
		}
		slog.Warn("refresh token collided, reissuing", slog.Int64("user_id", user.ID))
	}
}

// compareDummy は固定のダミーハッシュとパスワードを照合する。結果は使わない。
func (s *Service) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("almuetasim-dummy-password")
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeProfile(p model.Profile) model.Profile { return p }

type noopMetrics struct{}

func (noopMetrics) RecordAuthOutcome(string, string) {}
