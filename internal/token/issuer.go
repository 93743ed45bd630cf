// Package token はアクセストークンとリフレッシュトークン（HS256 JWT）の発行と検証を行う。
// 署名鍵と有効期限は生成時に注入された値のみを使い、グローバル状態を参照しない。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// ErrInvalidToken は署名・形式・有効期限・種別のいずれかの検証に失敗したことを表す。
// どの検証で失敗したかは呼び出し元に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// Type はトークンの種別。
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Config はIssuerの設定。生成後に変更されない。
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims はトークンに埋め込むクレーム。subjectにはユーザーIDの10進表記が入る。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Type  Type   `json:"type"`
}

// Issuer はトークンを発行・検証する。
type Issuer struct {
	cfg Config
	now func() time.Time
}

// Option はIssuerの任意設定。
type Option func(*Issuer)

// WithClock は発行時刻と有効期限判定に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer はIssuerを生成する。
// 署名鍵が空、アクセス用とリフレッシュ用の鍵が同一、TTLが0以下の場合はエラーを返す。
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: signing secrets must not be empty")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}

	i := &Issuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssueAccessToken は短命のアクセストークンを発行する。
func (i *Issuer) IssueAccessToken(userID int64, email string) (string, error) {
	return i.issue(userID, email, TypeAccess)
}

// IssueRefreshToken は長命のリフレッシュトークンを発行する。
func (i *Issuer) IssueRefreshToken(userID int64, email string) (string, error) {
	return i.issue(userID, email, TypeRefresh)
}

// IssuePair はアクセストークンとリフレッシュトークンの組を発行する。
func (i *Issuer) IssuePair(userID int64, email string) (model.TokenPair, error) {
	access, err := i.IssueAccessToken(userID, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := i.IssueRefreshToken(userID, email)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify は署名・有効期限・種別を検証し、埋め込まれた主体を返す。
// 失敗理由にかかわらずErrInvalidTokenを返す。
func (i *Issuer) Verify(tokenString string, expected Type) (model.Identity, error) {
	secret, err := i.secretFor(expected)
	if err != nil {
		return model.Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	if claims.Type != expected {
		return model.Identity{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.Identity{}, ErrInvalidToken
	}

	return model.Identity{UserID: userID, Email: claims.Email}, nil
}

func (i *Issuer) issue(userID int64, email string, typ Type) (string, error) {
	secret, err := i.secretFor(typ)
	if err != nil {
		return "", err
	}
	ttl := i.cfg.AccessTTL
	if typ == TypeRefresh {
		ttl = i.cfg.RefreshTTL
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jtiにより同一秒内に発行したトークン同士も必ず異なる文字列になる
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Type:  typ,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (i *Issuer) secretFor(typ Type) ([]byte, error) {
	switch typ {
	case TypeAccess:
		return i.cfg.AccessSecret, nil
	case TypeRefresh:
		return i.cfg.RefreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", typ)
	}
}
