// Package security はパスワードハッシュ、リフレッシュトークンの保存用ハッシュ、
// プロフィール入力のサニタイズを提供する。
package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はbcryptでパスワードをハッシュ化・照合する。
// 平文パスワードをログや永続化層に渡してはならない。
type Hasher struct {
	Cost int
}

// NewHasher は指定コストのHasherを返す。
// 0以下はbcrypt.DefaultCost、範囲外はMinCost〜MaxCostに丸める。
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// ErrPasswordTooLong はbcryptの入力上限（72バイト）を超えたパスワードを表す。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hash はパスワードのbcryptハッシュを返す。72バイトを超える入力はErrPasswordTooLongになる。
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare は保存済みハッシュと平文パスワードを定数時間で照合する。
// 一致すればnil、不一致または不正なハッシュの場合はエラーを返す。
func (h *Hasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
