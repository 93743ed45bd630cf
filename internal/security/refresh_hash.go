package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken はリフレッシュトークンのSHA-256ハッシュ（16進64文字）を返す。
// sessionsテーブルには生のトークンではなくこの値を保存する。
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenMatches は提示されたトークンと保存済みハッシュを定数時間で比較する。
func RefreshTokenMatches(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashRefreshToken(token)), []byte(storedHash)) == 1
}
