// Package logger はJSON構造化ログの設定を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// RedactedValue は秘匿属性の代わりに出力する値。
const RedactedValue = "[REDACTED]"

// 値を出力してはならない属性キー。
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"secret":        {},
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// パスワードやトークンを表すキーの値はRedactedValueに置き換える。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSensitive,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, level slog.Level) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfo。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactSensitive(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}
