// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeAccessDenied           = "ACCESS_DENIED"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// 認証失敗時の外部向けメッセージ。
// 失敗原因（ユーザー不在、パスワード不一致、期限切れ、改ざん）にかかわらず同一にする。
const (
	MessageInvalidCredentials = "invalid credentials"
	MessageAccessDenied       = "access denied"
)

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "email already registered",
		Category: "auth",
		Action:   "別のメールアドレスで登録するか、ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MessageInvalidCredentials,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewAccessDeniedError はトークン不正・失効時のエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  MessageAccessDenied,
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsUnauthorized はerrが認証失敗（401相当）かどうかを判定する。
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeInvalidCredentials || apiErr.Code == ErrCodeAccessDenied
}

// IsConflict はerrが登録重複（409相当）かどうかを判定する。
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeEmailAlreadyRegistered
}
