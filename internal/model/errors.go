// Package model はドメインモデルを定義する。
package model

import "fmt"

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
	ErrCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeInvalidPassword    = "INVALID_PASSWORD"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeResetNotAllowed    = "RESET_NOT_ALLOWED"
	ErrCodeInvalidResetToken  = "INVALID_RESET_TOKEN"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewAlreadyRegisteredError は登録済みメールアドレスでの再登録エラーを生成する。
func NewAlreadyRegisteredError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  fmt.Sprintf("User %s already exists", email),
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewMissingFieldError は必須フォーム項目の欠落エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("%s is required", field),
		Category: "validation",
		Action:   "必須項目を入力してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUnauthorizedError は認証情報が提示されていない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は認証情報がユーザーに結びつかない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewResetNotAllowedError は未登録メールアドレスでのリセット要求エラーを生成する。
func NewResetNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeResetNotAllowed,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "登録済みのメールアドレスを入力してください。",
	}
}

// NewInvalidResetTokenError は無効なリセットトークンのエラーを生成する。
// トークンが部分一致したかどうか等の情報は含めない。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResetToken,
		Message:  "Forbidden",
		Category: "auth",
		Action:   "パスワードリセットを再度要求してください。",
	}
}

// NewPasswordTooLongError はハッシュ化できる長さを超えたパスワードのエラーを生成する。
func NewPasswordTooLongError(maxBytes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  fmt.Sprintf("password must be at most %d bytes", maxBytes),
		Category: "validation",
		Action:   "より短いパスワードを入力してください。",
	}
}
