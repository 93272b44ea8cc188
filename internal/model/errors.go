// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// HTTPステータスコードとユーザー向けメッセージを持つ。
// 内部エラーの詳細（スタックトレースやシークレット）は含めない。
type APIError struct {
	Code    string // エラーコード
	Status  int    // HTTPステータスコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidResetToken = "INVALID_RESET_TOKEN"
	ErrCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	ErrCodeUnsupportedRegion = "UNSUPPORTED_REGION"
	ErrCodeUpstream          = "UPSTREAM_ERROR"
)

// NewValidationError は入力不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Status:  http.StatusUnauthorized,
		Message: message,
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// ユーザー列挙攻撃を防ぐため、ユーザー不在とパスワード不一致で
// 完全に同一のメッセージを返す。
func NewLoginFailedError() *APIError {
	return NewUnauthorizedError("メールアドレスまたはパスワードが正しくありません。")
}

// NewTokenRevokedError はパスワード変更によるトークン失効エラーを生成する。
func NewTokenRevokedError() *APIError {
	return NewUnauthorizedError("パスワードが変更されました。再度ログインしてください。")
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Status:  http.StatusForbidden,
		Message: "この操作を実行する権限がありません。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Status:  http.StatusNotFound,
		Message: "このメールアドレスのユーザーは見つかりません。",
	}
}

// NewStoreNotFoundError はストア未検出エラーを生成する。
func NewStoreNotFoundError(storeID string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("指定されたストアが見つかりません: %s", storeID),
	}
}

// NewInvalidResetTokenError はパスワードリセットトークンの不正・期限切れエラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidResetToken,
		Status:  http.StatusBadRequest,
		Message: "パスワードリセットトークンが無効か、有効期限が切れています。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:    ErrCodeDuplicateEmail,
		Status:  http.StatusBadRequest,
		Message: "このメールアドレスは既に登録されています。",
	}
}

// NewUnsupportedRegionError は未対応の国・地域コードエラーを生成する。
// 不明なコードで不定のクライアント設定を生成せず、必ず明示的に失敗させる。
func NewUnsupportedRegionError(region string) *APIError {
	return &APIError{
		Code:    ErrCodeUnsupportedRegion,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("未対応の国・地域コードです: %s", region),
	}
}

// NewUpstreamError はマーケットプレイスAPI障害エラーを生成する。
// ローカルのバリデーション失敗とベンダー側の失敗を区別するために使用する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeUpstream,
		Status:  http.StatusBadGateway,
		Message: fmt.Sprintf("マーケットプレイスAPIの呼び出しに失敗しました: %s", reason),
	}
}
