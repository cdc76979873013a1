package model

import (
	"errors"
	"fmt"
)

// 認証コアが返す型付きエラー。呼び出し側はerrors.Isで判定する。
var (
	// ErrAuthFailure はユーザー名またはシークレットの不一致を表す。
	// 未登録ユーザーとシークレット誤りは区別しない。
	ErrAuthFailure = errors.New("invalid credentials")

	// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンを表す。
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenMalformed は構造不正・署名不一致・未対応形式のトークンを表す。
	ErrTokenMalformed = errors.New("invalid token")

	// ErrInvalidHandle は未発行または失効済みのリフレッシュハンドルを表す。
	ErrInvalidHandle = errors.New("invalid refresh token")

	// ErrUnavailable はディレクトリやセッションストアへのアクセス失敗を表す。
	// 認証失敗やハンドル不正とは区別して扱う。
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrAccountExists はユーザー名が既に登録済みであることを表す。
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound は指定IDのアカウントが存在しないことを表す。
	ErrAccountNotFound = errors.New("account not found")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, token, validation, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenMalformed  = "TOKEN_MALFORMED"
	ErrCodeInvalidHandle   = "INVALID_HANDLE"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeAccountExists   = "ACCOUNT_EXISTS"
	ErrCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewAuthFailedError は認証失敗エラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Token has expired",
		Category: "token",
		Action:   "リフレッシュトークンで再発行するか、再度ログインしてください。",
	}
}

// NewTokenMalformedError は不正トークンエラーを生成する。
func NewTokenMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMalformed,
		Message:  "Invalid token",
		Category: "token",
		Action:   "再度ログインしてトークンを取得してください。",
	}
}

// NewInvalidHandleError はリフレッシュハンドル不正エラーを生成する。
func NewInvalidHandleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHandle,
		Message:  "Invalid refresh token",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewUnavailableError は依存サービス停止エラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "一時的にサービスを利用できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("無効なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエストボディの形式を確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作には role=admin 属性が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewAccountExistsError はユーザー名重複エラーを生成する。
func NewAccountExistsError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %d", id),
		Category: "validation",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
