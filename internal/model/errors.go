// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, content, validation, system
	Action   string // ユーザー向け対処方法

	// RetryAfter は再試行までの推奨待ち時間。RATE_LIMITEDのみ設定される。
	RetryAfter time.Duration

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部エラーの原因を返す。原因はログにのみ出力し、呼び出し元には公開しない。
func (e *APIError) Unwrap() error {
	return e.cause
}

// Extensions はGraphQLレスポンスのerrors[].extensionsに載せる分類情報を返す。
func (e *APIError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{
		"code":     e.Code,
		"category": e.Category,
		"action":   e.Action,
	}
	if s := e.RetryAfterSeconds(); s > 0 {
		ext["retryAfter"] = s
	}
	return ext
}

// RetryAfterSeconds はRetryAfterを切り上げた秒数を返す。未設定の場合は0。
func (e *APIError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternal           = "INTERNAL"

	// トランスポート層でのみ使用する
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUnknownOperation = "UNKNOWN_OPERATION"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

// CodeOf はエラーの分類コードを返す。
// APIErrorでないエラーはすべてINTERNALとして扱う。nilの場合は空文字列を返す。
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrCodeInternal
}

// NewUnauthenticatedError は認証が必要な操作を匿名で呼び出した場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレス未登録とシークレット不一致のどちらでも同一の内容を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewConflictError は一意制約違反エラーを生成する。
// fieldには重複したフィールド名（username, email）を指定する。不明な場合は空文字列。
func NewConflictError(field string) *APIError {
	msg := "ユーザー名またはメールアドレスは既に使用されています。"
	switch field {
	case "username":
		msg = "このユーザー名は既に使用されています。"
	case "email":
		msg = "このメールアドレスは既に使用されています。"
	}
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  msg,
		Category: "validation",
		Action:   "別の値を入力してください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "content",
		Action:   "投稿IDを確認してください。",
	}
}

// NewIdentityNotFoundError は呼び出し元のアカウントが見つからない場合のエラーを生成する。
func NewIdentityNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError はストアやトランスポートの障害を内部エラーとして分類する。
// causeはUnwrapで取り出せるが、メッセージには含めない。
func NewInternalError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewInvalidRequestError はリクエストの形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnknownOperationError は存在しない操作名が指定された場合のエラーを生成する。
func NewUnknownOperationError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownOperation,
		Message:  fmt.Sprintf("未定義の操作です: %s", name),
		Category: "validation",
		Action:   "操作名を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。retryAfterは再試行までの推奨待ち時間。
func NewRateLimitedError(retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       ErrCodeRateLimited,
		Message:    "リクエストが多すぎます。",
		Category:   "system",
		Action:     "しばらく待ってから再度お試しください。",
		RetryAfter: retryAfter,
	}
}
