// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeInvalidCredential  = "INVALID_CREDENTIAL"
	ErrCodeStaleSession       = "STALE_SESSION"
	ErrCodePartialDeletion    = "PARTIAL_DELETION"
	ErrCodeRevocationFailed   = "REVOCATION_FAILED"
	ErrCodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	ErrCodeInvalidSignup      = "INVALID_SIGNUP"
	ErrCodeInvalidLogin       = "INVALID_LOGIN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
)

// NewNotAuthenticatedError は未ログイン状態での操作エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInvalidCredentialError は再認証時のパスワード不一致エラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認して再度入力してください。",
	}
}

// NewStaleSessionError はセッションが古く再認証できない場合のエラーを生成する。
func NewStaleSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeStaleSession,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "一度ログアウトし、再度ログインしてからお試しください。",
	}
}

// NewPartialDeletionError はデータ削除が途中で失敗した場合のエラーを生成する。
// アカウント自体は残っており、再実行で残りのデータを削除できる。
func NewPartialDeletionError() *APIError {
	return &APIError{
		Code:     ErrCodePartialDeletion,
		Message:  "アカウントデータの削除を完了できませんでした。",
		Category: "account",
		Action:   "アカウントはまだ有効です。しばらく待ってから再度削除をお試しください。",
	}
}

// NewRevocationFailedError はデータ削除後に認証情報の削除に失敗した場合のエラーを生成する。
func NewRevocationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRevocationFailed,
		Message:  "データは削除されましたが、アカウントの削除を完了できませんでした。",
		Category: "account",
		Action:   "再度ログインして削除をお試しいただくか、サポートへお問い合わせください。",
	}
}

// NewEmailAlreadyExistsError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidSignupError は登録内容の検証エラーを生成する。
func NewInvalidSignupError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignup,
		Message:  fmt.Sprintf("登録内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidLoginError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidLoginError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLogin,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
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

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
