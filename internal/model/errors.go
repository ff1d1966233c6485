package model

import (
	"errors"
	"fmt"
)

// エラー分類。呼び出し側はerrors.Isで判定する。
var (
	// ErrProviderUnavailable は認証・データプロバイダーとの通信失敗を表す。
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrStoreUnprovisioned はコレクションのスキーマが未作成であることを表す。
	ErrStoreUnprovisioned = errors.New("store unprovisioned")
	// ErrInvalidCredentials は認証情報の不一致を表す。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRegistrationRejected は招待コード不一致やパスワードポリシー違反による登録拒否を表す。
	ErrRegistrationRejected = errors.New("registration rejected")
	// ErrProfileNotFound はプロフィール行が存在しないことを表す。
	// プロフィールリゾルバーの外には伝播しない。
	ErrProfileNotFound = errors.New("profile not found")
	// ErrRecordNotFound は更新・削除対象のレコードが存在しないことを表す。
	ErrRecordNotFound = errors.New("record not found")
	// ErrNotAuthenticated はサインインしていない状態での操作を表す。
	ErrNotAuthenticated = errors.New("not authenticated")
)

// StoreUnprovisionedError は書き込み対象のコレクションが利用不可であることを表す。
type StoreUnprovisionedError struct {
	Collection string
}

// Error はerrorインターフェースを実装する。
func (e *StoreUnprovisionedError) Error() string {
	return fmt.Sprintf("collection %q is not provisioned", e.Collection)
}

// Is はErrStoreUnprovisionedとの比較を可能にする。
func (e *StoreUnprovisionedError) Is(target error) bool {
	return target == ErrStoreUnprovisioned
}

// RegistrationRejectedError は登録拒否の理由を保持する。
type RegistrationRejectedError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *RegistrationRejectedError) Error() string {
	return "registration rejected: " + e.Reason
}

// Is はErrRegistrationRejectedとの比較を可能にする。
func (e *RegistrationRejectedError) Is(target error) bool {
	return target == ErrRegistrationRejected
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeRegistrationRejected = "REGISTRATION_REJECTED"
	ErrCodeStoreUnprovisioned   = "STORE_UNPROVISIONED"
	ErrCodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	ErrCodeNotAuthenticated     = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeRecordNotFound       = "RECORD_NOT_FOUND"
	ErrCodeInvalidInput         = "INVALID_INPUT"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewRegistrationRejectedError は登録拒否エラーを生成する。
func NewRegistrationRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationRejected,
		Message:  fmt.Sprintf("登録できませんでした: %s", reason),
		Category: "auth",
		Action:   "招待コードとパスワードの条件を確認してください。",
	}
}

// NewStoreUnprovisionedError はスキーマ未作成エラーを生成する。
func NewStoreUnprovisionedError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnprovisioned,
		Message:  fmt.Sprintf("%s テーブルが利用できないため保存できませんでした。", collection),
		Category: "store",
		Action:   "データベースのセットアップ（migrate）を実行してください。",
	}
}

// NewProviderUnavailableError はプロバイダー通信失敗エラーを生成する。
func NewProviderUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  "認証・データサービスに接続できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewNotAuthenticatedError は未認証エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(collection, id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("%s が見つかりません: %s", collection, id),
		Category: "store",
		Action:   "IDを確認してください。",
	}
}

// NewInvalidInputError は入力検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// ToAPIError はドメインエラーをAPIErrorに変換する。
// 変換できない場合はfalseを返す。
func ToAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	var unprovisioned *StoreUnprovisionedError
	if errors.As(err, &unprovisioned) {
		return NewStoreUnprovisionedError(unprovisioned.Collection), true
	}

	var rejected *RegistrationRejectedError
	if errors.As(err, &rejected) {
		return NewRegistrationRejectedError(rejected.Reason), true
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return NewInvalidCredentialsError(), true
	case errors.Is(err, ErrRegistrationRejected):
		return NewRegistrationRejectedError("条件を満たしていません"), true
	case errors.Is(err, ErrRecordNotFound):
		return &APIError{
			Code:     ErrCodeRecordNotFound,
			Message:  "対象のレコードが見つかりません。",
			Category: "store",
			Action:   "IDを確認してください。",
		}, true
	case errors.Is(err, ErrNotAuthenticated):
		return NewNotAuthenticatedError(), true
	case errors.Is(err, ErrProviderUnavailable):
		return NewProviderUnavailableError(), true
	}
	return nil, false
}
