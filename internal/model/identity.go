// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は外部認証プロバイダーが返す主体情報を表す。
// プロバイダーが所有し、コアは読み取りのみ行う。
type Identity struct {
	ID        string
	Email     string
	Metadata  map[string]string // 表示名ヒント等（display_name / full_name）
	CreatedAt time.Time
}

// DisplayNameHint はメタデータに含まれる表示名ヒントを返す。
// display_name を優先し、なければ full_name を参照する。
func (i Identity) DisplayNameHint() string {
	if i.Metadata == nil {
		return ""
	}
	if v := i.Metadata["display_name"]; v != "" {
		return v
	}
	return i.Metadata["full_name"]
}

// IdentityEventKind はプロバイダーが通知するidentity変更イベントの種別。
type IdentityEventKind string

const (
	// EventSignedIn はサインイン（またはセッション復元）を示す。
	EventSignedIn IdentityEventKind = "signed_in"
	// EventSignedOut はサインアウトを示す。
	EventSignedOut IdentityEventKind = "signed_out"
)

// IdentityEvent はプロバイダーから届くidentity変更通知。
// EventSignedOut の場合 Identity は nil。
type IdentityEvent struct {
	Kind     IdentityEventKind
	Identity *Identity
}
