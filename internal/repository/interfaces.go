// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/confide/internal/model"
)

// CredentialRepository はパスワード認証情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別しない）で認証情報を検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// FindByUserID は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)

	// Create は認証情報を作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, credential *model.Credential) error
}

// AuthSessionRepository はクライアントごとのサインイン状態の永続化インターフェース。
type AuthSessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error

	// FindActiveByClientID はクライアントの有効なセッションのうち最新のものを返す。
	// 見つからない場合はnilを返す。
	FindActiveByClientID(ctx context.Context, clientID string) (*model.AuthSession, error)

	// DeleteByClientID はクライアントの全セッションを削除する。
	DeleteByClientID(ctx context.Context, clientID string) error
}
