// Package provider は外部の認証・データプロバイダーに求める能力（capability）を定義する。
// コアはこのインターフェースのみに依存し、通信方式や保存方式には依存しない。
package provider

import (
	"context"

	"github.com/hitoshi/confide/internal/model"
)

// AuthProvider は認証プロバイダーのインターフェース。
type AuthProvider interface {
	// CurrentIdentity は現在サインイン中のidentityを返す。未サインインの場合はnil。
	CurrentIdentity(ctx context.Context) (*model.Identity, error)
	// SignIn はメールアドレスとパスワードでサインインする。
	// 認証情報の不一致はmodel.ErrInvalidCredentialsを返す。
	SignIn(ctx context.Context, email, secret string) (*model.Identity, error)
	// SignUp は新規identityを作成してサインインする。
	// ポリシー違反はmodel.ErrRegistrationRejectedを返す。
	SignUp(ctx context.Context, email, secret string, metadata map[string]string) (*model.Identity, error)
	// SignOut はサインアウトする。
	SignOut(ctx context.Context) error
	// OnIdentityChange はidentity変更通知の購読を登録し、購読解除関数を返す。
	// コールバックは通知の発行順に呼ばれる。
	OnIdentityChange(fn func(model.IdentityEvent)) (unsubscribe func())
}

// DataBackend は名前付きコレクションを扱う構造化ストアのインターフェース。
// スキーマ未作成のコレクションに対するエラーはClassifyでKindSchemaAbsentに分類される。
type DataBackend interface {
	// Read は条件に一致するレコードを返す。
	Read(ctx context.Context, collection string, q model.Query) ([]model.Record, error)
	// Insert はレコードを作成し、保存後のレコードを返す。
	Insert(ctx context.Context, collection string, record model.Record) (model.Record, error)
	// Update は指定IDのレコードを部分更新し、更新後のレコードを返す。
	Update(ctx context.Context, collection, id string, patch model.Record) (model.Record, error)
	// Delete は指定IDのレコードを削除する。
	Delete(ctx context.Context, collection, id string) error
}
