// Package content は記事・コメント・告白・プロフィールのコレクション操作を提供する。
// 全ての読み書きはゲートウェイを経由し、スキーマ未作成時の縮退ポリシーに従う。
package content

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/confide/internal/model"
)

// Collection はゲートウェイのコレクション操作。gateway.Gatewayが実装する。
type Collection interface {
	List(ctx context.Context, collection string, q model.Query) []model.Record
	GetByID(ctx context.Context, collection, id string) (model.Record, bool)
	Insert(ctx context.Context, collection string, record model.Record) (model.Record, error)
	Update(ctx context.Context, collection, id string, patch model.Record) (model.Record, error)
	Delete(ctx context.Context, collection, id string) error
	// RequireWritable は所有者確認の事前読み取りより前に書き込み可否を判定する。
	RequireWritable(ctx context.Context, collection string) error
}

// Sanitizer は投稿本文のサニタイズ。security.ContentSanitizerServiceが実装する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// clock は作成・更新日時の採番に使う。テストで差し替える。
type clock func() time.Time

func newID() string {
	return uuid.New().String()
}

// requireActor はサインイン済みの操作者であることを確認する。
func requireActor(actor *model.Profile) error {
	if actor == nil || actor.ID == "" {
		return model.NewNotAuthenticatedError()
	}
	return nil
}

// canModify は所有者または管理者であるかを返す。
func canModify(actor *model.Profile, ownerID string) bool {
	return actor.IsAdmin() || actor.ID == ownerID
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
