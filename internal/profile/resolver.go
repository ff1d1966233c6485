// Package profile はIdentityからプロフィールを解決する。
// 解決は失敗しない。保存済みレコードが使えない場合はIdentityから合成する。
package profile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/confide/internal/model"
)

// Records はプロフィール解決に必要なコレクション操作。
// gateway.Gatewayが実装する。
type Records interface {
	GetByID(ctx context.Context, collection, id string) (model.Record, bool)
	Insert(ctx context.Context, collection string, record model.Record) (model.Record, error)
}

// RegisterInput は新規登録時にプロフィールへ保存する値。
type RegisterInput struct {
	DisplayName string
}

// Resolver はIdentityに対応するProfileを返す。
type Resolver struct {
	records Records
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(records Records, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		records: records,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve はidentityのプロフィールを返す。nilは返さない。
func (r *Resolver) Resolve(ctx context.Context, identity model.Identity) *model.Profile {
	rec, ok := r.records.GetByID(ctx, model.CollectionProfiles, identity.ID)
	if !ok {
		r.logger.Debug("profile record unavailable, using fallback",
			slog.String("user_id", identity.ID),
		)
		return Fallback(identity, "")
	}

	p := FromRecord(rec)
	if p.ID != identity.ID {
		r.logger.Warn("profile record id mismatch, using fallback",
			slog.String("user_id", identity.ID),
			slog.String("record_id", p.ID),
		)
		return Fallback(identity, "")
	}
	return complete(p, identity)
}

// Register は新規identityのプロフィール行を作成して返す。
// 作成に失敗した場合は要求された表示名を優先して合成したプロフィールを返す。
func (r *Resolver) Register(ctx context.Context, identity model.Identity, in RegisterInput) *model.Profile {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = DeriveDisplayName(identity)
	}

	now := r.now()
	p := Fallback(identity, name)
	p.CreatedAt = now
	p.UpdatedAt = now

	stored, err := r.records.Insert(ctx, model.CollectionProfiles, ToRecord(p))
	if err != nil {
		r.logger.Warn("failed to create profile, using fallback",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return Fallback(identity, name)
	}

	created := FromRecord(stored)
	if created.ID != identity.ID {
		return Fallback(identity, name)
	}
	return complete(created, identity)
}

// complete は保存済みレコードに欠けている表示名とメールアドレスをidentityから補う。
func complete(p *model.Profile, identity model.Identity) *model.Profile {
	if strings.TrimSpace(p.DisplayName) == "" {
		p.DisplayName = DeriveDisplayName(identity)
	}
	if p.Email == "" {
		p.Email = identity.Email
	}
	return p
}
