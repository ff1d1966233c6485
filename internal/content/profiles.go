package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/profile"
)

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	DisplayName *string            `json:"display_name"`
	Bio         *string            `json:"bio"`
	AvatarURL   *string            `json:"avatar_url"`
	Subjects    *[]string          `json:"subjects"`
	Likes       *[]string          `json:"likes"`
	Dislikes    *[]string          `json:"dislikes"`
	Interests   *[]string          `json:"interests"`
	SocialLinks *map[string]string `json:"social_links"`
}

// ProfileService はプロフィールのコレクション操作を提供する。
type ProfileService struct {
	store Collection
	plain Sanitizer
	now   clock
}

// NewProfileService はProfileServiceを生成する。
func NewProfileService(store Collection, plain Sanitizer) *ProfileService {
	return &ProfileService{store: store, plain: plain, now: time.Now}
}

// List は全てのプロフィールを新しい順に返す。
func (s *ProfileService) List(ctx context.Context) []*model.Profile {
	records := s.store.List(ctx, model.CollectionProfiles, model.Query{}.NewestFirst())
	profiles := make([]*model.Profile, 0, len(records))
	for _, rec := range records {
		profiles = append(profiles, profile.FromRecord(rec))
	}
	return profiles
}

// Get は指定IDのプロフィールを返す。
func (s *ProfileService) Get(ctx context.Context, id string) (*model.Profile, error) {
	rec, ok := s.store.GetByID(ctx, model.CollectionProfiles, id)
	if !ok {
		return nil, model.NewRecordNotFoundError(model.CollectionProfiles, id)
	}
	return profile.FromRecord(rec), nil
}

// UpdateOwn は操作者自身のプロフィールを更新する。
// プロフィール行がまだ存在しない場合（合成プロフィールの場合）は作成する。
func (s *ProfileService) UpdateOwn(ctx context.Context, actor *model.Profile, in ProfileUpdate) (*model.Profile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	rec := model.Record{"updated_at": s.now()}
	if in.DisplayName != nil {
		name := s.plain.Sanitize(*in.DisplayName)
		if name == "" {
			return nil, model.NewInvalidInputError("表示名は必須です")
		}
		rec["display_name"] = name
	}
	if in.Bio != nil {
		rec["bio"] = s.plain.Sanitize(*in.Bio)
	}
	if in.AvatarURL != nil {
		rec["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if in.Subjects != nil {
		rec["subjects"] = cleanTags(*in.Subjects)
	}
	if in.Likes != nil {
		rec["likes"] = cleanTags(*in.Likes)
	}
	if in.Dislikes != nil {
		rec["dislikes"] = cleanTags(*in.Dislikes)
	}
	if in.Interests != nil {
		rec["interests"] = cleanTags(*in.Interests)
	}
	if in.SocialLinks != nil {
		links := make(map[string]string, len(*in.SocialLinks))
		for k, v := range *in.SocialLinks {
			if v = strings.TrimSpace(v); v != "" {
				links[k] = v
			}
		}
		rec["social_links"] = links
	}

	if _, exists := s.store.GetByID(ctx, model.CollectionProfiles, actor.ID); !exists {
		base := profile.ToRecord(actor)
		base["role"] = string(model.RoleUser)
		base["created_at"] = s.now()
		for k, v := range rec {
			base[k] = v
		}
		stored, err := s.store.Insert(ctx, model.CollectionProfiles, base)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
		}
		return profile.FromRecord(stored), nil
	}

	stored, err := s.store.Update(ctx, model.CollectionProfiles, actor.ID, rec)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return profile.FromRecord(stored), nil
}

// SetRole はプロフィールの権限を変更する。管理者操作。
func (s *ProfileService) SetRole(ctx context.Context, id string, role string) (*model.Profile, error) {
	if role != string(model.RoleAdmin) && role != string(model.RoleUser) {
		return nil, model.NewInvalidInputError("roleはadminまたはuserを指定してください")
	}
	stored, err := s.store.Update(ctx, model.CollectionProfiles, id, model.Record{
		"role":       role,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("権限の変更に失敗しました: %w", err)
	}
	return profile.FromRecord(stored), nil
}
