package profile

import (
	"strings"

	"github.com/hitoshi/confide/internal/model"
)

// DefaultDisplayName は表示名を導出できない場合の表示名。
const DefaultDisplayName = "User"

// FromRecord は保存済みのprofilesレコードをProfileに変換する。
// 欠損フィールドの既定値はここでのみ補完する。
// 旧カラム名（full_name, social_media, profile_picture）も受け付ける。
func FromRecord(rec model.Record) *model.Profile {
	p := &model.Profile{
		ID:          rec.String("id"),
		Email:       rec.String("email"),
		DisplayName: firstString(rec, "display_name", "full_name"),
		Role:        model.ParseRole(rec.String("role")),
		Bio:         rec.String("bio"),
		AvatarURL:   firstString(rec, "avatar_url", "profile_picture"),
		Subjects:    rec.Strings("subjects"),
		Likes:       rec.Strings("likes"),
		Dislikes:    rec.Strings("dislikes"),
		Interests:   rec.Strings("interests"),
		SocialLinks: rec.StringMap("social_links"),
		CreatedAt:   rec.Time("created_at"),
		UpdatedAt:   rec.Time("updated_at"),
	}
	if len(p.SocialLinks) == 0 {
		if legacy := rec.StringMap("social_media"); len(legacy) > 0 {
			p.SocialLinks = legacy
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return p
}

// ToRecord はProfileをprofilesレコードに変換する。
func ToRecord(p *model.Profile) model.Record {
	return model.Record{
		"id":           p.ID,
		"email":        p.Email,
		"display_name": p.DisplayName,
		"role":         string(p.Role),
		"bio":          p.Bio,
		"avatar_url":   p.AvatarURL,
		"subjects":     nonNil(p.Subjects),
		"likes":        nonNil(p.Likes),
		"dislikes":     nonNil(p.Dislikes),
		"interests":    nonNil(p.Interests),
		"social_links": nonNilMap(p.SocialLinks),
		"created_at":   p.CreatedAt,
		"updated_at":   p.UpdatedAt,
	}
}

// Fallback はIdentityからプロフィールを合成する。
// preferredが空でなければ表示名として優先する。
// 同じ入力からは常に同じProfileを返す。
func Fallback(identity model.Identity, preferred string) *model.Profile {
	name := strings.TrimSpace(preferred)
	if name == "" {
		name = DeriveDisplayName(identity)
	}
	return &model.Profile{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: name,
		Role:        model.RoleUser,
		Subjects:    []string{},
		Likes:       []string{},
		Dislikes:    []string{},
		Interests:   []string{},
		SocialLinks: map[string]string{},
		CreatedAt:   identity.CreatedAt,
		UpdatedAt:   identity.CreatedAt,
	}
}

// DeriveDisplayName はメタデータの表示名ヒント、メールアドレスのローカル部、
// DefaultDisplayNameの順で表示名を導出する。
func DeriveDisplayName(identity model.Identity) string {
	if hint := strings.TrimSpace(identity.DisplayNameHint()); hint != "" {
		return hint
	}
	if local, _, ok := strings.Cut(identity.Email, "@"); ok && local != "" {
		return local
	}
	return DefaultDisplayName
}

func firstString(rec model.Record, keys ...string) string {
	for _, k := range keys {
		if v := rec.String(k); v != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
