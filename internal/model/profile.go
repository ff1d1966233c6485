package model

import "time"

// Role はプロフィールの権限種別。
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole は文字列をRoleに変換する。未知の値はRoleUserとして扱う。
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Profile はユーザープロフィールを表す。
// 保存済みレコード由来（canonical）か、Identityから合成されたもの（fallback）かは
// 構造上区別しない。スライスとマップは常に非nil。
type Profile struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	DisplayName string            `json:"display_name"`
	Role        Role              `json:"role"`
	Bio         string            `json:"bio,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Subjects    []string          `json:"subjects"`
	Likes       []string          `json:"likes"`
	Dislikes    []string          `json:"dislikes"`
	Interests   []string          `json:"interests"`
	SocialLinks map[string]string `json:"social_links"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IsAdmin は管理者権限を持つかを返す。
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
