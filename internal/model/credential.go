package model

import "time"

// Credential はローカル認証プロバイダーが保持するパスワード認証情報。
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Identity は認証情報から外部公開用のIdentityを返す。
func (c *Credential) Identity() Identity {
	return Identity{
		ID:        c.UserID,
		Email:     c.Email,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
	}
}

// AuthSession はクライアントに紐づくサインイン状態を表す。
type AuthSession struct {
	ID        string
	ClientID  string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
