package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/confide/internal/model"
)

// PostgresAuthSessionRepo はPostgreSQLを使用したサインイン状態のリポジトリ。
type PostgresAuthSessionRepo struct {
	db *sql.DB
}

// NewPostgresAuthSessionRepo はPostgresAuthSessionRepoを生成する。
func NewPostgresAuthSessionRepo(db *sql.DB) *PostgresAuthSessionRepo {
	return &PostgresAuthSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresAuthSessionRepo) Create(ctx context.Context, session *model.AuthSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (id, client_id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.ClientID, session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auth session: %w", err)
	}
	return nil
}

// FindActiveByClientID はクライアントの有効なセッションのうち最新のものを返す。
// 期限切れのみの場合はnilを返す。
func (r *PostgresAuthSessionRepo) FindActiveByClientID(ctx context.Context, clientID string) (*model.AuthSession, error) {
	session := &model.AuthSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, user_id, expires_at, created_at
		 FROM auth_sessions
		 WHERE client_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC
		 LIMIT 1`,
		clientID,
	).Scan(&session.ID, &session.ClientID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find auth session: %w", err)
	}

	return session, nil
}

// DeleteByClientID はクライアントの全セッションを削除する。
func (r *PostgresAuthSessionRepo) DeleteByClientID(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE client_id = $1`,
		clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete auth sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuthSessionRepository = (*PostgresAuthSessionRepo)(nil)
