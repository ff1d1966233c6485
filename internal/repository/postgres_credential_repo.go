package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/confide/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	return r.findOne(ctx,
		`SELECT user_id, email, password_hash, metadata, created_at
		 FROM credentials
		 WHERE lower(email) = lower($1)`,
		email,
	)
}

// FindByUserID は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.Credential, error) {
	return r.findOne(ctx,
		`SELECT user_id, email, password_hash, metadata, created_at
		 FROM credentials
		 WHERE user_id = $1`,
		userID,
	)
}

// Create は認証情報を作成する。
func (r *PostgresCredentialRepo) Create(ctx context.Context, credential *model.Credential) error {
	metadata := credential.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal credential metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, email, password_hash, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		credential.UserID, credential.Email, credential.PasswordHash, string(raw), credential.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepo) findOne(ctx context.Context, query string, arg string) (*model.Credential, error) {
	c := &model.Credential{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&c.UserID, &c.Email, &c.PasswordHash, &metadata, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	c.Metadata = map[string]string{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal credential metadata: %w", err)
		}
	}
	return c, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
