// Package identity はメールアドレスとパスワードによるローカル認証プロバイダーを提供する。
// 認証情報とクライアントごとのサインイン状態はPostgreSQLに保存する。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// DefaultSessionMaxAge はサインイン状態の有効期間（秒）のデフォルト値。
const DefaultSessionMaxAge = 7 * 24 * 60 * 60

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // サインイン状態の有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証情報の検証とサインイン状態の発行を行う。
// クライアントをまたいで共有し、クライアントごとの窓口はForClientで取得する。
type Service struct {
	credentials repository.CredentialRepository
	sessions    repository.AuthSessionRepository
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	credentials repository.CredentialRepository,
	sessions repository.AuthSessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = DefaultSessionMaxAge
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		credentials: credentials,
		sessions:    sessions,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// ForClient は指定クライアントのAuthProviderを返す。
func (s *Service) ForClient(clientID string) *LocalProvider {
	return newLocalProvider(s, clientID)
}

// Authenticate はメールアドレスとパスワードを検証する。
// 不一致・未登録はいずれもmodel.ErrInvalidCredentialsを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Credential, error) {
	credential, err := s.credentials.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if credential == nil {
		return nil, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(credential.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return credential, nil
}

// CreateAccount はパスワードポリシーを検証した上で認証情報を作成する。
func (s *Service) CreateAccount(ctx context.Context, email, password string, metadata map[string]string) (*model.Credential, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &model.RegistrationRejectedError{Reason: "invalid email address"}
	}
	if len([]rune(password)) < MinPasswordLength {
		return nil, &model.RegistrationRejectedError{
			Reason: fmt.Sprintf("password must be at least %d characters", MinPasswordLength),
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &model.RegistrationRejectedError{Reason: "password is too long"}
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	credential := &model.Credential{
		UserID:       uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     copyMetadata(metadata),
		CreatedAt:    s.now(),
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &model.RegistrationRejectedError{Reason: "email already registered"}
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	s.logger.Info("new credential created",
		slog.String("user_id", credential.UserID),
	)
	return credential, nil
}

// OpenSession はクライアントのサインイン状態を発行し永続化する。
func (s *Service) OpenSession(ctx context.Context, clientID, userID string) (*model.AuthSession, error) {
	token, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.AuthSession{
		ID:        token,
		ClientID:  clientID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auth session: %w", err)
	}
	return session, nil
}

// CurrentCredential はクライアントの有効なサインイン状態に対応する認証情報を返す。
// サインインしていない場合はnilを返す。
func (s *Service) CurrentCredential(ctx context.Context, clientID string) (*model.Credential, error) {
	session, err := s.sessions.FindActiveByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find auth session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	credential, err := s.credentials.FindByUserID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return credential, nil
}

// CloseSessions はクライアントのサインイン状態を破棄する。
func (s *Service) CloseSessions(ctx context.Context, clientID string) error {
	if err := s.sessions.DeleteByClientID(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete auth sessions: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
