package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/profile"
	"github.com/hitoshi/confide/internal/provider"
)

// DefaultProviderTimeout は認証プロバイダー呼び出し1回あたりのタイムアウト。
const DefaultProviderTimeout = 10 * time.Second

// Resolver はidentityからプロフィールを解決するインターフェース。
// profile.Resolverが実装する。
type Resolver interface {
	Resolve(ctx context.Context, identity model.Identity) *model.Profile
	Register(ctx context.Context, identity model.Identity, in profile.RegisterInput) *model.Profile
}

// Config はManagerの設定。
type Config struct {
	ProviderTimeout time.Duration
	InviteCode      string // 空の場合は招待コードを検証しない
}

// Manager は認証プロバイダーのidentity変更通知を購読し、Storeを更新する。
// ログイン・登録・ログアウト・再取得の操作も提供する。
type Manager struct {
	auth     provider.AuthProvider
	resolver Resolver
	store    *Store
	config   Config
	logger   *slog.Logger

	mu          sync.Mutex
	started     bool
	closed      bool
	unsubscribe func()

	// 非同期解決に使うコンテキスト。Closeでキャンセルする。
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager はManagerを生成する。購読はStartで開始する。
func NewManager(auth provider.AuthProvider, resolver Resolver, store *Store, config Config, logger *slog.Logger) *Manager {
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		auth:     auth,
		resolver: resolver,
		store:    store,
		config:   config,
		logger:   logger,
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Start はidentity変更通知を購読した後、現在のidentityを取得して初期状態を確定する。
// 2回目以降の呼び出しは何もしない。
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.unsubscribe = m.auth.OnIdentityChange(m.handleEvent)
	m.mu.Unlock()

	m.refresh(ctx)
}

// Close は購読を解除し、進行中の解決結果を無効にする。
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.store.Invalidate()
	m.cancel()
	m.wg.Wait()
}

// Snapshot は現在のセッション状態を返す。
func (m *Manager) Snapshot() Snapshot {
	return m.store.Snapshot()
}

// Subscribe はセッション状態変更のリスナーを登録する。
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.store.Subscribe(fn)
}

// Wait はセッション状態が確定するまで待つ。
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	return m.store.Wait(ctx)
}

// Refetch は現在のidentityを取得し直してプロフィールを再解決する。
// 未サインインの場合はnilを返す。
func (m *Manager) Refetch(ctx context.Context) *model.Profile {
	return m.refresh(ctx)
}

// Login はメールアドレスとパスワードでサインインし、解決したプロフィールを返す。
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.ErrInvalidCredentials
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	identity, err := m.auth.SignIn(callCtx, email, password)
	cancel()
	if err != nil {
		return nil, providerError("sign in", err)
	}
	if identity == nil {
		return nil, fmt.Errorf("sign in: %w", model.ErrProviderUnavailable)
	}

	gen := m.store.Begin()
	p := m.resolve(ctx, *identity)
	m.store.Resolve(gen, identity, p)

	m.logger.Info("user signed in", slog.String("user_id", identity.ID))
	return p, nil
}

// Register は招待コードを検証した上でidentityを作成し、プロフィール行を作成する。
func (m *Manager) Register(ctx context.Context, email, password, inviteCode, displayName string) (*model.Profile, error) {
	if m.config.InviteCode != "" && strings.TrimSpace(inviteCode) != m.config.InviteCode {
		return nil, &model.RegistrationRejectedError{Reason: "invalid invite code"}
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &model.RegistrationRejectedError{Reason: "invalid email address"}
	}
	displayName = strings.TrimSpace(displayName)

	var metadata map[string]string
	if displayName != "" {
		metadata = map[string]string{"display_name": displayName}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	identity, err := m.auth.SignUp(callCtx, email, password, metadata)
	cancel()
	if err != nil {
		return nil, providerError("sign up", err)
	}
	if identity == nil {
		return nil, fmt.Errorf("sign up: %w", model.ErrProviderUnavailable)
	}

	gen := m.store.Begin()
	resolveCtx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	p := m.resolver.Register(resolveCtx, *identity, profile.RegisterInput{DisplayName: displayName})
	cancel()
	m.store.Resolve(gen, identity, p)

	m.logger.Info("user registered", slog.String("user_id", identity.ID))
	return p, nil
}

// Logout はサインアウトする。プロバイダーの呼び出しに失敗しても
// ローカルのセッション状態はAnonymousにし、エラーを返す。
func (m *Manager) Logout(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	err := m.auth.SignOut(callCtx)
	cancel()

	m.store.Clear()
	if err != nil {
		m.logger.Warn("sign out failed, cleared local session",
			slog.String("error", err.Error()),
		)
		return providerError("sign out", err)
	}
	return nil
}

// handleEvent はプロバイダーからのidentity変更通知を処理する。
// 世代は通知の発行順に確保し、解決は非同期に行う。
func (m *Manager) handleEvent(ev model.IdentityEvent) {
	switch ev.Kind {
	case model.EventSignedOut:
		m.store.Clear()
	case model.EventSignedIn:
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.wg.Add(1)
		m.mu.Unlock()

		gen := m.store.Begin()
		var identity *model.Identity
		if ev.Identity != nil {
			id := *ev.Identity
			identity = &id
		}
		go func() {
			defer m.wg.Done()
			if identity == nil {
				identity = m.currentIdentity(m.baseCtx)
			}
			if identity == nil {
				m.store.Resolve(gen, nil, nil)
				return
			}
			p := m.resolve(m.baseCtx, *identity)
			m.store.Resolve(gen, identity, p)
		}()
	default:
		m.logger.Warn("ignoring unknown identity event", slog.String("kind", string(ev.Kind)))
	}
}

// refresh は初期化・再取得の共通処理。
func (m *Manager) refresh(ctx context.Context) *model.Profile {
	gen := m.store.Begin()

	identity := m.currentIdentity(ctx)
	if identity == nil {
		m.store.Resolve(gen, nil, nil)
		return nil
	}

	p := m.resolve(ctx, *identity)
	if m.store.Resolve(gen, identity, p) {
		return p
	}

	// 後続のイベントに追い越された。その確定結果を返す。
	// Closeで世代だけが進んだ場合も待ち続けないよう、baseCtxの終了でも打ち切る。
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	snap, err := m.store.Wait(waitCtx)
	if err != nil || !snap.Authenticated() {
		return nil
	}
	return snap.Profile
}

// currentIdentity は現在のidentityを返す。エラーやタイムアウトは未サインインとして扱う。
func (m *Manager) currentIdentity(ctx context.Context) *model.Identity {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	defer cancel()

	identity, err := m.auth.CurrentIdentity(ctx)
	if err != nil {
		m.logger.Warn("failed to fetch current identity",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return identity
}

func (m *Manager) resolve(ctx context.Context, identity model.Identity) *model.Profile {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProviderTimeout)
	defer cancel()
	return m.resolver.Resolve(ctx, identity)
}

// providerError はタイムアウトをErrProviderUnavailableとして包む。
func providerError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, model.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
