package identity

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/provider"
)

// LocalProvider は1クライアント分のprovider.AuthProvider実装。
// サインイン・サインアウトが成功すると、呼び出したgoroutine上で
// 購読者へ順に通知する。
type LocalProvider struct {
	service  *Service
	clientID string

	mu        sync.Mutex
	listeners map[int]func(model.IdentityEvent)
	nextID    int

	// 通知の順序を発行順に揃える。
	emitMu sync.Mutex
}

func newLocalProvider(service *Service, clientID string) *LocalProvider {
	return &LocalProvider{
		service:   service,
		clientID:  clientID,
		listeners: make(map[int]func(model.IdentityEvent)),
	}
}

// ClientID はこのプロバイダーが担当するクライアントIDを返す。
func (p *LocalProvider) ClientID() string {
	return p.clientID
}

// CurrentIdentity は現在サインイン中のidentityを返す。未サインインの場合はnil。
func (p *LocalProvider) CurrentIdentity(ctx context.Context) (*model.Identity, error) {
	credential, err := p.service.CurrentCredential(ctx, p.clientID)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, nil
	}
	identity := credential.Identity()
	return &identity, nil
}

// SignIn は認証情報を検証し、サインイン状態を発行する。
func (p *LocalProvider) SignIn(ctx context.Context, email, secret string) (*model.Identity, error) {
	credential, err := p.service.Authenticate(ctx, email, secret)
	if err != nil {
		return nil, err
	}
	return p.open(ctx, credential)
}

// SignUp は認証情報を作成してサインインする。
func (p *LocalProvider) SignUp(ctx context.Context, email, secret string, metadata map[string]string) (*model.Identity, error) {
	credential, err := p.service.CreateAccount(ctx, email, secret, metadata)
	if err != nil {
		return nil, err
	}
	return p.open(ctx, credential)
}

// SignOut はクライアントのサインイン状態を破棄する。
func (p *LocalProvider) SignOut(ctx context.Context) error {
	if err := p.service.CloseSessions(ctx, p.clientID); err != nil {
		return err
	}
	p.service.logger.Info("client signed out", slog.String("client_id", p.clientID))
	p.emit(model.IdentityEvent{Kind: model.EventSignedOut})
	return nil
}

// OnIdentityChange はidentity変更通知の購読を登録する。
func (p *LocalProvider) OnIdentityChange(fn func(model.IdentityEvent)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *LocalProvider) open(ctx context.Context, credential *model.Credential) (*model.Identity, error) {
	if _, err := p.service.OpenSession(ctx, p.clientID, credential.UserID); err != nil {
		return nil, err
	}

	identity := credential.Identity()
	p.service.logger.Info("client signed in",
		slog.String("client_id", p.clientID),
		slog.String("user_id", identity.ID),
	)
	event := identity
	p.emit(model.IdentityEvent{Kind: model.EventSignedIn, Identity: &event})
	return &identity, nil
}

func (p *LocalProvider) emit(ev model.IdentityEvent) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.mu.Lock()
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(model.IdentityEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// compile-time interface check
var _ provider.AuthProvider = (*LocalProvider)(nil)
