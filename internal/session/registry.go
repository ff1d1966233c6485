package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleTTL は未使用のクライアントセッションを破棄するまでの時間。
const DefaultIdleTTL = 30 * time.Minute

// ManagerFactory はクライアントIDに対応するManagerを生成する。
type ManagerFactory func(clientID string) *Manager

type registryEntry struct {
	manager  *Manager
	once     sync.Once
	lastSeen time.Time
}

// Registry はクライアントごとのManagerを保持する。
// 1クライアントにつき1つのStoreが存在する。
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory ManagerFactory
	idleTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry はRegistryを生成する。idleTTLが0以下の場合はDefaultIdleTTLを使用する。
func NewRegistry(factory ManagerFactory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Acquire はclientIDのManagerを返す。初回はManagerを生成して初期化を完了させる。
func (r *Registry) Acquire(ctx context.Context, clientID string) *Manager {
	r.mu.Lock()
	e, ok := r.entries[clientID]
	if !ok {
		e = &registryEntry{manager: r.factory(clientID)}
		r.entries[clientID] = e
	}
	e.lastSeen = r.now()
	r.mu.Unlock()

	e.once.Do(func() {
		e.manager.Start(ctx)
	})
	return e.manager
}

// Len は保持しているクライアント数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep はidleTTLを超えて使われていないManagerを破棄し、破棄した数を返す。
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Manager
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.manager)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, m := range expired {
		m.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("evicted idle client sessions", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Run はctxがキャンセルされるまでinterval間隔でSweepを実行する。
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close は全てのManagerを破棄する。
func (r *Registry) Close() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.entries))
	for id, e := range r.entries {
		managers = append(managers, e.manager)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
