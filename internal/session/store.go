// Package session は現在のidentityとプロフィールの状態を保持し、
// 認証プロバイダーのidentity変更通知に追従させる。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/confide/internal/metrics"
	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/profile"
)

// State はセッションの状態。
type State string

const (
	StateIdle          State = "idle"
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Snapshot はある時点のセッション状態。
// Profileが存在する場合、Profile.IDはIdentity.IDと一致する。
type Snapshot struct {
	State     State           `json:"state"`
	Identity  *model.Identity `json:"-"`
	Profile   *model.Profile  `json:"profile"`
	IsLoading bool            `json:"is_loading"`
}

// Authenticated はサインイン済みでプロフィールが確定しているかを返す。
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Profile != nil
}

// Generation は解決処理の世代。Beginのたびに増加する。
type Generation uint64

// Store はセッション状態を保持する。
// 状態遷移とリスナー通知は遷移順に直列化される。
// リスナーからStoreの状態を変更してはならない（Snapshotの参照は可）。
type Store struct {
	mu        sync.RWMutex
	snap      Snapshot
	gen       Generation
	listeners map[uint64]func(Snapshot)
	nextID    uint64

	notifyMu sync.Mutex

	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewStore はIdle状態のStoreを生成する。
func NewStore(logger *slog.Logger, collector metrics.MetricsCollector) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Store{
		snap:      Snapshot{State: StateIdle, IsLoading: true},
		listeners: make(map[uint64]func(Snapshot)),
		logger:    logger,
		metrics:   collector,
	}
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe は状態変更のリスナーを登録し、登録解除関数を返す。
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Begin はLoadingへ遷移し、新しい世代を返す。
// 以前の世代の解決結果はResolveで破棄される。
func (s *Store) Begin() Generation {
	var gen Generation
	s.transition(func() bool {
		s.gen++
		gen = s.gen
		s.snap = Snapshot{
			State:     StateLoading,
			Identity:  s.snap.Identity,
			Profile:   s.snap.Profile,
			IsLoading: true,
		}
		return true
	})
	return gen
}

// Resolve はgenが現在の世代である場合に限り解決結果を反映する。
// identityがnilの場合はAnonymousに遷移する。反映した場合はtrueを返す。
// プロフィールがないかidentityと一致しない場合は合成プロフィールで確定させ、
// Loadingのまま残さない。
func (s *Store) Resolve(gen Generation, identity *model.Identity, p *model.Profile) bool {
	committed := false
	s.transition(func() bool {
		if gen != s.gen {
			s.logger.Debug("discarding stale resolution",
				slog.Uint64("generation", uint64(gen)),
				slog.Uint64("current", uint64(s.gen)),
			)
			s.metrics.RecordStaleDiscard()
			return false
		}
		if identity == nil {
			s.snap = Snapshot{State: StateAnonymous}
			committed = true
			return true
		}
		if p == nil || p.ID != identity.ID {
			s.logger.Error("profile does not match identity, committing fallback",
				slog.String("user_id", identity.ID),
			)
			p = profile.Fallback(*identity, "")
		}
		id := *identity
		s.snap = Snapshot{
			State:    StateAuthenticated,
			Identity: &id,
			Profile:  p,
		}
		committed = true
		return true
	})
	return committed
}

// Clear はAnonymousへ遷移し、進行中の解決結果を全て無効にする。
func (s *Store) Clear() {
	s.transition(func() bool {
		s.gen++
		s.snap = Snapshot{State: StateAnonymous}
		return true
	})
}

// Invalidate は状態を変えずに世代だけを進める。破棄時に使用する。
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// Wait はLoading以外の状態になるまで待ち、その時点の状態を返す。
func (s *Store) Wait(ctx context.Context) (Snapshot, error) {
	ch := make(chan Snapshot, 1)
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		if snap.IsLoading {
			return
		}
		select {
		case ch <- snap:
		default:
		}
	})
	defer unsubscribe()

	if snap := s.Snapshot(); !snap.IsLoading {
		return snap, nil
	}

	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// transition はapplyで状態を変更し、変更があればリスナーへ通知する。
func (s *Store) transition(apply func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := apply()
	snap := s.snap
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	if changed {
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.metrics.RecordTransition(string(snap.State))
	for _, fn := range listeners {
		fn(snap)
	}
}
