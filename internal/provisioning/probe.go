// Package provisioning はコレクションのスキーマが利用可能かを判定するプローブを提供する。
//
// 判定結果はコレクション単位でキャッシュされる。利用可能と判定した結果は
// プロセス終了まで保持し、利用不可の結果はRetryAfter経過後に再判定する。
// 同一コレクションに対するプローブ読み取りは同時に1つまでに制限される。
package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/confide/internal/metrics"
	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/provider"
)

const (
	// DefaultTimeout はプローブ読み取り1回あたりのタイムアウト。
	DefaultTimeout = 5 * time.Second
	// DefaultRetryAfter は利用不可と判定した結果の保持期間。
	DefaultRetryAfter = 30 * time.Second
	// probeLimit はプローブ読み取りで取得する最大行数。
	probeLimit = 1
)

// Reader はプローブに必要な読み取り操作。
// provider.DataBackendの部分集合として定義する。
type Reader interface {
	Read(ctx context.Context, collection string, q model.Query) ([]model.Record, error)
}

// Config はプローブの設定。
type Config struct {
	Timeout    time.Duration // プローブ読み取りのタイムアウト
	RetryAfter time.Duration // 利用不可結果の保持期間。0以下は無期限
}

// entry はキャッシュされた判定結果。
type entry struct {
	accessible bool
	checkedAt  time.Time
}

// Probe はコレクションのプロビジョニング状態を判定する。
type Probe struct {
	reader  Reader
	config  Config
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]entry
	group singleflight.Group
}

// NewProbe はProbeを生成する。loggerとcollectorはnilの場合デフォルトを使用する。
func NewProbe(reader Reader, config Config, logger *slog.Logger, collector metrics.MetricsCollector) *Probe {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Probe{
		reader:  reader,
		config:  config,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
		cache:   make(map[string]entry),
	}
}

// IsAccessible はコレクションが利用可能かを返す。
// 初回呼び出し時のみバックエンドに問い合わせ、以降はキャッシュを返す。
// このメソッドがエラーやpanicを呼び出し側に伝播することはない。
func (p *Probe) IsAccessible(ctx context.Context, collection string) bool {
	if e, ok := p.cached(collection); ok {
		return e.accessible
	}

	ch := p.group.DoChan(collection, func() (any, error) {
		// 先行する呼び出しが結果を書き込んだ直後に到着した場合
		if e, ok := p.cached(collection); ok {
			return e.accessible, nil
		}
		accessible := p.probe(context.WithoutCancel(ctx), collection)
		p.store(collection, accessible)
		return accessible, nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		// 呼び出し側の都合で待機を打ち切る。プローブ自体は継続し結果はキャッシュされる。
		return true
	}
}

// Status は複数コレクションの利用可否を並行に判定して返す。
func (p *Probe) Status(ctx context.Context, collections ...string) map[string]bool {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result = make(map[string]bool, len(collections))
	)
	for _, c := range collections {
		wg.Add(1)
		go func(collection string) {
			defer wg.Done()
			ok := p.IsAccessible(ctx, collection)
			mu.Lock()
			result[collection] = ok
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return result
}

// Forget はコレクションのキャッシュを破棄し、次回呼び出しで再判定させる。
func (p *Probe) Forget(collection string) {
	p.mu.Lock()
	delete(p.cache, collection)
	p.mu.Unlock()
}

// cached は有効なキャッシュエントリを返す。
func (p *Probe) cached(collection string) (entry, bool) {
	p.mu.RLock()
	e, ok := p.cache[collection]
	p.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if !e.accessible && p.config.RetryAfter > 0 && p.now().Sub(e.checkedAt) >= p.config.RetryAfter {
		return entry{}, false
	}
	return e, true
}

func (p *Probe) store(collection string, accessible bool) {
	p.mu.Lock()
	p.cache[collection] = entry{accessible: accessible, checkedAt: p.now()}
	p.mu.Unlock()
}

// probe はバックエンドに最小限の読み取りを発行し、結果を分類する。
// 予期しないpanicは利用不可として扱う。
func (p *Probe) probe(ctx context.Context, collection string) (accessible bool) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Warn("collection probe panicked",
				slog.String("collection", collection),
				slog.String("panic", fmt.Sprint(rec)),
			)
			accessible = false
		}
		p.metrics.RecordProbe(collection, accessible)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	_, err := p.reader.Read(ctx, collection, model.Query{Limit: probeLimit})
	kind := provider.Classify(err)

	switch kind {
	case provider.KindNone:
		p.logger.Debug("collection accessible", slog.String("collection", collection))
		return true
	case provider.KindSchemaAbsent:
		p.logger.Warn("collection not provisioned",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return false
	default:
		// 通信失敗や権限エラーでは恒久的に無効化しない
		p.logger.Warn("collection probe failed, assuming accessible",
			slog.String("collection", collection),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		return true
	}
}
