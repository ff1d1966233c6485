// Package gateway は名前付きコレクションへの全ての読み書きを仲介する。
//
// 読み取りはスキーマ未作成やバックエンド障害時に空の結果へ縮退し、
// 書き込みは失敗を呼び出し側に返す。書き込みの黙った無視はしない。
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/confide/internal/metrics"
	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/provider"
)

// DefaultTimeout はバックエンド呼び出し1回あたりのタイムアウト。
const DefaultTimeout = 10 * time.Second

// Accessor はコレクションの利用可否判定のインターフェース。
// provisioning.Probeが実装する。
type Accessor interface {
	IsAccessible(ctx context.Context, collection string) bool
}

// Gateway は縮退ポリシーを適用したコレクション操作を提供する。
type Gateway struct {
	backend provider.DataBackend
	probe   Accessor
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewGateway はGatewayを生成する。timeoutが0以下の場合はDefaultTimeoutを使用する。
func NewGateway(backend provider.DataBackend, probe Accessor, timeout time.Duration, logger *slog.Logger, collector metrics.MetricsCollector) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Gateway{
		backend: backend,
		probe:   probe,
		timeout: timeout,
		logger:  logger,
		metrics: collector,
	}
}

// List は条件に一致するレコードを返す。
// コレクションが利用不可、またはバックエンドエラーの場合は空のスライスを返す。
func (g *Gateway) List(ctx context.Context, collection string, q model.Query) []model.Record {
	if !g.probe.IsAccessible(ctx, collection) {
		g.logger.Warn("collection not accessible, returning empty list",
			slog.String("collection", collection),
		)
		g.metrics.RecordDegradedRead(collection, "unprovisioned")
		return []model.Record{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	records, err := g.backend.Read(ctx, collection, q)
	if err != nil {
		g.logger.Error("failed to list records",
			slog.String("collection", collection),
			slog.String("kind", provider.Classify(err).String()),
			slog.String("error", err.Error()),
		)
		g.metrics.RecordDegradedRead(collection, "backend_error")
		return []model.Record{}
	}
	if records == nil {
		return []model.Record{}
	}
	return records
}

// GetByID は指定IDのレコードを返す。
// 見つからない場合、コレクションが利用不可の場合、バックエンドエラーの場合はfalseを返す。
func (g *Gateway) GetByID(ctx context.Context, collection, id string) (model.Record, bool) {
	if !g.probe.IsAccessible(ctx, collection) {
		g.logger.Warn("collection not accessible, returning no record",
			slog.String("collection", collection),
			slog.String("id", id),
		)
		g.metrics.RecordDegradedRead(collection, "unprovisioned")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	records, err := g.backend.Read(ctx, collection, model.Query{}.Where("id", id).WithLimit(1))
	if err != nil {
		g.logger.Error("failed to fetch record by id",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.String("kind", provider.Classify(err).String()),
			slog.String("error", err.Error()),
		)
		g.metrics.RecordDegradedRead(collection, "backend_error")
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	return records[0], true
}

// Insert はレコードを作成する。
// コレクションが利用不可の場合は*model.StoreUnprovisionedErrorを返し、バックエンドは呼ばない。
// バックエンドのエラーはそのまま返す。
func (g *Gateway) Insert(ctx context.Context, collection string, record model.Record) (model.Record, error) {
	if err := g.checkWritable(ctx, collection, "insert"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.backend.Insert(ctx, collection, record)
}

// Update は指定IDのレコードを部分更新する。ゲートの扱いはInsertと同じ。
func (g *Gateway) Update(ctx context.Context, collection, id string, patch model.Record) (model.Record, error) {
	if err := g.checkWritable(ctx, collection, "update"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.backend.Update(ctx, collection, id, patch)
}

// Delete は指定IDのレコードを削除する。ゲートの扱いはInsertと同じ。
func (g *Gateway) Delete(ctx context.Context, collection, id string) error {
	if err := g.checkWritable(ctx, collection, "delete"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.backend.Delete(ctx, collection, id)
}

// Status は全コレクションの利用可否を返す。Accessorが一括判定に対応していない場合は個別に判定する。
func (g *Gateway) Status(ctx context.Context, collections ...string) map[string]bool {
	if s, ok := g.probe.(interface {
		Status(ctx context.Context, collections ...string) map[string]bool
	}); ok {
		return s.Status(ctx, collections...)
	}
	result := make(map[string]bool, len(collections))
	for _, c := range collections {
		result[c] = g.probe.IsAccessible(ctx, c)
	}
	return result
}

// RequireWritable はコレクションへ書き込めるかを判定する。
// 所有者確認などの事前読み取りより前に呼び、スキーマ未作成を「見つからない」と
// 取り違えないようにする。利用不可の場合は*model.StoreUnprovisionedErrorを返す。
func (g *Gateway) RequireWritable(ctx context.Context, collection string) error {
	return g.checkWritable(ctx, collection, "write")
}

// checkWritable は呼び出し側のコンテキストが終了している場合も書き込み不可とする。
// 判定が打ち切られたときのプローブの楽観的な結果で書き込みを通さないため。
func (g *Gateway) checkWritable(ctx context.Context, collection, op string) error {
	accessible := g.probe.IsAccessible(ctx, collection)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, collection, err)
	}
	if accessible {
		return nil
	}
	g.logger.Warn("rejecting write to unprovisioned collection",
		slog.String("collection", collection),
		slog.String("op", op),
	)
	g.metrics.RecordRejectedWrite(collection)
	return &model.StoreUnprovisionedError{Collection: collection}
}
