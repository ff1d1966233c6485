package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/confide/internal/model"
)

// healthTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthTimeout = 3 * time.Second

// StatusReporter はコレクションごとの利用可否を返す。
type StatusReporter interface {
	Status(ctx context.Context, collections ...string) map[string]bool
}

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// StatusHandler はデータベース状態とヘルスチェックのHTTPハンドラー。
type StatusHandler struct {
	reporter StatusReporter
	health   HealthChecker
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(reporter StatusReporter, health HealthChecker) *StatusHandler {
	return &StatusHandler{reporter: reporter, health: health}
}

// collectionStatus はコレクション1件分の状態。
type collectionStatus struct {
	Name       string `json:"name"`
	Accessible bool   `json:"accessible"`
}

// statusResponse はデータベース状態レポート。
type statusResponse struct {
	Ready       bool               `json:"ready"`
	Collections []collectionStatus `json:"collections"`
}

// Status はコレクションごとの利用可否を返す。
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	names := model.Collections()
	result := h.reporter.Status(r.Context(), names...)

	resp := statusResponse{Ready: true, Collections: make([]collectionStatus, 0, len(names))}
	for _, name := range names {
		ok := result[name]
		if !ok {
			resp.Ready = false
		}
		resp.Collections = append(resp.Collections, collectionStatus{Name: name, Accessible: ok})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health はプロセスとDBの疎通を返す。
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
