package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/session"
)

const (
	// eventsWriteTimeout はスナップショット1件の送信タイムアウト。
	eventsWriteTimeout = 5 * time.Second
	// eventsBuffer は送信待ちスナップショットの上限。溢れた場合は最新のみ保持する。
	eventsBuffer = 16
)

// SessionHandler はセッション状態の参照と変更通知のHTTPハンドラー。
type SessionHandler struct {
	originPatterns []string
	logger         *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
// originPatternsはWebSocket接続を許可するOriginのパターン。
func NewSessionHandler(originPatterns []string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{originPatterns: originPatterns, logger: logger}
}

// Snapshot は現在のセッション状態を返す。
// ?wait=true の場合は状態が確定するまで待つ。
// GET /api/session
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		snap, err := sess.Wait(r.Context())
		if err != nil {
			middleware.WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// Events はセッション状態の変化をWebSocketでストリーミングする。
// 接続直後に現在のスナップショットを1件送信し、以降は変更のたびに送信する。
// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan session.Snapshot, eventsBuffer)
	unsubscribe := sess.Subscribe(func(snap session.Snapshot) {
		select {
		case updates <- snap:
		default:
			// 送信が追いつかない場合は古いものを捨てて最新を入れる
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	// クライアントからのメッセージは読み捨て、切断検知にのみ使う
	ctx = conn.CloseRead(ctx)

	clientID := middleware.ClientIDFromContext(r.Context())
	h.logger.Debug("session event stream opened", slog.String("client_id", clientID))

	if err := h.write(ctx, conn, sess.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closed")
			h.logger.Debug("session event stream closed", slog.String("client_id", clientID))
			return
		case snap := <-updates:
			if err := h.write(ctx, conn, snap); err != nil {
				h.logger.Debug("session event write failed",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
				conn.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func (h *SessionHandler) write(ctx context.Context, conn *websocket.Conn, snap session.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, eventsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}
