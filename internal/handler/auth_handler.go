package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
)

// AuthHandler はサインイン・登録・サインアウトのHTTPハンドラー。
// 操作はリクエストに紐づくクライアントセッションに対して行う。
type AuthHandler struct {
	logger *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{logger: logger}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	InviteCode  string `json:"invite_code"`
	DisplayName string `json:"display_name"`
}

// Login はメールアドレスとパスワードでサインインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := sess.Login(r.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			h.logger.Info("login rejected",
				slog.String("client_id", middleware.ClientIDFromContext(r.Context())),
			)
		}
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// Register はアカウントを登録し、そのままサインインする。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := sess.Register(r.Context(), req.Email, req.Password, req.InviteCode, req.DisplayName); err != nil {
		var rejected *model.RegistrationRejectedError
		if errors.As(err, &rejected) {
			h.logger.Info("registration rejected",
				slog.String("client_id", middleware.ClientIDFromContext(r.Context())),
				slog.String("reason", rejected.Reason),
			)
		}
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// Logout はサインアウトする。
// プロバイダーの呼び出しに失敗した場合もローカルの状態は匿名になっているため、
// 警告をログに残した上で成功として扱う。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if err := sess.Logout(r.Context()); err != nil {
		h.logger.Warn("logout completed locally with provider error",
			slog.String("client_id", middleware.ClientIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Refetch は現在のidentityからプロフィールを再解決する。
// POST /api/auth/refetch
func (h *AuthHandler) Refetch(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	sess.Refetch(r.Context())
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
