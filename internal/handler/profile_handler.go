package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confide/internal/content"
	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	List(ctx context.Context) []*model.Profile
	Get(ctx context.Context, id string) (*model.Profile, error)
	UpdateOwn(ctx context.Context, actor *model.Profile, in content.ProfileUpdate) (*model.Profile, error)
	SetRole(ctx context.Context, id string, role string) (*model.Profile, error)
}

// ProfileHandler はプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// List はプロフィール一覧を返す。
// GET /api/profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.List(r.Context())))
}

// Get はプロフィールを1件返す。
// GET /api/profiles/{id}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateMe はサインイン中のユーザー自身のプロフィールを更新し、
// セッションのプロフィールを再解決する。
// PATCH /api/profiles/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in content.ProfileUpdate
	if !decodeJSON(w, r, &in) {
		return
	}

	updated, err := h.service.UpdateOwn(r.Context(), actor, in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		if refreshed := sess.Refetch(r.Context()); refreshed == nil {
			slog.Warn("profile refetch after update returned no profile",
				slog.String("user_id", actor.ID),
			)
		}
	}

	writeJSON(w, http.StatusOK, updated)
}

// SetRole はプロフィールの権限を変更する。管理者用。
// PUT /api/admin/profiles/{id}/role
func (h *ProfileHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.SetRole(r.Context(), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Me はサインイン中のユーザー自身のプロフィールを返す。
// GET /api/profiles/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, actor)
}
