package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
)

// ConfessionServiceInterface は匿名投稿ハンドラーが必要とするサービスインターフェース。
type ConfessionServiceInterface interface {
	Create(ctx context.Context, author *model.Profile, text string) (*model.Confession, error)
	ListByUser(ctx context.Context, userID string) []model.Confession
	ListAll(ctx context.Context) []model.Confession
	Update(ctx context.Context, actor *model.Profile, id, text string) (*model.Confession, error)
	Delete(ctx context.Context, actor *model.Profile, id string) error
}

// ConfessionHandler は匿名投稿のHTTPハンドラー。
// レスポンスには投稿者IDを含めない。
type ConfessionHandler struct {
	service ConfessionServiceInterface
}

// NewConfessionHandler はConfessionHandlerを生成する。
func NewConfessionHandler(service ConfessionServiceInterface) *ConfessionHandler {
	return &ConfessionHandler{service: service}
}

type confessionRequest struct {
	Content string `json:"content"`
}

// ListMine はサインイン中のユーザーの投稿を返す。
// GET /api/confessions/mine
func (h *ConfessionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListByUser(r.Context(), actor.ID)))
}

// ListAll は全投稿を返す。管理者用。
// GET /api/admin/confessions
func (h *ConfessionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListAll(r.Context())))
}

// Create は投稿を作成する。
// POST /api/confessions
func (h *ConfessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req confessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	confession, err := h.service.Create(r.Context(), actor, req.Content)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, confession)
}

// Update は投稿本文を更新する。投稿者本人のみ。
// PATCH /api/confessions/{id}
func (h *ConfessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req confessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	confession, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confession)
}

// Delete は投稿を削除する。
// DELETE /api/confessions/{id}
func (h *ConfessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
