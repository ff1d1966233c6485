package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	Create(ctx context.Context, author *model.Profile, articleID, text string) (*model.Comment, error)
	ListByArticle(ctx context.Context, articleID string) []model.Comment
	ListAll(ctx context.Context) []model.Comment
	Delete(ctx context.Context, actor *model.Profile, id string) error
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	Content string `json:"content"`
}

// ListByArticle は記事のコメント一覧を返す。
// GET /api/articles/{id}/comments
func (h *CommentHandler) ListByArticle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListByArticle(r.Context(), chi.URLParam(r, "id"))))
}

// ListAll は全コメントを返す。管理者用。
// GET /api/admin/comments
func (h *CommentHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListAll(r.Context())))
}

// Create は記事にコメントを投稿する。
// POST /api/articles/{id}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.Create(r.Context(), actor, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Delete はコメントを削除する。
// DELETE /api/comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
