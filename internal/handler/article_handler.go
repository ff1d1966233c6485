package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confide/internal/content"
	"github.com/hitoshi/confide/internal/middleware"
	"github.com/hitoshi/confide/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	Create(ctx context.Context, author *model.Profile, in content.ArticleInput) (*model.Article, error)
	List(ctx context.Context) []model.Article
	ListPublished(ctx context.Context) []model.Article
	ListFeatured(ctx context.Context) []model.Article
	ListByAuthor(ctx context.Context, authorID string) []model.Article
	Get(ctx context.Context, id string) (*model.Article, error)
	Update(ctx context.Context, actor *model.Profile, id string, patch content.ArticlePatch) (*model.Article, error)
	SetPublished(ctx context.Context, id string, published bool) (*model.Article, error)
	Delete(ctx context.Context, actor *model.Profile, id string) error
}

// ArticleHandler は記事のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

// setPublishedRequest は公開状態変更リクエストのボディ。
type setPublishedRequest struct {
	Published *bool `json:"published"`
}

// ListPublished は公開済み記事の一覧を返す。
// GET /api/articles
func (h *ArticleHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListPublished(r.Context())))
}

// ListFeatured は注目記事の一覧を返す。
// GET /api/articles/featured
func (h *ArticleHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListFeatured(r.Context())))
}

// ListAll は下書きを含む全記事を返す。管理者用。
// GET /api/admin/articles
func (h *ArticleHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newListResponse(h.service.List(r.Context())))
}

// ListMine はサインイン中のユーザーが書いた記事を返す。
// GET /api/articles/mine
func (h *ArticleHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(h.service.ListByAuthor(r.Context(), actor.ID)))
}

// Get は記事を1件返す。未公開の記事は作成者と管理者にのみ返す。
// GET /api/articles/{id}
func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	article, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if !article.Published && !canViewDraft(r, article.AuthorID) {
		middleware.WriteErrorResponse(w, http.StatusNotFound,
			model.NewRecordNotFoundError(model.CollectionArticles, article.ID))
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// Create は記事を作成する。
// POST /api/articles
func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in content.ArticleInput
	if !decodeJSON(w, r, &in) {
		return
	}

	article, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, article)
}

// Update は記事を部分更新する。作成者または管理者のみ。
// PATCH /api/articles/{id}
func (h *ArticleHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var patch content.ArticlePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	article, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// SetPublished は記事の公開状態を変更する。管理者用。
// PUT /api/admin/articles/{id}/published
func (h *ArticleHandler) SetPublished(w http.ResponseWriter, r *http.Request) {
	var req setPublishedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Published == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("publishedは必須です"))
		return
	}

	article, err := h.service.SetPublished(r.Context(), chi.URLParam(r, "id"), *req.Published)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// Delete は記事を削除する。作成者または管理者のみ。
// DELETE /api/articles/{id}
func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// canViewDraft は未公開記事を閲覧できるかを返す。
// 公開ルートでは認証を必須にしないため、確定済みのセッションのみを見る。
func canViewDraft(r *http.Request, authorID string) bool {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return false
	}
	snap := sess.Snapshot()
	if !snap.Authenticated() {
		return false
	}
	return snap.Profile.IsAdmin() || snap.Profile.ID == authorID
}
