package content

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/confide/internal/model"
)

// maxCommentLength はコメント本文の最大文字数。
const maxCommentLength = 2000

// CommentService はコメントのドメインロジックを提供する。
type CommentService struct {
	store Collection
	plain Sanitizer
	now   clock
}

// NewCommentService はCommentServiceを生成する。
func NewCommentService(store Collection, plain Sanitizer) *CommentService {
	return &CommentService{store: store, plain: plain, now: time.Now}
}

// Create は記事にコメントを投稿する。
func (s *CommentService) Create(ctx context.Context, author *model.Profile, articleID, text string) (*model.Comment, error) {
	if err := requireActor(author); err != nil {
		return nil, err
	}
	if articleID == "" {
		return nil, model.NewInvalidInputError("記事IDは必須です")
	}
	body := s.plain.Sanitize(text)
	if body == "" {
		return nil, model.NewInvalidInputError("コメントは必須です")
	}
	if len([]rune(body)) > maxCommentLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("コメントは%d文字以内で入力してください", maxCommentLength))
	}

	now := s.now()
	c := model.Comment{
		ID:        newID(),
		ArticleID: articleID,
		UserID:    author.ID,
		UserName:  author.DisplayName,
		Content:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, err := s.store.Insert(ctx, model.CollectionComments, commentRecord(c))
	if err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗しました: %w", err)
	}
	created := commentFromRecord(stored)
	return &created, nil
}

// ListByArticle は記事のコメントを新しい順に返す。
func (s *CommentService) ListByArticle(ctx context.Context, articleID string) []model.Comment {
	return s.list(ctx, model.Query{}.Where("article_id", articleID).NewestFirst())
}

// ListAll は全てのコメントを新しい順に返す。
func (s *CommentService) ListAll(ctx context.Context) []model.Comment {
	return s.list(ctx, model.Query{}.NewestFirst())
}

// Delete はコメントを削除する。投稿者または管理者のみ削除できる。
func (s *CommentService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.store.RequireWritable(ctx, model.CollectionComments); err != nil {
		return err
	}
	rec, ok := s.store.GetByID(ctx, model.CollectionComments, id)
	if !ok {
		return model.NewRecordNotFoundError(model.CollectionComments, id)
	}
	if !canModify(actor, rec.String("user_id")) {
		return model.NewForbiddenError()
	}
	if err := s.store.Delete(ctx, model.CollectionComments, id); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *CommentService) list(ctx context.Context, q model.Query) []model.Comment {
	records := s.store.List(ctx, model.CollectionComments, q)
	comments := make([]model.Comment, 0, len(records))
	for _, rec := range records {
		comments = append(comments, commentFromRecord(rec))
	}
	return comments
}

func commentFromRecord(rec model.Record) model.Comment {
	return model.Comment{
		ID:        rec.String("id"),
		ArticleID: rec.String("article_id"),
		UserID:    rec.String("user_id"),
		UserName:  rec.String("user_name"),
		Content:   rec.String("content"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}
}

func commentRecord(c model.Comment) model.Record {
	return model.Record{
		"id":         c.ID,
		"article_id": c.ArticleID,
		"user_id":    c.UserID,
		"user_name":  c.UserName,
		"content":    c.Content,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}
