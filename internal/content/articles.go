package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/confide/internal/model"
)

// excerptLength は本文から抜粋を生成する際の文字数。
const excerptLength = 150

// ArticleInput は記事作成の入力。
type ArticleInput struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Excerpt   string   `json:"excerpt"`
	Category  string   `json:"category"`
	ImageURL  string   `json:"image_url"`
	Tags      []string `json:"tags"`
	Published bool     `json:"published"`
	Featured  bool     `json:"featured"`
}

// ArticlePatch は記事更新の入力。nilのフィールドは変更しない。
type ArticlePatch struct {
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	Excerpt   *string   `json:"excerpt"`
	Category  *string   `json:"category"`
	ImageURL  *string   `json:"image_url"`
	Tags      *[]string `json:"tags"`
	Published *bool     `json:"published"`
	Featured  *bool     `json:"featured"`
}

// ArticleService は記事のドメインロジックを提供する。
type ArticleService struct {
	store Collection
	html  Sanitizer
	plain Sanitizer
	now   clock
}

// NewArticleService はArticleServiceを生成する。
// htmlは本文用、plainはタイトル・抜粋用のサニタイザー。
func NewArticleService(store Collection, html, plain Sanitizer) *ArticleService {
	return &ArticleService{store: store, html: html, plain: plain, now: time.Now}
}

// Create は記事を作成する。
func (s *ArticleService) Create(ctx context.Context, author *model.Profile, in ArticleInput) (*model.Article, error) {
	if err := requireActor(author); err != nil {
		return nil, err
	}
	title := s.plain.Sanitize(in.Title)
	body := s.html.Sanitize(in.Content)
	if title == "" {
		return nil, model.NewInvalidInputError("タイトルは必須です")
	}
	if strings.TrimSpace(body) == "" {
		return nil, model.NewInvalidInputError("本文は必須です")
	}

	excerpt := s.plain.Sanitize(in.Excerpt)
	if excerpt == "" {
		excerpt = truncateRunes(s.plain.Sanitize(in.Content), excerptLength)
	}

	now := s.now()
	a := model.Article{
		ID:         newID(),
		Title:      title,
		Content:    body,
		Excerpt:    excerpt,
		Category:   s.plain.Sanitize(in.Category),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		Published:  in.Published,
		Featured:   in.Featured,
		ImageURL:   strings.TrimSpace(in.ImageURL),
		Tags:       cleanTags(in.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, err := s.store.Insert(ctx, model.CollectionArticles, articleRecord(a))
	if err != nil {
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	created := articleFromRecord(stored)
	return &created, nil
}

// List は全ての記事を新しい順に返す。
func (s *ArticleService) List(ctx context.Context) []model.Article {
	return s.list(ctx, model.Query{}.NewestFirst())
}

// ListPublished は公開済みの記事を新しい順に返す。
func (s *ArticleService) ListPublished(ctx context.Context) []model.Article {
	return s.list(ctx, model.Query{}.Where("published", true).NewestFirst())
}

// ListFeatured は公開済みかつ注目の記事を新しい順に返す。
func (s *ArticleService) ListFeatured(ctx context.Context) []model.Article {
	return s.list(ctx, model.Query{}.Where("published", true).Where("featured", true).NewestFirst())
}

// ListByAuthor は指定ユーザーの記事を新しい順に返す。
func (s *ArticleService) ListByAuthor(ctx context.Context, authorID string) []model.Article {
	return s.list(ctx, model.Query{}.Where("author_id", authorID).NewestFirst())
}

// Get は指定IDの記事を返す。
func (s *ArticleService) Get(ctx context.Context, id string) (*model.Article, error) {
	rec, ok := s.store.GetByID(ctx, model.CollectionArticles, id)
	if !ok {
		return nil, model.NewRecordNotFoundError(model.CollectionArticles, id)
	}
	a := articleFromRecord(rec)
	return &a, nil
}

// Update は記事を更新する。著者または管理者のみ更新できる。
func (s *ArticleService) Update(ctx context.Context, actor *model.Profile, id string, patch ArticlePatch) (*model.Article, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.store.RequireWritable(ctx, model.CollectionArticles); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, current.AuthorID) {
		return nil, model.NewForbiddenError()
	}

	rec := model.Record{"updated_at": s.now()}
	if patch.Title != nil {
		title := s.plain.Sanitize(*patch.Title)
		if title == "" {
			return nil, model.NewInvalidInputError("タイトルは必須です")
		}
		rec["title"] = title
	}
	if patch.Content != nil {
		body := s.html.Sanitize(*patch.Content)
		if strings.TrimSpace(body) == "" {
			return nil, model.NewInvalidInputError("本文は必須です")
		}
		rec["content"] = body
	}
	if patch.Excerpt != nil {
		rec["excerpt"] = s.plain.Sanitize(*patch.Excerpt)
	}
	if patch.Category != nil {
		rec["category"] = s.plain.Sanitize(*patch.Category)
	}
	if patch.ImageURL != nil {
		rec["image_url"] = strings.TrimSpace(*patch.ImageURL)
	}
	if patch.Tags != nil {
		rec["tags"] = cleanTags(*patch.Tags)
	}
	if patch.Published != nil {
		rec["published"] = *patch.Published
	}
	if patch.Featured != nil {
		rec["featured"] = *patch.Featured
	}

	stored, err := s.store.Update(ctx, model.CollectionArticles, id, rec)
	if err != nil {
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	updated := articleFromRecord(stored)
	return &updated, nil
}

// SetPublished は記事の公開状態を変更する。管理者操作。
func (s *ArticleService) SetPublished(ctx context.Context, id string, published bool) (*model.Article, error) {
	stored, err := s.store.Update(ctx, model.CollectionArticles, id, model.Record{
		"published":  published,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("記事の公開状態の変更に失敗しました: %w", err)
	}
	a := articleFromRecord(stored)
	return &a, nil
}

// Delete は記事を削除する。著者または管理者のみ削除できる。
func (s *ArticleService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.store.RequireWritable(ctx, model.CollectionArticles); err != nil {
		return err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, current.AuthorID) {
		return model.NewForbiddenError()
	}
	if err := s.store.Delete(ctx, model.CollectionArticles, id); err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *ArticleService) list(ctx context.Context, q model.Query) []model.Article {
	records := s.store.List(ctx, model.CollectionArticles, q)
	articles := make([]model.Article, 0, len(records))
	for _, rec := range records {
		articles = append(articles, articleFromRecord(rec))
	}
	return articles
}

func articleFromRecord(rec model.Record) model.Article {
	return model.Article{
		ID:         rec.String("id"),
		Title:      rec.String("title"),
		Content:    rec.String("content"),
		Excerpt:    rec.String("excerpt"),
		Category:   rec.String("category"),
		AuthorID:   rec.String("author_id"),
		AuthorName: rec.String("author_name"),
		Published:  rec.Bool("published"),
		Featured:   rec.Bool("featured"),
		ImageURL:   rec.String("image_url"),
		Tags:       rec.Strings("tags"),
		CreatedAt:  rec.Time("created_at"),
		UpdatedAt:  rec.Time("updated_at"),
	}
}

func articleRecord(a model.Article) model.Record {
	return model.Record{
		"id":          a.ID,
		"title":       a.Title,
		"content":     a.Content,
		"excerpt":     a.Excerpt,
		"category":    a.Category,
		"author_id":   a.AuthorID,
		"author_name": a.AuthorName,
		"published":   a.Published,
		"featured":    a.Featured,
		"image_url":   a.ImageURL,
		"tags":        a.Tags,
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
	}
}

// cleanTags は空白を除去し、空要素と重複を取り除く。
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
