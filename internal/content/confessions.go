package content

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/confide/internal/model"
)

// maxConfessionLength は告白本文の最大文字数。
const maxConfessionLength = 5000

// ConfessionService は匿名の告白のドメインロジックを提供する。
// 投稿者IDは所有者確認にのみ使い、一覧では公開しない。
type ConfessionService struct {
	store Collection
	plain Sanitizer
	now   clock
}

// NewConfessionService はConfessionServiceを生成する。
func NewConfessionService(store Collection, plain Sanitizer) *ConfessionService {
	return &ConfessionService{store: store, plain: plain, now: time.Now}
}

// Create は告白を投稿する。
func (s *ConfessionService) Create(ctx context.Context, author *model.Profile, text string) (*model.Confession, error) {
	if err := requireActor(author); err != nil {
		return nil, err
	}
	body, err := s.validate(text)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := model.Confession{
		ID:        newID(),
		UserID:    author.ID,
		Content:   body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, err := s.store.Insert(ctx, model.CollectionConfessions, confessionRecord(c))
	if err != nil {
		return nil, fmt.Errorf("告白の投稿に失敗しました: %w", err)
	}
	created := confessionFromRecord(stored)
	return &created, nil
}

// ListByUser は指定ユーザーの告白を新しい順に返す。
func (s *ConfessionService) ListByUser(ctx context.Context, userID string) []model.Confession {
	return s.list(ctx, model.Query{}.Where("user_id", userID).NewestFirst())
}

// ListAll は全ての告白を新しい順に返す。
func (s *ConfessionService) ListAll(ctx context.Context) []model.Confession {
	return s.list(ctx, model.Query{}.NewestFirst())
}

// Update は告白の本文を更新する。投稿者のみ更新できる。
func (s *ConfessionService) Update(ctx context.Context, actor *model.Profile, id, text string) (*model.Confession, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	body, err := s.validate(text)
	if err != nil {
		return nil, err
	}
	if err := s.store.RequireWritable(ctx, model.CollectionConfessions); err != nil {
		return nil, err
	}
	rec, ok := s.store.GetByID(ctx, model.CollectionConfessions, id)
	if !ok {
		return nil, model.NewRecordNotFoundError(model.CollectionConfessions, id)
	}
	if rec.String("user_id") != actor.ID {
		return nil, model.NewForbiddenError()
	}

	stored, err := s.store.Update(ctx, model.CollectionConfessions, id, model.Record{
		"content":    body,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("告白の更新に失敗しました: %w", err)
	}
	updated := confessionFromRecord(stored)
	return &updated, nil
}

// Delete は告白を削除する。投稿者または管理者のみ削除できる。
func (s *ConfessionService) Delete(ctx context.Context, actor *model.Profile, id string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if err := s.store.RequireWritable(ctx, model.CollectionConfessions); err != nil {
		return err
	}
	rec, ok := s.store.GetByID(ctx, model.CollectionConfessions, id)
	if !ok {
		return model.NewRecordNotFoundError(model.CollectionConfessions, id)
	}
	if !canModify(actor, rec.String("user_id")) {
		return model.NewForbiddenError()
	}
	if err := s.store.Delete(ctx, model.CollectionConfessions, id); err != nil {
		return fmt.Errorf("告白の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *ConfessionService) validate(text string) (string, error) {
	body := s.plain.Sanitize(text)
	if body == "" {
		return "", model.NewInvalidInputError("本文は必須です")
	}
	if len([]rune(body)) > maxConfessionLength {
		return "", model.NewInvalidInputError(fmt.Sprintf("本文は%d文字以内で入力してください", maxConfessionLength))
	}
	return body, nil
}

func (s *ConfessionService) list(ctx context.Context, q model.Query) []model.Confession {
	records := s.store.List(ctx, model.CollectionConfessions, q)
	confessions := make([]model.Confession, 0, len(records))
	for _, rec := range records {
		confessions = append(confessions, confessionFromRecord(rec))
	}
	return confessions
}

func confessionFromRecord(rec model.Record) model.Confession {
	return model.Confession{
		ID:        rec.String("id"),
		UserID:    rec.String("user_id"),
		Content:   rec.String("content"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}
}

func confessionRecord(c model.Confession) model.Record {
	return model.Record{
		"id":         c.ID,
		"user_id":    c.UserID,
		"content":    c.Content,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}
