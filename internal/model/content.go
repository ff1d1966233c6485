package model

import "time"

// Article は記事を表す。
type Article struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Excerpt    string    `json:"excerpt"`
	Category   string    `json:"category"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Published  bool      `json:"published"`
	Featured   bool      `json:"featured"`
	ImageURL   string    `json:"image_url,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Comment は記事へのコメントを表す。
type Comment struct {
	ID        string    `json:"id"`
	ArticleID string    `json:"article_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Confession は匿名の告白投稿を表す。
// UserIDは所有者確認のためだけに保持し、一覧APIでは公開しない。
type Confession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
