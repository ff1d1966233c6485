// Package security は投稿内容のサニタイズを提供する。
//
// 記事本文は許可リスト方式のHTMLポリシーで、コメント・告白・プロフィール項目は
// タグを全て除去するプレーンテキストポリシーで処理する。
package security

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は投稿内容を保存前にサニタイズする。
// 同一入力に対して常に同一出力を返し、出力を再度渡しても変化しない。
type ContentSanitizerService interface {
	Sanitize(raw string) string
}

// codeLanguageClass はシンタックスハイライト用のclass属性（language-go など）。
var codeLanguageClass = regexp.MustCompile(`^language-[a-zA-Z0-9+#-]{1,32}$`)

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer は記事本文用のサニタイザーを生成する。
//   - 許可タグ: p, br, hr, h2-h4, ul, ol, li, blockquote, pre, code, strong, em, del, a, img
//   - URLはhttpsスキームのみ。相対URLは不許可
//   - aタグには target="_blank" と rel="noopener noreferrer" を付与
//   - codeタグのclassは language-* のみ
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// h1は記事タイトルに使うため本文では許可しない
	p.AllowElements(
		"p", "br", "hr",
		"h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{policy: p}
}

// Sanitize は許可リスト外のタグ・属性を除去したHTMLを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return s.policy.Sanitize(raw)
}

// NewPlainTextSanitizer は全てのタグを除去するサニタイザーを生成する。
// コメント、告白、タイトル、抜粋、プロフィール項目に使用する。
func NewPlainTextSanitizer() ContentSanitizerService {
	return &plainTextSanitizer{policy: bluemonday.StrictPolicy()}
}

// plainTextSanitizer の結果はHTMLではなくプレーンテキストとして扱うため、
// 文字参照は元の文字に戻す。
type plainTextSanitizer struct {
	policy *bluemonday.Policy
}

func (s *plainTextSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
