package model

import (
	"fmt"
	"time"
)

// Record はバックエンドのコレクションに保存される構造化レコード。
// キーはカラム名、値はJSON互換の値。
type Record map[string]any

// String は指定キーの文字列値を返す。存在しないか文字列でない場合は空文字列。
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Bool は指定キーの真偽値を返す。
func (r Record) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Strings は指定キーのJSON配列・text[]値を[]stringで返す。
// 存在しないか配列でない場合は空スライス（nilではない）。
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			if s, ok := e.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return []string{}
}

// StringMap は指定キーのJSONオブジェクト値を文字列値のみのマップで返す。
// 存在しない場合は空マップ（nilではない）。
func (r Record) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := r[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// Time は指定キーの時刻値を返す。文字列の場合はRFC3339およびPostgreSQLの出力形式を解釈する。
func (r Record) Time(key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
}

// Filter は等価条件によるレコード絞り込み。
type Filter struct {
	Column string
	Value  any
}

// Query はコレクション読み取りの条件。
// Limitが0以下の場合は件数制限なし。
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Where は等価条件を追加したQueryを返す。
func (q Query) Where(column string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Column: column, Value: value})
	return q
}

// NewestFirst はcreated_at降順に並べるQueryを返す。
func (q Query) NewestFirst() Query {
	q.OrderBy = "created_at"
	q.Descending = true
	return q
}

// コレクション名
const (
	CollectionProfiles    = "profiles"
	CollectionArticles    = "articles"
	CollectionComments    = "comments"
	CollectionConfessions = "confessions"
)

// Collections はアプリケーションが利用する全コレクション名を返す。
func Collections() []string {
	return []string{
		CollectionProfiles,
		CollectionArticles,
		CollectionComments,
		CollectionConfessions,
	}
}

// WithLimit は取得件数を制限したQueryを返す。
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}
