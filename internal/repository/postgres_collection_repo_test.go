package repository

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/confide/internal/model"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"articles", `"articles"`},
		{"Mixed", `"Mixed"`},
		{`bad"name`, `"bad""name"`},
		{`x"; DROP TABLE profiles; --`, `"x""; DROP TABLE profiles; --"`},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.in); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBuildSelect(t *testing.T) {
	q := model.Query{}.Where("published", true).Where("featured", true).NewestFirst().WithLimit(5)

	query, args, err := buildSelect("articles", q)
	if err != nil {
		t.Fatalf("buildSelect() error = %v", err)
	}

	want := `SELECT row_to_json(t) FROM "articles" AS t WHERE t."published" = $1 AND t."featured" = $2 ORDER BY t."created_at" DESC LIMIT 5`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if !reflect.DeepEqual(args, []any{true, true}) {
		t.Errorf("args = %v, want [true true]", args)
	}
}

func TestBuildSelect_NoConditions(t *testing.T) {
	query, args, err := buildSelect("profiles", model.Query{})
	if err != nil {
		t.Fatalf("buildSelect() error = %v", err)
	}
	if query != `SELECT row_to_json(t) FROM "profiles" AS t` {
		t.Errorf("query = %s", query)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}

	if _, _, err := buildSelect("", model.Query{}); err == nil {
		t.Error("expected error for empty collection")
	}
}

func TestBuildInsert(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildInsert("profiles", model.Record{
		"id":           "u1",
		"likes":        []string{"go"},
		"social_links": map[string]string{"github": "u1"},
		"created_at":   created,
	})
	if err != nil {
		t.Fatalf("buildInsert() error = %v", err)
	}

	want := `INSERT INTO "profiles" AS t ("created_at", "id", "likes", "social_links") VALUES ($1, $2, $3, $4) RETURNING row_to_json(t)`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if args[0] != created || args[1] != "u1" {
		t.Errorf("args = %v", args)
	}
	if arr, ok := args[2].(*pq.StringArray); !ok || len(*arr) != 1 {
		t.Errorf("likes arg = %#v, want pq.StringArray", args[2])
	}
	if args[3] != `{"github":"u1"}` {
		t.Errorf("social_links arg = %v, want JSON string", args[3])
	}

	if _, _, err := buildInsert("profiles", model.Record{}); err == nil {
		t.Error("expected error for empty record")
	}
}

func TestBuildUpdate_SkipsIDColumn(t *testing.T) {
	query, args, err := buildUpdate("confessions", "c1", model.Record{
		"id":      "other",
		"content": "after",
	})
	if err != nil {
		t.Fatalf("buildUpdate() error = %v", err)
	}

	want := `UPDATE "confessions" AS t SET "content" = $1 WHERE t."id" = $2 RETURNING row_to_json(t)`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
	if !reflect.DeepEqual(args, []any{"after", "c1"}) {
		t.Errorf("args = %v", args)
	}

	if _, _, err := buildUpdate("confessions", "c1", model.Record{"id": "x"}); err == nil {
		t.Error("expected error for patch without columns")
	}
}

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"id":"a1","published":true,"tags":["x"],"created_at":"2025-01-01T00:00:00.123456+00:00"}`))
	if err != nil {
		t.Fatalf("decodeRecord() error = %v", err)
	}
	if rec.String("id") != "a1" || !rec.Bool("published") {
		t.Errorf("record = %v", rec)
	}
	if !reflect.DeepEqual(rec.Strings("tags"), []string{"x"}) {
		t.Errorf("tags = %v", rec.Strings("tags"))
	}
	if rec.Time("created_at").IsZero() {
		t.Error("expected created_at to parse")
	}

	if _, err := decodeRecord([]byte("not json")); err == nil || !strings.Contains(err.Error(), "unmarshal") {
		t.Errorf("error = %v, want unmarshal error", err)
	}
}
