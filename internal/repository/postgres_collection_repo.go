package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/confide/internal/model"
	"github.com/hitoshi/confide/internal/provider"
)

// PostgresCollectionRepo はコレクション名をテーブル名として扱う汎用データバックエンド。
// 行はrow_to_jsonでJSONに変換してmodel.Recordとして返す。
// テーブルが存在しない場合のエラー（SQLSTATE 42P01）はそのまま返し、分類は呼び出し側が行う。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// Read は条件に一致するレコードを返す。
func (r *PostgresCollectionRepo) Read(ctx context.Context, collection string, q model.Query) ([]model.Record, error) {
	query, args, err := buildSelect(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", collection, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", collection, err)
	}

	return records, nil
}

// Insert はレコードを作成し、保存後の行を返す。
func (r *PostgresCollectionRepo) Insert(ctx context.Context, collection string, record model.Record) (model.Record, error) {
	query, args, err := buildInsert(collection, record)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return decodeRecord(raw)
}

// Update は指定IDの行を部分更新し、更新後の行を返す。
// 対象の行が存在しない場合はmodel.ErrRecordNotFoundを返す。
func (r *PostgresCollectionRepo) Update(ctx context.Context, collection, id string, patch model.Record) (model.Record, error) {
	query, args, err := buildUpdate(collection, id, patch)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", collection, id, model.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return decodeRecord(raw)
}

// Delete は指定IDの行を削除する。
// 対象の行が存在しない場合はmodel.ErrRecordNotFoundを返す。
func (r *PostgresCollectionRepo) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE "id" = $1`, quoteIdentifier(collection))

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, model.ErrRecordNotFound)
	}
	return nil
}

// buildSelect はRead用のSQLと引数を組み立てる。
func buildSelect(collection string, q model.Query) (string, []any, error) {
	if collection == "" {
		return "", nil, fmt.Errorf("collection name is required")
	}

	var b strings.Builder
	args := make([]any, 0, len(q.Filters))

	fmt.Fprintf(&b, "SELECT row_to_json(t) FROM %s AS t", quoteIdentifier(collection))
	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		v, err := encodeValue(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode filter %s: %w", f.Column, err)
		}
		args = append(args, v)
		fmt.Fprintf(&b, "t.%s = $%d", quoteIdentifier(f.Column), len(args))
	}
	if q.OrderBy != "" {
		fmt.Fprintf(&b, " ORDER BY t.%s", quoteIdentifier(q.OrderBy))
		if q.Descending {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	return b.String(), args, nil
}

// buildInsert はInsert用のSQLと引数を組み立てる。カラムは名前順に並べる。
func buildInsert(collection string, record model.Record) (string, []any, error) {
	if collection == "" {
		return "", nil, fmt.Errorf("collection name is required")
	}
	if len(record) == 0 {
		return "", nil, fmt.Errorf("record for %s has no columns", collection)
	}

	columns := sortedKeys(record)
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		v, err := encodeValue(record[col])
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode column %s: %w", col, err)
		}
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) RETURNING row_to_json(t)",
		quoteIdentifier(collection),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// buildUpdate はUpdate用のSQLと引数を組み立てる。idカラムは更新しない。
func buildUpdate(collection, id string, patch model.Record) (string, []any, error) {
	if collection == "" {
		return "", nil, fmt.Errorf("collection name is required")
	}

	columns := make([]string, 0, len(patch))
	for _, col := range sortedKeys(patch) {
		if col != "id" {
			columns = append(columns, col)
		}
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("patch for %s has no columns", collection)
	}

	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		v, err := encodeValue(patch[col])
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode column %s: %w", col, err)
		}
		args = append(args, v)
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(col), len(args))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s AS t SET %s WHERE t."id" = $%d RETURNING row_to_json(t)`,
		quoteIdentifier(collection),
		strings.Join(sets, ", "),
		len(args),
	)
	return query, args, nil
}

// encodeValue はGoの値をPostgreSQLのパラメータに変換する。
// []stringはtext[]、マップやスライスはjsonbとして渡す。
func encodeValue(v any) (any, error) {
	switch vv := v.(type) {
	case []string:
		return pq.Array(vv), nil
	case map[string]string, map[string]any, []any:
		b, err := json.Marshal(vv)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func decodeRecord(raw []byte) (model.Record, error) {
	rec := model.Record{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// quoteIdentifier はSQL識別子を二重引用符で囲む。
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func sortedKeys(rec model.Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compile-time interface check
var _ provider.DataBackend = (*PostgresCollectionRepo)(nil)
