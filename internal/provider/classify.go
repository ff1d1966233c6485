package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/confide/internal/model"
)

// ErrorKind はプロバイダーエラーの分類結果。
type ErrorKind int

const (
	// KindNone はエラーなし。
	KindNone ErrorKind = iota
	// KindSchemaAbsent はテーブル（リレーション）が存在しないことを示す。
	KindSchemaAbsent
	// KindUnavailable はネットワーク・タイムアウト等の通信失敗を示す。
	KindUnavailable
	// KindOther はそれ以外の失敗（権限、制約違反など）を示す。
	KindOther
)

// String はログ出力用の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSchemaAbsent:
		return "schema_absent"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// undefinedTableCode はPostgreSQLのSQLSTATE undefined_table。
const undefinedTableCode = "42P01"

// Classify はエラーを分類する。判定はこの関数に集約する。
// 型付きエラー（*pq.Error、model.ErrStoreUnprovisioned）を優先し、
// 型情報のない経路から来たエラーのみメッセージで判定する。
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, model.ErrStoreUnprovisioned) {
		return KindSchemaAbsent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == undefinedTableCode {
			return KindSchemaAbsent
		}
		return KindOther
	}

	if errors.Is(err, model.ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return KindUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, undefinedTableCode) ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) {
		return KindSchemaAbsent
	}

	return KindOther
}
