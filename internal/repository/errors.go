package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はメールアドレスが既に登録されていることを表す。
var ErrDuplicateEmail = errors.New("email already registered")

// PostgreSQLのSQLSTATE
const (
	pqUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
