package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを判定する。
// constraintが空でなければ制約名も一致する場合に限る。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
