package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUndefinedTable       = "42P01"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}
	return string(pqErr.Code)
}

// IsSerializationFailure reports whether PostgreSQL aborted a transaction
// that can be retried as is.
func IsSerializationFailure(err error) bool {
	code := pqCode(err)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}

// IsUndefinedTable reports whether err is a missing table, which means the
// schema was never applied.
func IsUndefinedTable(err error) bool {
	return pqCode(err) == pqUndefinedTable
}
