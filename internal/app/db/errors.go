package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation = "23505"

	// Class 08 covers connection exceptions.
	sqlStateConnectionClass = "08"
)

// IsUniqueViolation reports whether err is a unique constraint violation,
// such as a second account with an email already registered.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUniqueViolation
	}
	return false
}

// IsTransient reports whether err came from a lost or unusable connection
// rather than from the statement, so the caller may retry on a new one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == sqlStateConnectionClass
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
