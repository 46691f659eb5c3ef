package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by mutations that matched no row. Lookups
	// return (nil, nil) instead.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict means a photo was not in a status that permits the
	// requested transition.
	ErrStatusConflict = errors.New("recognition status conflict")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("duplicate")
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation recognises unique constraint failures from both SQLite
// and Postgres without importing either driver's error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
