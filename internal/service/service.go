// Package service holds the application operations behind the HTTP API and
// CLI: capturing from cameras, browsing the inventory and managing devices
// and users.
package service

import (
	"errors"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/store"
)

// Actor is the authenticated user an operation runs on behalf of.
type Actor struct {
	UserID  int64
	IsStaff bool
}

// storeError classifies a store failure for callers that branch on kind.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrStatusConflict):
		return apperr.Conflict(op, err)
	default:
		return apperr.Persistence(op, err)
	}
}

func notFound(op, format string, args ...any) error {
	return apperr.Errorf(apperr.KindNotFound, op, format, args...)
}

func invalid(op, format string, args ...any) error {
	return apperr.Errorf(apperr.KindInvalid, op, format, args...)
}

// ErrForbidden is returned when the actor may not touch the resource.
var ErrForbidden = errors.New("not allowed")

func forbidden(op string) error {
	return apperr.Forbidden(op, ErrForbidden)
}
