package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vbonduro/fridgecam/internal/auth"
	"github.com/vbonduro/fridgecam/internal/service"
)

// requireAuth accepts "Authorization: Bearer <token>", checks the account
// still exists and stores the caller on the request context with the staff
// flag read from the account.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeMessage(w, s.logger, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := s.deps.Tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("rejected token", "error", err)
			writeMessage(w, s.logger, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		current, err := s.deps.Users.Authenticate(r.Context(), claims)
		if errors.Is(err, auth.ErrInvalidToken) {
			s.logger.Debug("rejected token for missing account", "user_id", claims.UserID)
			writeMessage(w, s.logger, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		fresh := *claims
		fresh.IsStaff = current.IsStaff
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), &fresh)))
	})
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok || !claims.IsStaff {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":"error","message":"staff only"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor returns the caller. Only valid behind requireAuth.
func actor(r *http.Request) service.Actor {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.UserID, IsStaff: claims.IsStaff}
}
