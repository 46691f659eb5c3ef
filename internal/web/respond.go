package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/auth"
)

const maxBodyBytes = 1 << 20

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	PhotoID *int64 `json:"photo_id,omitempty"`
	LogID   *int64 `json:"log_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write response failed", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, statusResponse{Status: "error", Message: msg})
}

// writeError maps a classified error to a status code and an operator-facing
// message. Details of internal failures stay in the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := s.describe(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err, "kind", apperr.KindOf(err).String())
	} else {
		s.logger.Info("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeMessage(w, s.logger, status, msg)
}

func (s *Server) describe(err error) (int, string) {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "invalid username or password"
	}
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		return http.StatusBadRequest, detail(err)
	case apperr.KindNotFound:
		return http.StatusNotFound, detail(err)
	case apperr.KindConflict:
		return http.StatusConflict, detail(err)
	case apperr.KindForbidden:
		return http.StatusForbidden, "you are not allowed to do that"
	case apperr.KindConfiguration:
		return http.StatusConflict, fmt.Sprintf("device is not ready for capture: %s", detail(err))
	case apperr.KindTransport:
		return http.StatusBadGateway, "could not reach the camera"
	case apperr.KindDataFormat:
		return http.StatusBadGateway, "the camera returned an invalid photo"
	case apperr.KindAnalysis:
		return http.StatusBadGateway, "image analysis failed"
	case apperr.KindPersistence:
		return http.StatusInternalServerError, "failed to store data"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// detail is the innermost message of a classified error, without the op.
func detail(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Err.Error()
	}
	return err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("web.decodeJSON", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Errorf(apperr.KindInvalid, "web.pathID", "invalid %s", name)
	}
	return id, nil
}

// queryInt reads an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Errorf(apperr.KindInvalid, "web.queryInt", "invalid %s", name)
	}
	return n, nil
}
