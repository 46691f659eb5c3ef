package web

import (
	"io"
	"net/http"

	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/store"
)

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	deviceID, err := queryInt(r, "device")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	photos, err := s.deps.Inventory.ListPhotos(r.Context(), store.PhotoFilter{
		DeviceID: deviceID,
		Status:   domain.RecognitionStatus(r.URL.Query().Get("status")),
		Limit:    int(limit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]photoJSON, 0, len(photos))
	for _, p := range photos {
		out = append(out, toPhotoJSON(p))
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "photoID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	detail, err := s.deps.Inventory.GetPhoto(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := toPhotoJSON(detail.Photo)
	out.RawResponse = detail.RawResponse
	out.Items = toItemsJSON(detail.Items)
	writeJSON(w, s.logger, http.StatusOK, out)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "photoID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reader, mimeType, err := s.deps.Inventory.OpenImage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "photo_id", id, "error", err)
	}
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "photoID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.deps.Capture.Recognize(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusAccepted, statusResponse{
		Status:  "success",
		Message: "Photo queued for recognition",
		PhotoID: &id,
	})
}
