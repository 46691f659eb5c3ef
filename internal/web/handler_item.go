package web

import (
	"net/http"

	"github.com/vbonduro/fridgecam/internal/service"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	items, err := s.deps.Inventory.ListItems(r.Context(), actor(r), service.ItemQuery{
		DeviceID: deviceID,
		Mine:     q.Get("mine") == "1" || q.Get("mine") == "true",
		Query:    q.Get("q"),
		Limit:    int(limit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toItemsJSON(items))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.deps.Inventory.GetItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toItemJSON(item))
}

type itemRequest struct {
	Name                string `json:"name"`
	Quantity            string `json:"quantity"`
	EstimatedExpiryInfo string `json:"estimated_expiry_info"`
	Notes               string `json:"notes"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.deps.Inventory.UpdateItem(r.Context(), actor(r), id, service.ItemUpdate{
		Name:                req.Name,
		Quantity:            req.Quantity,
		EstimatedExpiryInfo: req.EstimatedExpiryInfo,
		Notes:               req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toItemJSON(item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "itemID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Inventory.DeleteItem(r.Context(), actor(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
