package web

import (
	"fmt"
	"net/http"

	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/service"
)

type deviceRequest struct {
	DeviceID            string `json:"device_id"`
	Name                string `json:"name"`
	APIURL              string `json:"api_url"`
	LocationDescription string `json:"location_description"`
	IsActive            *bool  `json:"is_active"`
}

func (req deviceRequest) input() service.DeviceInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.DeviceInput{
		ExternalID:          req.DeviceID,
		Name:                req.Name,
		APIURL:              req.APIURL,
		LocationDescription: req.LocationDescription,
		IsActive:            active,
	}
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Devices.ListDevices(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		out = append(out, toDeviceJSON(d))
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Devices.CreateDevice(r.Context(), actor(r), req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, toDeviceJSON(d))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Devices.GetDevice(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toDeviceJSON(d))
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req deviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Devices.UpdateDevice(r.Context(), actor(r), id, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toDeviceJSON(d))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Devices.DeleteDevice(r.Context(), actor(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapture triggers a capture and answers with the status envelope the
// camera dashboard expects.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a := actor(r)
	photo, err := s.deps.Capture.TriggerCapture(r.Context(), id, &a.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, statusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Photo captured, recognition %s", photo.Status),
		PhotoID: &photo.ID,
	})
}

type openRequest struct {
	OperationType string `json:"operation_type"`
	Notes         string `json:"notes"`
}

func (s *Server) handleOpenFridge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req openRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Capture.OpenFridge(r.Context(), actor(r), id, req.OperationType, req.Notes)
	if err != nil {
		status, msg := s.describe(err)
		s.logger.Warn("open fridge failed", "device_id", id, "error", err)
		resp := statusResponse{Status: "error", Message: msg}
		if res != nil && res.Log != nil {
			resp.LogID = &res.Log.ID
		}
		writeJSON(w, s.logger, status, resp)
		return
	}
	writeJSON(w, s.logger, http.StatusCreated, statusResponse{
		Status:  "success",
		Message: operationMessage(res.Log.OperationType),
		PhotoID: &res.Photo.ID,
		LogID:   &res.Log.ID,
	})
}

func operationMessage(op domain.OperationType) string {
	if op == domain.OperationTakeOut {
		return "Take-out recorded, photo captured"
	}
	return "Put-in recorded, photo captured"
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "deviceID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logs, err := s.deps.Inventory.ListLogs(r.Context(), actor(r), id, int(limit))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]logJSON, 0, len(logs))
	for _, l := range logs {
		out = append(out, toLogJSON(l))
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}
