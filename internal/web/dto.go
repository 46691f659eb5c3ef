package web

import (
	"strconv"
	"time"

	"github.com/vbonduro/fridgecam/internal/domain"
)

type deviceJSON struct {
	ID                  int64     `json:"id"`
	DeviceID            string    `json:"device_id"`
	Name                string    `json:"name"`
	APIURL              *string   `json:"api_url"`
	LocationDescription string    `json:"location_description"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toDeviceJSON(d *domain.Device) deviceJSON {
	return deviceJSON{
		ID:                  d.ID,
		DeviceID:            d.ExternalID,
		Name:                d.Name,
		APIURL:              d.APIURL,
		LocationDescription: d.LocationDescription,
		IsActive:            d.IsActive,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

type photoJSON struct {
	ID                int64                    `json:"id"`
	DeviceID          int64                    `json:"device_id"`
	CapturedAt        time.Time                `json:"captured_at"`
	ContentType       string                   `json:"content_type"`
	UploadedBy        *int64                   `json:"uploaded_by"`
	UploadedAt        time.Time                `json:"uploaded_at"`
	RecognitionStatus domain.RecognitionStatus `json:"recognition_status"`
	StatusUpdatedAt   time.Time                `json:"status_updated_at"`
	ImageURL          string                   `json:"image_url"`
	RawResponse       *string                  `json:"raw_llm_response,omitempty"`
	Items             []itemJSON               `json:"items,omitempty"`
}

func toPhotoJSON(p *domain.Photo) photoJSON {
	return photoJSON{
		ID:                p.ID,
		DeviceID:          p.DeviceID,
		CapturedAt:        p.CapturedAt,
		ContentType:       p.ContentType,
		UploadedBy:        p.UploadedBy,
		UploadedAt:        p.UploadedAt,
		RecognitionStatus: p.Status,
		StatusUpdatedAt:   p.StatusUpdatedAt,
		ImageURL:          "/api/photos/" + strconv.FormatInt(p.ID, 10) + "/image",
	}
}

type itemJSON struct {
	ID                  int64     `json:"id"`
	PhotoID             int64     `json:"photo_id"`
	Name                string    `json:"name"`
	Quantity            string    `json:"quantity"`
	EstimatedExpiryInfo string    `json:"estimated_expiry_info"`
	PlacementDate       string    `json:"placement_date"`
	OwnerID             *int64    `json:"owner_id"`
	Notes               string    `json:"notes"`
	AddedAt             time.Time `json:"added_at"`
}

func toItemJSON(i *domain.RecognizedItem) itemJSON {
	return itemJSON{
		ID:                  i.ID,
		PhotoID:             i.PhotoID,
		Name:                i.Name,
		Quantity:            i.Quantity,
		EstimatedExpiryInfo: i.EstimatedExpiryInfo,
		PlacementDate:       i.PlacementDate.UTC().Format(time.DateOnly),
		OwnerID:             i.OwnerID,
		Notes:               i.Notes,
		AddedAt:             i.AddedAt,
	}
}

func toItemsJSON(items []*domain.RecognizedItem) []itemJSON {
	out := make([]itemJSON, 0, len(items))
	for _, i := range items {
		out = append(out, toItemJSON(i))
	}
	return out
}

type logJSON struct {
	ID            int64                `json:"id"`
	UserID        int64                `json:"user_id"`
	DeviceID      int64                `json:"device_id"`
	OperationType domain.OperationType `json:"operation_type"`
	StartedAt     time.Time            `json:"started_at"`
	Notes         string               `json:"notes"`
	PhotoID       *int64               `json:"photo_id"`
}

func toLogJSON(l *domain.OperationLog) logJSON {
	return logJSON{
		ID:            l.ID,
		UserID:        l.UserID,
		DeviceID:      l.DeviceID,
		OperationType: l.OperationType,
		StartedAt:     l.StartedAt,
		Notes:         l.Notes,
		PhotoID:       l.PhotoID,
	}
}
