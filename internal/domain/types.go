package domain

import (
	"fmt"
	"time"
)

type User struct {
	ID           int64
	Username     string
	PasswordHash string `json:"-"`
	IsStaff      bool
	CreatedAt    time.Time
}

// Device is a fridge camera reachable over HTTP.
type Device struct {
	ID                  int64
	ExternalID          string `gorm:"column:external_id"`
	Name                string
	APIURL              *string `gorm:"column:api_url"`
	LocationDescription string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RecognitionStatus tracks a photo through the recognition pipeline.
type RecognitionStatus string

const (
	StatusPending    RecognitionStatus = "pending"
	StatusProcessing RecognitionStatus = "processing"
	StatusCompleted  RecognitionStatus = "completed"
	StatusFailed     RecognitionStatus = "failed"
)

func (s RecognitionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further recognition work is expected.
func (s RecognitionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a photo in status s may move to next.
//
// Besides the forward edges pending→processing→{completed,failed}, a photo
// already in processing may be reclaimed (a worker died mid-task and the
// queue redelivered it) and a failed photo may be restarted by a retry.
// Completed is final.
func (s RecognitionStatus) CanTransition(next RecognitionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	default:
		return false
	}
}

var allStatuses = []RecognitionStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// PredecessorsOf lists every status that may transition to next.
func PredecessorsOf(next RecognitionStatus) []RecognitionStatus {
	var from []RecognitionStatus
	for _, s := range allStatuses {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

type Photo struct {
	ID          int64
	DeviceID    int64
	ImageKey    string
	CapturedAt  time.Time
	ContentType string
	UploadedBy  *int64
	UploadedAt  time.Time
	Status      RecognitionStatus `gorm:"column:recognition_status"`
	RawResponse *string

	// StatusUpdatedAt is when Status last changed.
	StatusUpdatedAt time.Time
}

// PlacementDate is the calendar day the photo was ingested.
func (p *Photo) PlacementDate() time.Time {
	y, m, d := p.UploadedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type OperationType string

const (
	OperationPutIn   OperationType = "put_in"
	OperationTakeOut OperationType = "take_out"
)

func ParseOperationType(s string) (OperationType, error) {
	switch op := OperationType(s); op {
	case OperationPutIn, OperationTakeOut:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation type %q", s)
}

// OperationLog records one open event on a fridge.
type OperationLog struct {
	ID            int64
	UserID        int64
	DeviceID      int64
	OperationType OperationType
	StartedAt     time.Time
	Notes         string
	PhotoID       *int64
}

// RecognizedItem is one item the vision model found in a photo.
type RecognizedItem struct {
	ID                  int64
	PhotoID             int64
	Name                string
	Quantity            string
	EstimatedExpiryInfo string
	PlacementDate       time.Time
	OwnerID             *int64
	Notes               string
	AddedAt             time.Time
}
