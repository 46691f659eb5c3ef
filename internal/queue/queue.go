// Package queue defines how photo recognition work is handed to workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrPanicked marks a handler run that panicked. It is retryable, so a photo
// left in processing is reclaimed on the next attempt.
var ErrPanicked = errors.New("recognition handler panicked")

// Handler processes one photo. Errors that apperr.Retryable rejects are not
// retried.
type Handler func(ctx context.Context, photoID int64) error

type Queue interface {
	Enqueue(ctx context.Context, photoID int64) error
	// Consume runs h for delivered tasks until ctx is cancelled.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Payload is the wire form of a recognition task.
type Payload struct {
	PhotoID int64 `json:"photo_id"`
}

func EncodePayload(photoID int64) ([]byte, error) {
	return json.Marshal(Payload{PhotoID: photoID})
}

func DecodePayload(b []byte) (int64, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return 0, fmt.Errorf("invalid task payload: %w", err)
	}
	if p.PhotoID <= 0 {
		return 0, fmt.Errorf("invalid task payload: photo_id %d", p.PhotoID)
	}
	return p.PhotoID, nil
}

// Run calls h and turns a panic into an error wrapping ErrPanicked.
func Run(ctx context.Context, h Handler, photoID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanicked, r, debug.Stack())
		}
	}()
	return h(ctx, photoID)
}

// Backoff returns the delay before retry number attempt (1-based):
// 10s, 20s, 40s, ... capped at 10 minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 10 * time.Second
	for i := 1; i < attempt && d < 10*time.Minute; i++ {
		d *= 2
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}
