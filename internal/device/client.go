// Package device talks to fridge cameras over HTTP.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	photosPath     = "/api/photos"
	// maxBodyBytes bounds a single capture response; a base64 UXGA JPEG is
	// well under this.
	maxBodyBytes = 16 << 20
)

// Capture is the payload a camera returns for one still.
type Capture struct {
	DeviceID    string
	Timestamp   string
	ImageBase64 string
	ContentType string
}

var requiredFields = []string{"id", "timestamp", "image_base64", "content_type"}

type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Endpoint returns the capture URL for the device.
func Endpoint(d *domain.Device) (string, error) {
	if d.APIURL == nil || strings.TrimSpace(*d.APIURL) == "" {
		return "", apperr.Errorf(apperr.KindConfiguration, "device.Endpoint", "device %s has no api url", d.ExternalID)
	}
	return strings.TrimRight(strings.TrimSpace(*d.APIURL), "/") + photosPath, nil
}

// FetchPhoto asks the camera for a fresh still and validates the response.
func (c *Client) FetchPhoto(ctx context.Context, d *domain.Device) (*Capture, error) {
	const op = "device.FetchPhoto"

	endpoint, err := Endpoint(d)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("requesting camera", "device", d.ExternalID, "endpoint", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Configuration(op, fmt.Errorf("invalid endpoint %q: %w", endpoint, err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("camera request failed", "device", d.ExternalID, "error", err)
		return nil, apperr.Transport(op, err)
	}
	defer closeWithLog(c.logger, resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Transport(op, fmt.Errorf("failed to read response: %w", err))
	}
	c.logger.Debug("camera responded", "device", d.ExternalID, "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Transport(op, &StatusError{StatusCode: resp.StatusCode})
	}

	capture, err := ParseCapture(body)
	if err != nil {
		c.logger.Error("camera returned invalid payload", "device", d.ExternalID, "error", err)
		return nil, err
	}
	if capture.DeviceID != d.ExternalID {
		return nil, apperr.Errorf(apperr.KindDataFormat, op,
			"camera reported id %q, expected %q", capture.DeviceID, d.ExternalID)
	}
	return capture, nil
}

// StatusError reports a non-2xx answer from a camera.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camera returned HTTP %d", e.StatusCode)
}

// ParseCapture decodes a camera response body, repairing unquoted keys if
// strict parsing fails.
func ParseCapture(body []byte) (*Capture, error) {
	const op = "device.ParseCapture"

	var raw map[string]any
	strictErr := json.Unmarshal(body, &raw)
	if strictErr != nil {
		repaired := RepairJSON(string(body))
		raw = nil
		if repairErr := json.Unmarshal([]byte(repaired), &raw); repairErr != nil {
			return nil, apperr.Errorf(apperr.KindDataFormat, op,
				"invalid JSON (%v) and repair failed (%v)", strictErr, repairErr)
		}
	}
	if raw == nil {
		return nil, apperr.Errorf(apperr.KindDataFormat, op, "response is not a JSON object")
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Errorf(apperr.KindDataFormat, op, "missing fields: %s", strings.Join(missing, ", "))
	}

	values := make(map[string]string, len(requiredFields))
	for _, f := range requiredFields {
		s, ok := raw[f].(string)
		if !ok {
			return nil, apperr.Errorf(apperr.KindDataFormat, op, "field %s is %T, want string", f, raw[f])
		}
		values[f] = s
	}

	return &Capture{
		DeviceID:    values["id"],
		Timestamp:   values["timestamp"],
		ImageBase64: values["image_base64"],
		ContentType: values["content_type"],
	}, nil
}

// IsStatus reports whether err came from a camera answering with code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func closeWithLog(logger *slog.Logger, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close", "error", err)
	}
}
