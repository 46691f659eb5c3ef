package device

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/domain"
)

// onePixelPNG is a valid 1x1 PNG.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCamera(t *testing.T, status int, body string) (*httptest.Server, *domain.Device) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photos" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	url := srv.URL + "/"
	return srv, &domain.Device{ExternalID: "ESP32_CAM_001", APIURL: &url, IsActive: true}
}

func TestFetchPhoto(t *testing.T) {
	_, dev := newCamera(t, http.StatusOK, `{"id": "ESP32_CAM_001", "timestamp": "2024-05-01T08:30:00Z", "image_base64": "`+onePixelPNG+`", "content_type": "image/png"}`)

	capture, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, &Capture{
		DeviceID:    "ESP32_CAM_001",
		Timestamp:   "2024-05-01T08:30:00Z",
		ImageBase64: onePixelPNG,
		ContentType: "image/png",
	}, capture)
}

func TestFetchPhoto_UnquotedKeys(t *testing.T) {
	_, dev := newCamera(t, http.StatusOK, `{id: "ESP32_CAM_001", timestamp: "2024-05-01T08:30:00Z", image_base64: "`+onePixelPNG+`", content_type: "image/png"}`)

	capture, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, "ESP32_CAM_001", capture.DeviceID)

	image, err := DecodeImage(capture.ImageBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), image[:8])
}

func TestFetchPhoto_IDMismatch(t *testing.T) {
	_, dev := newCamera(t, http.StatusOK, `{"id": "OTHER", "timestamp": "t", "image_base64": "`+onePixelPNG+`", "content_type": "image/png"}`)

	_, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataFormat, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "OTHER")
}

func TestFetchPhoto_ServiceUnavailable(t *testing.T) {
	_, dev := newCamera(t, http.StatusServiceUnavailable, `{"status":"error", "message":"Failed to get camera frame"}`)

	_, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
}

func TestFetchPhoto_Unreachable(t *testing.T) {
	srv, dev := newCamera(t, http.StatusOK, "{}")
	srv.Close()

	_, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.True(t, apperr.Retryable(err))
}

func TestFetchPhoto_NoURL(t *testing.T) {
	for _, url := range []*string{nil, ptr(""), ptr("   ")} {
		dev := &domain.Device{ExternalID: "cam", APIURL: url}
		_, err := NewClient(time.Second, testLogger()).FetchPhoto(context.Background(), dev)
		require.Error(t, err)
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	}
}

func TestEndpoint(t *testing.T) {
	dev := &domain.Device{APIURL: ptr("http://192.168.1.100:81//")}
	endpoint, err := Endpoint(dev)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.100:81/api/photos", endpoint)
}

func TestParseCapture_MissingFields(t *testing.T) {
	_, err := ParseCapture([]byte(`{"timestamp": "t", "image_base64": "x"}`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataFormat, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "missing fields: id, content_type")
}

func TestParseCapture_NonStringField(t *testing.T) {
	_, err := ParseCapture([]byte(`{"id": 7, "timestamp": "t", "image_base64": "x", "content_type": "image/jpeg"}`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataFormat, apperr.KindOf(err))
}

func TestParseCapture_Unrepairable(t *testing.T) {
	_, err := ParseCapture([]byte(`<html>oops</html>`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataFormat, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "repair failed")
}

func TestParseCapture_NotAnObject(t *testing.T) {
	_, err := ParseCapture([]byte(`null`))
	require.Error(t, err)
	assert.Equal(t, apperr.KindDataFormat, apperr.KindOf(err))
}

func TestDecodeImage_RoundTrip(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0x00},
		[]byte("hello fridge"),
		{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10},
	} {
		decoded, err := DecodeImage(base64.StdEncoding.EncodeToString(data))
		require.NoError(t, err)
		assert.Equal(t, data, decoded)
	}
}

func ptr(s string) *string { return &s }
