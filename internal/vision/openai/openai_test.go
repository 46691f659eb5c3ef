package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/vision"
)

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL *struct {
				URL    string `json:"url"`
				Detail string `json:"detail"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newAnalyzer(srv *httptest.Server) *OpenAIAnalyzer {
	return NewOpenAIAnalyzer(srv.URL+"/v1", "lm-studio", "test-model", 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpenAIAnalyze(t *testing.T) {
	var got capturedRequest
	srv := newServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		writeJSON(w, completion("```json\n{\"recognized_items\": [{\"name\": \"Milk\", \"quantity\": \"1 bottle\", \"estimated_expiry_info\": \"3-5 days\"}]}\n```"))
	})

	result, err := newAnalyzer(srv).Analyze(context.Background(), bytes.NewReader([]byte{0x89, 'P', 'N', 'G'}), "image/png")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, vision.DetectedItem{Name: "Milk", Quantity: "1 bottle", EstimatedExpiryInfo: "3-5 days"}, result.Items[0])
	assert.Contains(t, result.RawResponse, "```json")

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, vision.MaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, vision.AnalysisPrompt, got.Messages[0].Content[0].Text)
	image := got.Messages[0].Content[1].ImageURL
	require.NotNil(t, image)
	assert.True(t, strings.HasPrefix(image.URL, "data:image/png;base64,"), image.URL)
	assert.Equal(t, "auto", image.Detail)
}

func TestOpenAIAnalyze_EmptyList(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		writeJSON(w, completion("```json\n{\"recognized_items\": []}\n```"))
	})

	result, err := newAnalyzer(srv).Analyze(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}

func TestOpenAIAnalyze_Malformed(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		writeJSON(w, completion("Sorry, I can only see a blurry shelf."))
	})

	_, err := newAnalyzer(srv).Analyze(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, vision.ErrMalformedJSON))
	assert.Contains(t, err.Error(), "blurry shelf")
}

func TestOpenAIAnalyze_NoChoices(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		resp := completion("")
		resp["choices"] = []any{}
		writeJSON(w, resp)
	})

	_, err := newAnalyzer(srv).Analyze(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, vision.ErrUnexpectedShape))
}

func TestOpenAIAnalyze_APIError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": {"message": "model crashed", "type": "server_error"}}`)
	})

	_, err := newAnalyzer(srv).Analyze(context.Background(), bytes.NewReader([]byte{0xFF, 0xD8}), "image/jpeg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, vision.ErrRequest))
	assert.Equal(t, apperr.KindAnalysis, apperr.KindOf(err))
	assert.True(t, apperr.Retryable(err))
}

func TestOpenAIAnalyze_ReadError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ capturedRequest) {
		t.Error("request should not be sent")
	})

	_, err := newAnalyzer(srv).Analyze(context.Background(), &errReader{}, "image/jpeg")
	assert.Error(t, err)
}

type errReader struct{}

func (e *errReader) Read(_ []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
