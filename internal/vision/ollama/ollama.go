package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vbonduro/fridgecam/internal/vision"
)

type OllamaAnalyzer struct {
	host   string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewOllamaAnalyzer(host, model string, timeout time.Duration, logger *slog.Logger) *OllamaAnalyzer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaAnalyzer{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

func (a *OllamaAnalyzer) Analyze(ctx context.Context, r io.Reader, mimeType string) (*vision.AnalysisResult, error) {
	const op = "ollama.Analyze"

	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	payload, err := json.Marshal(generateRequest{
		Model:   a.model,
		Prompt:  vision.AnalysisPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imageData)},
		Stream:  false,
		Options: map[string]any{"num_predict": vision.MaxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, vision.RequestError(op, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, vision.RequestError(op, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody))
	}

	var respBody struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, vision.ShapeError(op, fmt.Sprintf("failed to decode response: %v", err))
	}
	if respBody.Response == "" {
		return nil, vision.ShapeError(op, "empty response")
	}
	a.logger.Debug("vision reply", "content", respBody.Response)
	return vision.Result(respBody.Response)
}
