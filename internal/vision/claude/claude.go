package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/vbonduro/fridgecam/internal/vision"
)

type ClaudeAnalyzer struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the analyzer at a different Messages API root
// (ending in /v1).
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func NewClaudeAnalyzer(apiKey, model string, logger *slog.Logger, opts ...Option) *ClaudeAnalyzer {
	o := options{timeout: 120 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: o.timeout}),
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(o.baseURL))
	}
	return &ClaudeAnalyzer{
		client: anthropic.NewClient(apiKey, clientOpts...),
		model:  model,
		logger: logger,
	}
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, r io.Reader, mimeType string) (*vision.AnalysisResult, error) {
	const op = "claude.Analyze"

	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		MaxTokens: vision.MaxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
				anthropic.NewTextMessageContent(vision.AnalysisPrompt),
			},
		}},
	})
	if err != nil {
		return nil, vision.RequestError(op, err)
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return nil, vision.ShapeError(op, "no text content in response")
	}
	a.logger.Debug("vision reply", "content", text)
	return vision.Result(text)
}

// normaliseMIME maps a MIME type to one the Anthropic API accepts.
func normaliseMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	case "image/gif":
		return "image/gif"
	case "image/webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
