// Package openai analyzes photos through any OpenAI-compatible chat
// completions endpoint (LM Studio, OpenRouter, OpenAI).
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/vbonduro/fridgecam/internal/vision"
)

const DefaultTimeout = 120 * time.Second

type OpenAIAnalyzer struct {
	client *goopenai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAIAnalyzer(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIAnalyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIAnalyzer{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, r io.Reader, mimeType string) (*vision.AnalysisResult, error) {
	const op = "openai.Analyze"

	imageData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	a.logger.Info("sending vision request", "model", a.model, "image_bytes", len(imageData))
	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: vision.MaxTokens,
		Messages: []goopenai.ChatCompletionMessage{{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{Type: goopenai.ChatMessagePartTypeText, Text: vision.AnalysisPrompt},
				{
					Type: goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: goopenai.ImageURLDetailAuto,
					},
				},
			},
		}},
	})
	if err != nil {
		return nil, vision.RequestError(op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, vision.ShapeError(op, "no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, vision.ShapeError(op, "empty message content")
	}
	a.logger.Debug("vision reply", "content", content)

	result, err := vision.Result(content)
	if err != nil {
		a.logger.Error("failed to parse vision reply", "preview", vision.Preview(content), "error", err)
		return nil, err
	}
	a.logger.Info("vision reply parsed", "items", len(result.Items))
	return result, nil
}
