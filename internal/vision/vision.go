package vision

import (
	"context"
	"errors"
	"io"
)

// AnalysisPrompt is the shared prompt used by all vision adapters.
const AnalysisPrompt = `You are an assistant that identifies food in photos and estimates how long it will keep.

When you receive an image, do the following and produce JSON output:

1. Scan and identify: look carefully at the image and identify individual food or drink items, or groups of items in the same state.
2. Analyse: using each item's specific type, its visible state (quantity, whether the packaging is intact, any unusual appearance) and general knowledge of how that kind of food keeps, estimate as specifically as you can how long it can be stored.
3. Return every identified item or group in the JSON format below.

JSON format:

` + "```json" + `
{
  "recognized_items": [
    {
      "name": "item name, as specific as possible, e.g. green apple (large), opened 330ml Coca-Cola, unopened carton of eggs",
      "quantity": "quantity description, e.g. 1, 5, 1 bottle, 3 bottles, 1 box (10)",
      "estimated_expiry_info": "a clear time range, e.g. within a week, within 3 days, 2-3 weeks"
    }
  ]
}
` + "```" + `

Strict rules for estimated_expiry_info:
- Give a time range directly (e.g. "within a week", "2-3 weeks", "2 months").
- Do not give subjective judgements (e.g. "looks fresh") or full sentences (e.g. "best eaten within a week").

Other rules:
- name must be as specific as possible. If items of the same kind differ in state (size, opened or not, brand), distinguish them in the name.
- quantity must describe exactly how many are in the item or group.
- If you cannot identify any items, return an empty list: { "recognized_items": [] }.

Follow all of the rules and the JSON format exactly.`

// MaxTokens caps the model reply. A crowded fridge is roughly 30 items at
// ~25 tokens each.
const MaxTokens = 1024

type VisionAnalyzer interface {
	Analyze(ctx context.Context, r io.Reader, mimeType string) (*AnalysisResult, error)
}

type AnalysisResult struct {
	Items       []DetectedItem
	RawResponse string
}

type DetectedItem struct {
	Name                string `json:"name"`
	Quantity            string `json:"quantity"`
	EstimatedExpiryInfo string `json:"estimated_expiry_info"`
}

var (
	// ErrRequest covers transport failures and non-success API answers.
	ErrRequest = errors.New("vision request failed")
	// ErrMalformedJSON means the model replied but not with parseable JSON.
	ErrMalformedJSON = errors.New("vision reply is not valid JSON")
	// ErrUnexpectedShape means the API answered without usable content.
	ErrUnexpectedShape = errors.New("vision reply has unexpected shape")
)
