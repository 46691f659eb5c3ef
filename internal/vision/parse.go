package vision

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vbonduro/fridgecam/internal/apperr"
)

const (
	fenceStart = "```json\n"
	fenceEnd   = "\n```"
	// PreviewLength bounds how much of a bad reply is echoed in errors.
	PreviewLength = 500
)

// ExtractPayload returns the JSON candidate in a model reply: the body of a
// ```json fence if there is one, otherwise the whole reply. An empty fence,
// where the closing marker overlaps the opening one, counts as no fence.
func ExtractPayload(reply string) string {
	start := strings.Index(reply, fenceStart)
	end := strings.LastIndex(reply, fenceEnd)
	if start != -1 && end != -1 && end >= start+len(fenceStart) {
		return strings.TrimSpace(reply[start+len(fenceStart) : end])
	}
	return strings.TrimSpace(reply)
}

// ParseItems decodes the recognized_items list from a model reply. A reply
// without the key is an empty, successful result.
func ParseItems(reply string) ([]DetectedItem, error) {
	const op = "vision.ParseItems"

	var payload struct {
		Items []struct {
			Name                *string `json:"name"`
			Quantity            string  `json:"quantity"`
			EstimatedExpiryInfo string  `json:"estimated_expiry_info"`
		} `json:"recognized_items"`
	}
	if err := json.Unmarshal([]byte(ExtractPayload(reply)), &payload); err != nil {
		return nil, apperr.Analysis(op, fmt.Errorf("%w: %v (reply: %q)", ErrMalformedJSON, err, Preview(reply)))
	}

	items := make([]DetectedItem, 0, len(payload.Items))
	for i, it := range payload.Items {
		if it.Name == nil || strings.TrimSpace(*it.Name) == "" {
			return nil, apperr.Analysis(op, fmt.Errorf("%w: item %d has no name", ErrUnexpectedShape, i))
		}
		items = append(items, DetectedItem{
			Name:                strings.TrimSpace(*it.Name),
			Quantity:            strings.TrimSpace(it.Quantity),
			EstimatedExpiryInfo: strings.TrimSpace(it.EstimatedExpiryInfo),
		})
	}
	return items, nil
}

// Result builds an AnalysisResult from a raw reply.
func Result(reply string) (*AnalysisResult, error) {
	items, err := ParseItems(reply)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{Items: items, RawResponse: reply}, nil
}

// Preview truncates s to PreviewLength characters, marking the cut with "...".
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLength]) + "..."
}

// RequestError wraps a backend failure as a retryable analysis error.
func RequestError(op string, err error) error {
	return apperr.Analysis(op, fmt.Errorf("%w: %v", ErrRequest, err))
}

// ShapeError reports a reply with no usable content.
func ShapeError(op, detail string) error {
	return apperr.Analysis(op, fmt.Errorf("%w: %s", ErrUnexpectedShape, detail))
}
