package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

// transcriptionPrompt is the shared prompt used by the LLM engines to transcribe receipts
const transcriptionPrompt = `You are transcribing a photo of a retail purchase receipt. Read every printed line from top to bottom, exactly as it appears.

Rules:
- Emit one entry per printed line, in reading order (top to bottom, left to right).
- Copy the text verbatim. Keep prices, dates, times and punctuation exactly as printed. Do not translate, correct or reformat anything.
- Separate an item name from its price with a single space when they share a line.
- "confidence" is your confidence in the transcription of that line, between 0 and 1.

Return ONLY valid JSON in this exact format:
[
  {"text": "first line", "confidence": 0.95},
  {"text": "second line", "confidence": 0.9}
]

Do not include any text before or after the JSON and do not use markdown code blocks.`

// transcriptLine is one line of an LLM transcription
type transcriptLine struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// parseFragmentsJSON parses an LLM transcription into fragments.
// LLM engines have no geometry, so every bounding box is zero.
func parseFragmentsJSON(text string) ([]parsing.Fragment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "[")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	endIdx := strings.LastIndex(text, "]")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON array in response")
	}
	text = text[startIdx : endIdx+1]

	var lines []transcriptLine
	if err := json.Unmarshal([]byte(text), &lines); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	fragments := make([]parsing.Fragment, 0, len(lines))
	for _, l := range lines {
		// a line the model did not score is taken at face value
		confidence := 1.0
		if l.Confidence != nil {
			confidence = min(max(*l.Confidence, 0), 1)
		}
		fragments = append(fragments, parsing.Fragment{
			Text:        l.Text,
			Confidence:  confidence,
			BoundingBox: make([]float64, 8),
		})
	}
	return fragments, nil
}
