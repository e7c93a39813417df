// Package tesseract provides a local OCR engine backed by Tesseract.
// It needs libtesseract at build time, so it lives apart from the HTTP engines.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/receipt-ocr/internal/parsing"
	"github.com/zombor/receipt-ocr/internal/scanning"
)

// languageCodes maps engine-neutral language names to Tesseract traineddata names
var languageCodes = map[string]string{
	"ch_sim": "chi_sim",
	"ch_tra": "chi_tra",
	"en":     "eng",
}

// Engine implements scanning.Engine with gosseract
type Engine struct {
	languages []string
	version   string
}

// New creates a new Tesseract engine
func New() *Engine {
	return &Engine{}
}

// Initialize maps the requested languages to traineddata names
func (e *Engine) Initialize(ctx context.Context, languages []string) error {
	version := gosseract.Version()
	if version == "" {
		return fmt.Errorf("tesseract library not available")
	}

	e.languages = tesseractLanguages(languages)
	e.version = version
	return nil
}

// RecognizeText returns one fragment per text line. Confidence is Tesseract's 0-100 score.
func (e *Engine) RecognizeText(ctx context.Context, imageData []byte, contentType string) ([]parsing.Fragment, error) {
	if e.version == "" {
		return nil, scanning.ErrEngineNotInitialized
	}

	pngData, err := scanning.NormalizeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// gosseract clients are not safe for concurrent use, so each call gets its own
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognizing text lines: %w", err)
	}

	fragments := make([]parsing.Fragment, 0, len(boxes))
	for _, b := range boxes {
		r := b.Box
		fragments = append(fragments, parsing.Fragment{
			Text:       b.Word,
			Confidence: b.Confidence,
			BoundingBox: []float64{
				float64(r.Min.X), float64(r.Min.Y),
				float64(r.Max.X), float64(r.Min.Y),
				float64(r.Max.X), float64(r.Max.Y),
				float64(r.Min.X), float64(r.Max.Y),
			},
		})
	}
	return fragments, nil
}

// Info describes the Tesseract engine
func (e *Engine) Info() scanning.EngineInfo {
	return scanning.EngineInfo{
		Name:        "Tesseract",
		Version:     e.version,
		Languages:   e.languages,
		Initialized: e.version != "",
	}
}

// Close is a no-op; clients are closed after every call
func (e *Engine) Close() error {
	return nil
}

func tesseractLanguages(languages []string) []string {
	if len(languages) == 0 {
		return []string{"eng"}
	}
	out := make([]string, 0, len(languages))
	for _, l := range languages {
		if code, ok := languageCodes[l]; ok {
			out = append(out, code)
			continue
		}
		out = append(out, l)
	}
	return out
}

var _ scanning.Engine = (*Engine)(nil)
