package scanning

import (
	"context"
	"errors"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

var (
	// ErrUnknownEngine is returned when no engine is registered under a name
	ErrUnknownEngine = errors.New("unknown OCR engine")

	// ErrEngineNotInitialized is returned when an engine is used before Initialize succeeds
	ErrEngineNotInitialized = errors.New("OCR engine not initialized")
)

// EngineInfo describes an OCR engine
type EngineInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Languages   []string `json:"languages"`
	Initialized bool     `json:"initialized"`
}

// Engine defines the interface for OCR engines
type Engine interface {
	// Initialize prepares the engine for the given languages (e.g. "ch_sim", "en")
	Initialize(ctx context.Context, languages []string) error
	// RecognizeText runs OCR on an image or PDF and returns the recognized fragments in reading order
	RecognizeText(ctx context.Context, imageData []byte, contentType string) ([]parsing.Fragment, error)
	// Info describes the engine
	Info() EngineInfo
	// Close releases the engine's resources
	Close() error
}

var (
	_ Engine = (*Baidu)(nil)
	_ Engine = (*Gemini)(nil)
	_ Engine = (*Ollama)(nil)
)
