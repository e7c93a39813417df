package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

// Gemini implements the Engine interface using a Google Gemini vision model
type Gemini struct {
	apiKey    string
	modelName string
	languages []string
	client    *genai.Client
	model     *genai.GenerativeModel
}

// NewGemini creates a new Gemini engine. The client is created by Initialize.
func NewGemini(apiKey string, modelName string) *Gemini {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	return &Gemini{
		apiKey:    apiKey,
		modelName: modelName,
	}
}

// Initialize creates the Gemini client
func (g *Gemini) Initialize(ctx context.Context, languages []string) error {
	if g.apiKey == "" {
		return fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	g.client = client
	g.model = client.GenerativeModel(g.modelName)
	g.languages = languages
	return nil
}

// RecognizeText transcribes the receipt line by line
func (g *Gemini) RecognizeText(ctx context.Context, imageData []byte, contentType string) ([]parsing.Fragment, error) {
	if g.model == nil {
		return nil, ErrEngineNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects the format suffix ("png"), not the MIME type
	parts := []genai.Part{
		genai.ImageData("png", finalImageData),
		genai.Text(promptFor(g.languages)),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	fragments, err := parseFragmentsJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing transcription: %w", err)
	}
	return fragments, nil
}

// Info describes the Gemini engine
func (g *Gemini) Info() EngineInfo {
	return EngineInfo{
		Name:        "Gemini",
		Version:     g.modelName,
		Languages:   g.languages,
		Initialized: g.model != nil,
	}
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// promptFor adds a language hint to the shared transcription prompt
func promptFor(languages []string) string {
	names := make([]string, 0, len(languages))
	for _, l := range languages {
		switch l {
		case "ch_sim":
			names = append(names, "Simplified Chinese")
		case "ch_tra":
			names = append(names, "Traditional Chinese")
		case "en":
			names = append(names, "English")
		default:
			names = append(names, l)
		}
	}
	if len(names) == 0 {
		return transcriptionPrompt
	}
	return transcriptionPrompt + "\n\nThe receipt is printed in: " + strings.Join(names, ", ") + "."
}
