package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// noTextMarker is what the prompt instructs the model to emit for images
// without readable text, so the condition is machine-distinguishable.
const noTextMarker = "NO_TEXT"

const transcribePrompt = `Transcribe ALL readable text in this image exactly as written,
preserving line breaks. Do not describe the image, do not translate, do not add
commentary. If the image contains no readable text at all, respond with exactly:
` + noTextMarker

// Gemini implements TextExtractor with a vision model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		logger: logger,
	}, nil
}

func (g *Gemini) Extract(ctx context.Context, image []byte) (Result, error) {
	start := time.Now()

	// Preprocessing always hands us JPEG bytes.
	parts := []genai.Part{
		genai.ImageData("jpeg", image),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	text := Normalize(b.String())
	res := Result{Text: text, Method: "gemini", Duration: time.Since(start)}
	if text == "" || strings.EqualFold(text, noTextMarker) {
		res.Text = ""
		return res, ErrNoText
	}

	g.logger.Debug("ocr ok", "method", res.Method, "bytes", len(text),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
