package extract

import (
	"context"
	"errors"
	"time"
)

// ErrNoText is the distinguishable no-usable-text condition. The pipeline
// maps it straight to a terminal failure without attempting classification.
var ErrNoText = errors.New("no text detected")

// Result is the outcome of one OCR pass.
type Result struct {
	Text     string
	Method   string // "tesseract" | "gemini"
	Duration time.Duration
}

// TextExtractor turns a preprocessed image into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte) (Result, error)
}
