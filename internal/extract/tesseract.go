package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	WorkDir     string // scratch dir for input files, default os.TempDir()
}

// Tesseract shells out to the tesseract binary. The image arrives as bytes,
// so each call writes a scratch file and removes it afterwards.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Tesseract{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewTesseractWithRunner is used by tests to stub the external command.
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	t := NewTesseract(cfg, logger)
	t.runner = runner
	return t
}

func (t *Tesseract) Extract(ctx context.Context, image []byte) (Result, error) {
	start := time.Now()

	path := filepath.Join(t.cfg.WorkDir, "picdo-ocr-"+uuid.New().String()+".jpg")
	if err := os.WriteFile(path, image, 0o600); err != nil {
		return Result{}, fmt.Errorf("write scratch image: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			t.logger.Warn("scratch image cleanup failed", "path", path, "error", err)
		}
	}()

	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	text := Normalize(string(out))
	res := Result{Text: text, Method: "tesseract", Duration: time.Since(start)}
	if text == "" {
		return res, ErrNoText
	}

	t.logger.Debug("ocr ok", "method", res.Method, "bytes", len(text),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

var (
	reBoxNoise = regexp.MustCompile(`(?m)^[|_\-=~ ]{3,}$`)
	reBlank    = regexp.MustCompile(`\n{3,}`)
)

// Normalize strips OCR line noise and collapses blank runs.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
