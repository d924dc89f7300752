package errcode

import (
	"context"
	"errors"
	"strings"

	"github.com/moatazm17/PicDo-sub000/internal/extract"
)

// Code is a stable, client-facing error code. Values are part of the API
// contract; never rename them.
type Code string

const (
	MissingUserID        Code = "missing_user_id"
	MissingImage         Code = "missing_image"
	InvalidImage         Code = "invalid_image"
	InvalidRequest       Code = "invalid_request"
	MaintenanceMode      Code = "maintenance_mode"
	LimitReached         Code = "limit_reached"
	NoTextDetected       Code = "no_text_detected"
	InappropriateContent Code = "inappropriate_content"
	ProcessingFailed     Code = "processing_failed"
	NetworkError         Code = "network_error"
	JobNotFound          Code = "job_not_found"
	ServerError          Code = "server_error"
)

// rule maps a known downstream phrase to a code. Rules are evaluated in
// order; the first match wins.
type rule struct {
	substr string
	code   Code
}

// Phrases come from the OCR and classification providers. Best-effort text
// matching; anything unmatched falls through to processing_failed.
var rules = []rule{
	{"content policy", InappropriateContent},
	{"content_policy", InappropriateContent},
	{"safety", InappropriateContent},
	{"inappropriate", InappropriateContent},
	{"no text detected", NoTextDetected},
	{"no_text", NoTextDetected},
	{"empty ocr", NoTextDetected},
	{"connection refused", NetworkError},
	{"connection reset", NetworkError},
	{"no such host", NetworkError},
	{"timeout", NetworkError},
	{"deadline exceeded", NetworkError},
}

// Normalize maps an arbitrary pipeline error into a stable {code, message}
// pair. Sentinels are checked before text matching.
func Normalize(err error) (Code, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, extract.ErrNoText) {
		return NoTextDetected, err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NetworkError, err.Error()
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, r := range rules {
		if strings.Contains(lower, r.substr) {
			return r.code, msg
		}
	}
	return ProcessingFailed, msg
}

// Retryable reports whether a client may usefully retry with the same input.
func Retryable(c Code) bool {
	switch c {
	case ProcessingFailed, NetworkError, MaintenanceMode, ServerError:
		return true
	}
	return false
}
