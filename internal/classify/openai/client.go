package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moatazm17/PicDo-sub000/constants"
	"github.com/moatazm17/PicDo-sub000/internal/classify"
)

const maxPromptChars = 6000

// Classify implements classify.Classifier using text-only chat/completions
// with a JSON-object response format constrained by our schema.
func (c *Client) Classify(ctx context.Context, text, lang string) (*classify.Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("classify.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(text),
		"lang", lang,
	)

	schema := classify.BuildClassificationJSONSchema(constants.AsStringSlice())

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(lang)},
			{"role": "user", "content": buildUserPrompt(text) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("classify.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, httpErr
	}

	var cc struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}
	choice := cc.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		// Surfaces with a phrase the error taxonomy maps to inappropriate_content.
		return nil, fmt.Errorf("classification rejected by content policy: %s", choice.Message.Refusal)
	}

	content, err := classify.ExtractJSONObject(choice.Message.Content)
	if err != nil {
		return nil, err
	}
	rawContent := []byte(content)

	// Validate strictly first.
	if err := classify.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		if !c.cfg.Lenient {
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, touched, sErr := classify.SanitizeResult(rawContent)
		if sErr != nil {
			return nil, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := classify.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("classify.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("classify.extract.lenient_sanitize_applied",
			"req_id", rid, "touched", touched,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	var out classify.Result
	if err := json.Unmarshal(rawContent, &out); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	out.Raw = rawContent

	c.log.Info("classify.extract.ok",
		"req_id", rid,
		"type", out.Type,
		"title", out.BestTitle(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &out, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(rc io.ReadCloser) {
		if err := rc.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func buildSystemPrompt(lang string) string {
	parts := []string{
		"You classify text extracted from a user's photo into exactly one actionable item.",
		"Allowed types (enum): " + strings.Join(constants.AsStringSlice(), ", ") + ".",
		"Always include a short, human-readable 'title'.",
		"Fill the sub-object named after the chosen type with its attributes; put anything extra into the generic 'fields' object as strings.",
		"Use ISO-8601 dates (YYYY-MM-DD) and 24h times (HH:MM).",
		"Include a one-line 'summary' a user would recognize the item by.",
		"Never output null. If an attribute is not present, omit it.",
	}
	if lang = strings.TrimSpace(lang); lang != "" && lang != "en" {
		parts = append(parts, "Write 'title' and 'summary' in language: "+lang+".")
	}
	return strings.Join(parts, " ")
}

func buildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Text extracted from the image:\n")
	if len(text) > maxPromptChars {
		b.WriteString(text[:maxPromptChars])
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
