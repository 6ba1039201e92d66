package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"wei/internal"
	"wei/internal/config"
)

// Client talks to two OpenAI-compatible chat/completions endpoints: the
// primary vision backend and an alternate used for salvage re-reads and
// decision retries. It implements both Extractor and Decider.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.LLMTimeoutMs) * time.Millisecond},
		log:        log,
	}
}

type endpoint struct {
	baseURL string
	apiKey  string
	model   string
}

func (c *Client) endpointFor(backend Backend) endpoint {
	if backend == BackendSecondary {
		return endpoint{baseURL: c.cfg.LLMAltBaseURL, apiKey: c.cfg.LLMAltAPIKey, model: c.cfg.LLMAltModel}
	}
	return endpoint{baseURL: c.cfg.LLMBaseURL, apiKey: c.cfg.LLMAPIKey, model: c.cfg.LLMModel}
}

// Extract sends the document photo plus instructions to the chosen
// backend and returns the parsed extraction payload.
func (c *Client) Extract(ctx context.Context, imagePath, instructions string, backend Backend) (internal.ExtractedDocument, error) {
	rid := uuid.New().String()
	start := time.Now()
	ep := c.endpointFor(backend)

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"backend", string(backend),
		"model", ep.model,
		"image", filepath.Base(imagePath),
	)

	dataURL, err := encodeImage(imagePath)
	if err != nil {
		c.log.Error("llm.extract.read_image_error", "req_id", rid, "error", err)
		return internal.ExtractedDocument{}, fmt.Errorf("read image: %w", err)
	}

	body := map[string]any{
		"model":       ep.model,
		"temperature": c.cfg.LLMTemperature,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": instructions},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
	}

	content, err := c.chat(ctx, ep, body)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return internal.ExtractedDocument{}, err
	}

	rawContent := []byte(StripJSONFences(content))
	schema := BuildDocumentJSONSchema()
	if err := ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		if !c.cfg.LLMLenientSanitize {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return internal.ExtractedDocument{}, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned := SanitizeDocumentJSON(rawContent)
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return internal.ExtractedDocument{}, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("llm.extract.lenient_sanitize_applied",
			"req_id", rid,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	var doc internal.ExtractedDocument
	if err := json.Unmarshal(rawContent, &doc); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return internal.ExtractedDocument{}, fmt.Errorf("unmarshal document: %w", err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"supplier", doc.SupplierName,
		"candidates", len(doc.StyleCandidates),
		"items", len(doc.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

// Decide sends a text-only reconciliation prompt and returns the
// structured match decision.
func (c *Client) Decide(ctx context.Context, prompt string, backend Backend) (internal.MatchDecision, error) {
	rid := uuid.New().String()
	start := time.Now()
	ep := c.endpointFor(backend)

	c.log.Info("llm.decide.start",
		"req_id", rid,
		"backend", string(backend),
		"model", ep.model,
		"prompt_len", len(prompt),
	)

	body := map[string]any{
		"model":       ep.model,
		"temperature": c.cfg.LLMTemperature,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}

	content, err := c.chat(ctx, ep, body)
	if err != nil {
		c.log.Error("llm.decide.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return internal.MatchDecision{}, err
	}

	rawContent := []byte(StripJSONFences(content))
	if err := ValidateJSONAgainstSchema(BuildDecisionJSONSchema(), rawContent); err != nil {
		c.log.Error("llm.decide.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(rawContent),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return internal.MatchDecision{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var decision internal.MatchDecision
	if err := json.Unmarshal(rawContent, &decision); err != nil {
		c.log.Error("llm.decide.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return internal.MatchDecision{}, fmt.Errorf("unmarshal decision: %w", err)
	}

	c.log.Info("llm.decide.ok",
		"req_id", rid,
		"status", string(decision.Status),
		"direct", len(decision.Direct),
		"merge", len(decision.Merge),
		"split", len(decision.Split),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return decision, nil
}

func (c *Client) chat(ctx context.Context, ep endpoint, body map[string]any) (string, error) {
	url := strings.TrimRight(ep.baseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, url, ep.apiKey, body)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, url, apiKey string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat http error: %w", err)
	}
	defer func(rc io.ReadCloser) {
		if cerr := rc.Close(); cerr != nil {
			c.log.Warn("llm.post.body_close_error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
