// Package genai wraps the Gemini generateContent API as the opaque
// generation collaborator consumed by the worker. The core never interprets
// the payloads; it only needs the call's latency, its failure classes and an
// opaque structured result.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides a lightweight facade over Gemini. When no API key is
// configured the client produces a deterministic synthetic design so the
// worker pipeline stays operational in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// GenerateRequest carries one generation call. Input is the job's opaque
// payload; Feedback carries a prior validation failure so the provider can
// correct malformed output on retry.
type GenerateRequest struct {
	Mode      domain.JobMode
	Input     json.RawMessage
	Model     string
	RequestID string
	Feedback  string
}

// ProviderError tags a failed generation call with its HTTP-like status so
// callers can distinguish transient failures from permanent rejections.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth a local retry: rate limits
// and server-side errors are, client rejections are not.
func (e *ProviderError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate runs one generation call and returns the provider's structured
// output verbatim. Schema validation is the caller's concern.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return c.syntheticDesign(req), nil
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode provider request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failures are indistinguishable from server trouble.
		return nil, &ProviderError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(respBody))
		var decoded geminiErrorResponse
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error.Message != "" {
			message = decoded.Error.Message
		}
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("model", model).
			Str("request_id", req.RequestID).
			Msg("genai: generation call failed")
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: message}
	}

	var decoded geminiGenerateContentResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	text := collectText(decoded)
	if text == "" {
		return nil, fmt.Errorf("provider returned no candidates")
	}
	return json.RawMessage(stripCodeFence(text)), nil
}

func (c *Client) buildRequest(req GenerateRequest) geminiGenerateContentRequest {
	var sb strings.Builder
	switch req.Mode {
	case domain.JobModeIterate:
		sb.WriteString("Iterate on the existing design described in the payload below. ")
	default:
		sb.WriteString("Generate a new design from the payload below. ")
	}
	sb.WriteString("Respond with a single JSON object with a top-level \"root\" object containing an \"elements\" array.\n\n")
	sb.Write(req.Input)
	if req.Feedback != "" {
		sb.WriteString("\n\nYour previous response was rejected: ")
		sb.WriteString(req.Feedback)
		sb.WriteString("\nReturn corrected JSON only.")
	}

	return geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: sb.String()}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
}

// syntheticDesign keeps local environments without credentials working
// end-to-end: the result is valid against the design-output schema and stable
// for a given request id.
func (c *Client) syntheticDesign(req GenerateRequest) json.RawMessage {
	payload := map[string]any{
		"root": map[string]any{
			"elements": []any{
				map[string]any{
					"type": "frame",
					"name": "synthetic-" + req.RequestID,
				},
			},
		},
	}
	out, _ := json.Marshal(payload)
	return out
}

func collectText(resp geminiGenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
