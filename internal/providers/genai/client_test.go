package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"server/internal/domain"
)

func geminiTextResponse(text string) string {
	resp := geminiGenerateContentResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContent{Parts: []geminiPart{{Text: text}}},
		}},
	}
	out, _ := json.Marshal(resp)
	return string(out)
}

func TestGenerateReturnsStructuredOutput(t *testing.T) {
	var captured geminiGenerateContentRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-2.5-flash") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(geminiTextResponse(`{"root":{"elements":[]}}`)))
	}))
	defer ts.Close()

	client, err := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	out, err := client.Generate(context.Background(), GenerateRequest{
		Mode:      domain.JobModeGenerate,
		Input:     json.RawMessage(`{"prompt":"hero section","design_system":{}}`),
		RequestID: "job-1",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(out) != `{"root":{"elements":[]}}` {
		t.Fatalf("unexpected output: %s", out)
	}
	if len(captured.Contents) != 1 || !strings.Contains(captured.Contents[0].Parts[0].Text, "hero section") {
		t.Fatalf("request does not carry the job input: %+v", captured)
	}
}

func TestGenerateStripsCodeFence(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(geminiTextResponse("```json\n{\"root\":{\"elements\":[]}}\n```")))
	}))
	defer ts.Close()

	client, _ := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	out, err := client.Generate(context.Background(), GenerateRequest{Mode: domain.JobModeGenerate, Input: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if string(out) != `{"root":{"elements":[]}}` {
		t.Fatalf("fence not stripped: %s", out)
	}
}

func TestGenerateAppendsFeedback(t *testing.T) {
	var captured geminiGenerateContentRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(geminiTextResponse(`{"root":{"elements":[]}}`)))
	}))
	defer ts.Close()

	client, _ := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	_, err := client.Generate(context.Background(), GenerateRequest{
		Mode:     domain.JobModeGenerate,
		Input:    json.RawMessage(`{}`),
		Feedback: "root is required",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if !strings.Contains(captured.Contents[0].Parts[0].Text, "root is required") {
		t.Fatalf("feedback missing from request: %s", captured.Contents[0].Parts[0].Text)
	}
}

func TestGenerateClassifiesProviderErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer ts.Close()

			client, _ := NewClient(Options{APIKey: "test-key", BaseURL: ts.URL})
			_, err := client.Generate(context.Background(), GenerateRequest{Mode: domain.JobModeGenerate, Input: json.RawMessage(`{}`)})
			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.StatusCode != tc.status {
				t.Fatalf("status mismatch: got %d want %d", perr.StatusCode, tc.status)
			}
			if perr.Transient() != tc.transient {
				t.Fatalf("transient mismatch for status %d", tc.status)
			}
		})
	}
}

func TestGenerateSyntheticWithoutAPIKey(t *testing.T) {
	client, _ := NewClient(Options{})
	out, err := client.Generate(context.Background(), GenerateRequest{
		Mode:      domain.JobModeGenerate,
		Input:     json.RawMessage(`{}`),
		RequestID: "job-1",
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("synthetic output is not JSON: %v", err)
	}
	if _, ok := decoded["root"]; !ok {
		t.Fatalf("synthetic output missing root: %s", out)
	}
}
