package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/retry"
	"github.com/adityasoni99/code-iq/internal/testutil"
)

func fastGemini(serverURL string) *Gemini {
	return NewGemini("test-key",
		WithBaseURL(serverURL),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
}

func candidateJSON(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`
}

func TestGenerateReturnsCandidateText(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello, "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	text, err := fastGemini(srv.URL).Generate(context.Background(), "greet")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("key = %q", gotKey)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		w.Write([]byte(candidateJSON("recovered")))
	}))
	defer srv.Close()

	text, err := fastGemini(srv.URL).Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "recovered" {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestGenerateRateLimitExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastGemini(srv.URL).Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != domain.ErrorTypeRateLimit {
		t.Fatalf("want rate_limit error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestGenerateServerErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := fastGemini(srv.URL).Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("got %d calls, want 1 (no retry on 5xx)", calls.Load())
	}
}

func TestGenerateNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := fastGemini(srv.URL).Generate(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "no candidates") {
		t.Errorf("error = %v", err)
	}
}

func TestRetryDelayFromMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    time.Duration
	}{
		{
			name:    "retryDelay detail",
			message: `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"57s"}]}}`,
			want:    57 * time.Second,
		},
		{
			name:    "retry in message",
			message: "Quota exceeded. Please retry in 12.34s.",
			want:    13 * time.Second,
		},
		{
			name:    "no delay",
			message: "Quota exceeded.",
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryDelayFromMessage(tt.message); got != tt.want {
				t.Errorf("retryDelayFromMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestGenerateReplaysRecordedExchange(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "gemini_generate")
	defer cleanup()

	g := NewGemini("vcr-test-key",
		WithHTTPClient(testutil.VCRHTTPClient(r)),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	text, err := g.Generate(context.Background(), "In one word, what language is this repository written in?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Go" {
		t.Errorf("text = %q", text)
	}
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	text, err := g.Generate(context.Background(), "hi")
	if err != nil || text != "echo: hi" {
		t.Errorf("got %q, %v", text, err)
	}
}
