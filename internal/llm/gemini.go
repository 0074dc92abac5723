package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/retry"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// GeminiOption configures the client.
type GeminiOption func(*Gemini)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) GeminiOption {
	return func(g *Gemini) {
		g.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(g *Gemini) {
		g.client = client
	}
}

// WithModel overrides the default model.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithRetryPolicy overrides the rate-limit retry policy.
func WithRetryPolicy(p retry.Policy) GeminiOption {
	return func(g *Gemini) {
		g.policy = p
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) GeminiOption {
	return func(g *Gemini) {
		g.logger = logger
	}
}

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
	logger  *slog.Logger
}

// NewGemini creates a Gemini-backed Generator.
func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		policy:  retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 2 * time.Minute},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details []struct {
		Type       string `json:"@type"`
		RetryDelay string `json:"retryDelay"`
	} `json:"details"`
}

// Generate sends the prompt and returns the first candidate's text.
// A 429 is retried with backoff (honoring the server's RetryInfo delay
// when present) up to the policy's attempt budget, then escalated as a
// rate-limit error. Other provider failures are not retried.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := retry.Do(ctx, g.policy, func(attempt int) error {
		out, err := g.generateOnce(ctx, prompt)
		if err != nil {
			var apiErr *domain.APIError
			if isRateLimit(err, &apiErr) {
				delay := retryDelayFromMessage(apiErr.Message)
				g.logger.Warn("llm rate limited",
					slog.Int("attempt", attempt),
					slog.Duration("retry_delay", delay),
				)
				if delay > 0 {
					return retry.After(err, delay)
				}
				return err
			}
			return retry.Permanent(err)
		}
		text = out
		return nil
	})
	return text, err
}

func (g *Gemini) generateOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", domain.ErrProvider(fmt.Sprintf("gemini request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.ErrProvider(fmt.Sprintf("read gemini response: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", domain.ErrRateLimited(truncate(string(respBody), 500))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.ErrProvider(fmt.Sprintf("gemini returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500)))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", domain.ErrProvider(fmt.Sprintf("decode gemini response: %v", err))
	}
	if out.Error != nil {
		return "", domain.ErrProvider(out.Error.Message)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", domain.ErrProvider("gemini returned no candidates")
	}

	var buf bytes.Buffer
	for _, p := range out.Candidates[0].Content.Parts {
		buf.WriteString(p.Text)
	}
	return buf.String(), nil
}

func isRateLimit(err error, target **domain.APIError) bool {
	apiErr, ok := err.(*domain.APIError)
	if !ok || apiErr.Type != domain.ErrorTypeRateLimit {
		return false
	}
	*target = apiErr
	return true
}

var (
	// 'retryDelay': '57s' in the RetryInfo detail.
	retryDelayRe = regexp.MustCompile(`(?i)retryDelay['"]?\s*:\s*['"]?(\d+)s`)
	// "Please retry in 57.28s" in the message text.
	retryInRe = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)
)

// retryDelayFromMessage extracts the server-suggested delay from a 429
// body. Returns zero when no delay is present.
func retryDelayFromMessage(message string) time.Duration {
	if m := retryDelayRe.FindStringSubmatch(message); m != nil {
		if sec, err := strconv.Atoi(m[1]); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	if m := retryInRe.FindStringSubmatch(message); m != nil {
		if sec, err := strconv.ParseFloat(m[1], 64); err == nil && sec > 0 {
			return time.Duration(sec+1) * time.Second
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Generator = (*Gemini)(nil)
