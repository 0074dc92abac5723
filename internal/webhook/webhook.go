// Package webhook delivers signed job-completion notices to
// caller-supplied callback URLs. Delivery is fire-and-forget: it never
// alters job state, and it gives up after a bounded number of attempts.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/retry"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Signature"

	// AttemptHeader carries the 1-based delivery attempt. It is a header
	// rather than a body field so the signature stays identical across
	// retries of the same notice.
	AttemptHeader = "Delivery-Attempt"
)

// Notice is the payload of one delivery. Result is present iff the job
// completed; Error iff it failed.
type Notice struct {
	JobID       string                 `json:"job_id"`
	Status      string                 `json:"status"`
	Result      *domain.TutorialResult `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Sign computes the hex HMAC-SHA256 of body under secret. It is a pure
// function of its arguments.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Dispatcher posts notices with retry. The zero value is not usable;
// construct with NewDispatcher.
type Dispatcher struct {
	secret string
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

func NewDispatcher(secret string, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		policy: retry.DefaultPolicy(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver posts the notice to url, retrying on network errors and non-2xx
// responses. The body and its signature are computed once; only the
// attempt header varies across retries. Exhausting the retry budget is
// logged and swallowed.
func (d *Dispatcher) Deliver(ctx context.Context, url string, notice Notice) {
	body, err := json.Marshal(notice)
	if err != nil {
		d.logger.Error("webhook payload marshal failed",
			slog.String("job_id", notice.JobID), slog.String("error", err.Error()))
		return
	}
	signature := Sign(body, d.secret)

	err = retry.Do(ctx, d.policy, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SignatureHeader, signature)
		req.Header.Set(AttemptHeader, strconv.Itoa(attempt))

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Warn("webhook delivery attempt failed",
				slog.String("job_id", notice.JobID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			d.logger.Warn("webhook delivery attempt rejected",
				slog.String("job_id", notice.JobID),
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode),
			)
			return fmt.Errorf("webhook: callback returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("webhook delivery abandoned",
			slog.String("job_id", notice.JobID),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Info("webhook delivered",
		slog.String("job_id", notice.JobID), slog.String("status", notice.Status))
}
