package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cam3ron2/commit-stats/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig configures GitHub client retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep is injected for testability. It returns early with the context error on cancellation.
	Sleep func(ctx context.Context, duration time.Duration) error

	mu         sync.Mutex
	pauseUntil time.Time
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      sleepContext,
	}
}

// Do executes a request with retry and rate-limit awareness. When attempts run out on a
// rate-limited or transient response, that last response is returned with its body open.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("commit-stats/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		if pause := c.pendingPause(); pause > 0 {
			if sleepErr := c.Sleep(ctx, pause); sleepErr != nil {
				return nil, metadata, sleepErr
			}
		}

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == c.retry.MaxAttempts || ctx.Err() != nil {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, metadata, err
			}
			if sleepErr := c.Sleep(ctx, backoffForAttempt(c.retry, attempt)); sleepErr != nil {
				return nil, metadata, sleepErr
			}
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Int64("github.rate_limit_reset_unix", headers.ResetUnix),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		var wait time.Duration
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			// A successful response below the remaining threshold is kept; the pause applies to the next call.
			if !decision.Allow {
				c.pauseFor(decision.WaitFor)
			}
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return resp, metadata, nil
		case headers.PrimaryLimited || headers.SecondaryLimited:
			wait = decision.WaitFor
			if wait <= 0 {
				wait = backoffForAttempt(c.retry, attempt)
			}
		case isTransientStatus(resp.StatusCode):
			wait = backoffForAttempt(c.retry, attempt)
			if !decision.Allow && decision.WaitFor > wait {
				wait = decision.WaitFor
			}
		default:
			// Permanent statuses return at once; a low budget still delays the next call.
			if !decision.Allow {
				c.pauseFor(decision.WaitFor)
			}
			if span != nil {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
			}
			return resp, metadata, nil
		}

		if attempt == c.retry.MaxAttempts {
			if span != nil {
				span.SetStatus(codes.Error, fmt.Sprintf("attempts exhausted with status %d", resp.StatusCode))
			}
			return resp, metadata, nil
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		if sleepErr := c.Sleep(ctx, wait); sleepErr != nil {
			return nil, metadata, sleepErr
		}
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

// Transport exposes the retry and rate-limit handling to SDK clients such as go-github.
func (c *Client) Transport() http.RoundTripper {
	return retryTransport{client: c}
}

type retryTransport struct {
	client *Client
}

func (t retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, _, err := t.client.Do(req)
	return resp, err
}

func (c *Client) now() time.Time {
	if c.ratePolicy.Now != nil {
		return c.ratePolicy.Now()
	}
	return time.Now()
}

func (c *Client) pendingPause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pauseUntil.IsZero() {
		return 0
	}
	wait := c.pauseUntil.Sub(c.now())
	c.pauseUntil = time.Time{}
	return wait
}

func (c *Client) pauseFor(wait time.Duration) {
	if wait <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseUntil = c.now().Add(wait)
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
