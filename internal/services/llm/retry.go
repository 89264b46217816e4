package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rogo/internal/models"
)

// Backoff defaults tuned for interactive use: the whole ask path runs under a
// 30s budget, so waits stay short.
const (
	defaultMaxRetries        = 2
	defaultInitialBackoff    = 1 * time.Second
	defaultMaxBackoff        = 10 * time.Second
	defaultBackoffMultiplier = 2.0
)

// retryPolicy defines retry behavior for provider API calls.
type retryPolicy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
}

func newRetryPolicy(maxRetries int) retryPolicy {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return retryPolicy{
		maxRetries:     maxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		multiplier:     defaultBackoffMultiplier,
	}
}

// apiError carries the HTTP status from a provider REST call so retry and
// credential classification can branch on it.
type apiError struct {
	provider string
	status   int
	message  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.provider, e.status, e.message)
}

// isRetryable reports whether a provider call is worth retrying. Rate limits
// and transient server errors qualify; auth failures and expired contexts do
// not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *apiError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}

	// SDK errors only expose strings, so detection is text based.
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "overloaded")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
// in Gemini rate limit errors.
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from an error.
// Returns 0 if no delay is found in the error message.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// backoff computes the wait for a given attempt. An API-provided delay takes
// precedence over the configured initial backoff; the result is capped at
// maxBackoff.
func (p retryPolicy) backoff(attempt int, apiDelay time.Duration) time.Duration {
	base := p.initialBackoff
	if apiDelay > 0 {
		base = apiDelay + time.Second
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= p.multiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > p.maxBackoff {
		backoff = p.maxBackoff
	}
	return backoff
}

// do runs call, retrying retryable failures up to maxRetries times.
func (p retryPolicy) do(ctx context.Context, logger arbor.ILogger, op string, call func() error) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		err = call()
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == p.maxRetries {
			break
		}

		backoff := p.backoff(attempt, extractRetryDelay(err))
		logger.Warn().
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying provider call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

// wrapTimeout converts deadline expiry into the typed timeout error so the
// orchestrator can classify it.
func wrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.TimeoutError{Op: op, Err: err}
	}
	return err
}
