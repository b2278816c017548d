package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finwire/finwire/internal/models"
)

// retry tuning for provider rate limits and transient transport failures
const (
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2.0
)

// IsRateLimitError matches 429 / RESOURCE_EXHAUSTED provider responses.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}

// IsTransientError reports whether a provider error is worth retrying:
// rate limits, 5xx responses, and transport failures.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}
	errStr := err.Error()
	for _, marker := range []string{"500", "502", "503", "504", "overloaded", "timeout", "connection refused", "connection reset", "EOF"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// retryDelayRegex matches "Please retry in Xs", "retryDelay:Xs", and
// "retry-after: X" hints embedded in provider error messages.
var retryDelayRegex = regexp.MustCompile(`(?i)(?:please retry in |retryDelay[:\s]+|retry-after[:\s]+)(\d+(?:\.\d+)?)\s*s?`)

// ExtractRetryDelay parses the provider-suggested retry delay from an error
// message. Returns 0 when no hint is present.
func ExtractRetryDelay(err error) time.Duration {
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

// withRetries runs call with bounded exponential backoff on transient
// provider failures. A provider-suggested delay overrides the computed
// backoff. Non-transient errors surface immediately; exhausted retries
// surface as LLM_RATE_LIMITED or UPSTREAM_UNAVAILABLE.
func withRetries(ctx context.Context, maxRetries int, call func(ctx context.Context) error) error {
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if hinted := ExtractRetryDelay(lastErr); hinted > 0 {
				wait = hinted
			}
			select {
			case <-ctx.Done():
				return models.WrapServiceError(models.ErrUpstreamUnavailable, "provider call cancelled", ctx.Err())
			case <-time.After(wait):
			}
			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransientError(lastErr) {
			return lastErr
		}
	}

	if IsRateLimitError(lastErr) {
		return models.WrapServiceError(models.ErrLLMRateLimited, "provider rate limit persisted through retries", lastErr)
	}
	return models.WrapServiceError(models.ErrUpstreamUnavailable, "provider retries exhausted", lastErr)
}
