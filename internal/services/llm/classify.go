package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IsRateLimitError checks for provider rate limiting. Matches 429 status
// codes, RESOURCE_EXHAUSTED and quota messages across providers.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit")
}

// IsTimeoutError checks whether a call ran out of its per-call deadline
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

// IsAuthError checks for expired or rejected credentials. Treated as
// retryable: tokens refresh between attempts.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "401") || strings.Contains(errStr, "UNAUTHENTICATED")
}

var statusCodeRegex = regexp.MustCompile(`\b([45]\d{2})\b`)

// StatusCodeOf extracts an HTTP status code from a provider error, 0 if
// none is recognizable
func StatusCodeOf(err error) int {
	if err == nil {
		return 0
	}
	matches := statusCodeRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	code, _ := strconv.Atoi(matches[1])
	return code
}

// IsRetryable classifies a provider error per the failure taxonomy:
// rate limits, timeouts, auth expiry and 5xx are transient; 4xx request
// errors are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) || IsTimeoutError(err) || IsAuthError(err) {
		return true
	}
	code := StatusCodeOf(err)
	if code >= 500 {
		return true
	}
	if code >= 400 {
		return false
	}
	// Network-level failures with no status are transient
	return true
}

var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a Gemini
// rate limit error. Returns 0 when the message carries none.
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
