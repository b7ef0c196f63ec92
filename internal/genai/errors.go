package genai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

var (
	// ErrTimeout indicates the completion did not finish in time. It is the only retryable error.
	ErrTimeout = errors.New("llm request timeout")
	// ErrRateLimit indicates the provider rejected the call with a rate limit.
	ErrRateLimit = errors.New("llm rate limit exceeded")
	// ErrAuth indicates a missing, invalid, or unauthorized API key.
	ErrAuth = errors.New("llm authentication failed")
	// ErrNotConfigured indicates no API key was configured at startup.
	ErrNotConfigured = errors.New("llm client not configured")
	// ErrNoChoicesReturned indicates the provider answered with zero choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// classifyError maps SDK and transport errors onto the package sentinels.
// Unrecognized errors are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: status %d", ErrAuth, apiErr.StatusCode)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", ErrRateLimit, apiErr.StatusCode)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: status %d", ErrTimeout, apiErr.StatusCode)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// IsTimeout reports whether err indicates a timeout, either by sentinel or by message.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrAuth) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
