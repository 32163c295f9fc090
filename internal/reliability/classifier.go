package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Kind is the failure class of a provider call. Fallback decisions use Kind, never message text.
type Kind string

const (
	KindQuotaExceeded Kind = "quota_exceeded"
	KindTermsRequired Kind = "terms_required"
	KindTransient     Kind = "transient"
	KindFatal         Kind = "fatal"
)

// ErrNotConfigured marks a provider that has no credentials.
var ErrNotConfigured = errors.New("provider not configured")

// ProviderError wraps a failed call to an external provider.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Classify wraps err as a ProviderError for provider. An existing ProviderError is returned as is.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Kind: KindOf(err), Err: err}
}

// KindOf returns the failure class of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrNotConfigured) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if code == "model_terms_required" || mentionsTerms(apiErr.Message) {
			return KindTermsRequired
		}
		if code == "rate_limit_exceeded" {
			return KindQuotaExceeded
		}
		return kindOfStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if mentionsTerms(string(reqErr.Body)) {
			return KindTermsRequired
		}
		return kindOfStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case mentionsTerms(msg):
		return KindTermsRequired
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return KindQuotaExceeded
	default:
		return KindFatal
	}
}

// IsRetryableHTTPStatus reports whether code is a temporary upstream condition.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func kindOfStatus(code int) Kind {
	switch {
	case code == 429:
		return KindQuotaExceeded
	case IsRetryableHTTPStatus(code):
		return KindTransient
	default:
		return KindFatal
	}
}

func mentionsTerms(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "terms acceptance") || strings.Contains(msg, "model_terms_required")
}
