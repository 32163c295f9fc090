package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"terms code", &openai.APIError{Code: "model_terms_required", Message: "accept terms", HTTPStatusCode: 400}, KindTermsRequired},
		{"terms message", &openai.APIError{Message: "The model requires terms acceptance", HTTPStatusCode: 400}, KindTermsRequired},
		{"rate limit status", &openai.APIError{Message: "slow down", HTTPStatusCode: 429}, KindQuotaExceeded},
		{"rate limit code", &openai.APIError{Code: "rate_limit_exceeded", HTTPStatusCode: 400}, KindQuotaExceeded},
		{"server error", &openai.APIError{Message: "boom", HTTPStatusCode: 503}, KindTransient},
		{"bad request", &openai.APIError{Message: "bad", HTTPStatusCode: 400}, KindFatal},
		{"unparsed 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, KindTransient},
		{"unparsed 429", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("too many")}, KindQuotaExceeded},
		{"wrapped api error", fmt.Errorf("tts: %w", &openai.APIError{HTTPStatusCode: 429}), KindQuotaExceeded},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransient},
		{"not configured", fmt.Errorf("groq: %w", ErrNotConfigured), KindFatal},
		{"plain rate limit text", errors.New("Rate limit reached"), KindQuotaExceeded},
		{"plain unknown", errors.New("something odd"), KindFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyWrapsOnce(t *testing.T) {
	if Classify("groq", nil) != nil {
		t.Fatalf("Classify(nil) != nil")
	}
	first := Classify("groq", &openai.APIError{HTTPStatusCode: 429})
	var pe *ProviderError
	if !errors.As(first, &pe) {
		t.Fatalf("Classify() = %T, want *ProviderError", first)
	}
	if pe.Provider != "groq" || pe.Kind != KindQuotaExceeded {
		t.Fatalf("ProviderError = %+v", pe)
	}
	second := Classify("deepgram", fmt.Errorf("outer: %w", first))
	if !errors.As(second, &pe) || pe.Provider != "groq" {
		t.Fatalf("Classify() rewrapped an existing ProviderError: %v", second)
	}
	if KindOf(second) != KindQuotaExceeded {
		t.Fatalf("KindOf(second) = %q", KindOf(second))
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, false},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
