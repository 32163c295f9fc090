package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mock answers locally when no model credentials are configured.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) Generate(_ context.Context, utterance string, history []Message) (string, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return "", ErrEmptyResponse
	}
	return fmt.Sprintf("You said: %s. That makes %d messages in this conversation so far.", utterance, len(history)+1), nil
}
