package llm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/reliability"
)

const ProviderGroq = "groq"

//go:embed persona_default.txt
var defaultPersona string

// ErrEmptyResponse is returned when the model produced no usable reply.
var ErrEmptyResponse = errors.New("empty model response")

// Message is one prior turn as sent to the model.
type Message struct {
	Role    string
	Content string
}

// ChatAPI is the subset of the OpenAI-compatible client used for replies.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls generation.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Persona     string
}

// Generator answers user utterances in the persona's voice.
type Generator struct {
	api    ChatAPI
	cfg    Config
	logger *zap.Logger
}

// NewGenerator builds a generator. A nil api means the provider has no credentials.
func NewGenerator(api ChatAPI, cfg Config, logger *zap.Logger) *Generator {
	if strings.TrimSpace(cfg.Persona) == "" {
		cfg.Persona = DefaultPersona()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	return &Generator{api: api, cfg: cfg, logger: logging.OrNop(logger)}
}

// Generate sends the persona, prior turns and the new utterance in that order.
func (g *Generator) Generate(ctx context.Context, utterance string, history []Message) (string, error) {
	if g.api == nil {
		return "", reliability.Classify(ProviderGroq, fmt.Errorf("chat completion: %w", reliability.ErrNotConfigured))
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: g.cfg.Persona})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})

	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: float32(g.cfg.Temperature),
	})
	if err != nil {
		return "", reliability.Classify(ProviderGroq, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("reply generated",
		zap.String("model", g.cfg.Model),
		zap.Int("history", len(history)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return reply, nil
}

// DefaultPersona returns the built-in persona instruction.
func DefaultPersona() string {
	return strings.TrimSpace(defaultPersona)
}

// LoadPersona reads a persona instruction from path, or returns the built-in one when path is empty.
func LoadPersona(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPersona(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read persona prompt: %w", err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return "", fmt.Errorf("persona prompt %s is empty", path)
	}
	return persona, nil
}
