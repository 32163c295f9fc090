package voice

import (
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/rest"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/ent0n29/voicebot/internal/reliability"
)

const ProviderDeepgram = "deepgram"

type saveFunc func(ctx context.Context, path, text string) error

// DeepgramSpeaker synthesizes speech with Deepgram Aura over REST; the SDK writes the file.
type DeepgramSpeaker struct {
	model string
	save  saveFunc
}

// NewDeepgramSpeaker builds the Aura speaker.
func NewDeepgramSpeaker(apiKey, model string) *DeepgramSpeaker {
	if strings.TrimSpace(model) == "" {
		model = "aura-2-odysseus-en"
	}
	client := speak.NewREST(strings.TrimSpace(apiKey), &clientinterfaces.ClientOptions{})
	dg := api.New(client)
	return &DeepgramSpeaker{
		model: model,
		save: func(ctx context.Context, path, text string) error {
			_, err := dg.ToSave(ctx, path, text, &clientinterfaces.SpeakOptions{Model: model})
			return err
		},
	}
}

func (s *DeepgramSpeaker) Name() string   { return ProviderDeepgram }
func (s *DeepgramSpeaker) Format() string { return "mp3" }

func (s *DeepgramSpeaker) SpeakToFile(ctx context.Context, text, path string) error {
	if err := s.save(ctx, path, text); err != nil {
		return reliability.Classify(ProviderDeepgram, fmt.Errorf("speak %s: %w", s.model, err))
	}
	return nil
}
