package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ent0n29/voicebot/internal/logging"
	"github.com/ent0n29/voicebot/internal/reliability"
)

var (
	// ErrFallbackUnavailable is returned when the primary failed and no fallback is configured.
	ErrFallbackUnavailable = errors.New("fallback TTS not configured")
	// ErrNothingToSpeak is returned when the reply has no speakable text left after sanitizing.
	ErrNothingToSpeak = errors.New("nothing to speak")
	// ErrEmptyAudio is returned when a provider reported success but wrote no audio.
	ErrEmptyAudio = errors.New("speech provider produced no audio")
)

// Synthesis describes one successful or failed synthesis attempt.
type Synthesis struct {
	ArtifactPath string
	Provider     string
	// PrimaryErr is set when the primary provider failed and the fallback ran.
	PrimaryErr error
}

// Synthesizer speaks text with a primary provider and falls back to a secondary
// provider on any primary failure. Each call tries the primary first.
type Synthesizer struct {
	primary  SpeechProvider
	fallback SpeechProvider
	dir      string
	logger   *zap.Logger
}

// NewSynthesizer builds a synthesizer writing artifacts under dir. fallback may be nil.
func NewSynthesizer(primary, fallback SpeechProvider, dir string, logger *zap.Logger) *Synthesizer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Synthesizer{primary: primary, fallback: fallback, dir: dir, logger: logging.OrNop(logger)}
}

// HasFallback reports whether a secondary provider is configured.
func (s *Synthesizer) HasFallback() bool {
	return s.fallback != nil
}

// Synthesize writes exactly one non-empty artifact on success. On failure no artifact remains.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (Synthesis, error) {
	speech := SanitizeSpeechText(text)
	if speech == "" {
		return Synthesis{}, ErrNothingToSpeak
	}

	var primaryErr error
	if s.primary == nil {
		primaryErr = reliability.Classify(ProviderGroq, fmt.Errorf("speech: %w", reliability.ErrNotConfigured))
	} else {
		path, err := s.speak(ctx, s.primary, speech)
		if err == nil {
			return Synthesis{ArtifactPath: path, Provider: s.primary.Name()}, nil
		}
		primaryErr = reliability.Classify(s.primary.Name(), err)
	}
	s.logger.Warn("primary speech provider failed",
		zap.String("kind", string(reliability.KindOf(primaryErr))),
		zap.Error(primaryErr),
	)

	if s.fallback == nil {
		return Synthesis{PrimaryErr: primaryErr}, ErrFallbackUnavailable
	}
	path, err := s.speak(ctx, s.fallback, speech)
	if err != nil {
		s.logger.Error("fallback speech provider failed",
			zap.String("provider", s.fallback.Name()),
			zap.Error(err),
		)
		return Synthesis{PrimaryErr: primaryErr}, fmt.Errorf("fallback %s: %w", s.fallback.Name(), err)
	}
	return Synthesis{ArtifactPath: path, Provider: s.fallback.Name(), PrimaryErr: primaryErr}, nil
}

func (s *Synthesizer) speak(ctx context.Context, provider SpeechProvider, text string) (string, error) {
	f, err := os.CreateTemp(s.dir, "voicebot-*."+provider.Format())
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("create artifact: %w", err)
	}

	if err := provider.SpeakToFile(ctx, text, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(path)
		if err != nil {
			return "", fmt.Errorf("stat artifact: %w", err)
		}
		return "", reliability.Classify(provider.Name(), ErrEmptyAudio)
	}
	return filepath.Clean(path), nil
}
