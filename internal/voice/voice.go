// File: internal/voice/voice.go
// Description: Best-effort speech output. A platform synthesizer binary is
// detected once at construction; when none exists (or voice is disabled) the
// speaker degrades to a silent no-op rather than failing the run.

package voice

import (
	"context"
	"errors"
	"os/exec"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// candidate binaries, preferred first. "say" ships with macOS; the others are
// common on Linux desktops.
var knownEngines = []string{"say", "espeak-ng", "espeak", "spd-say"}

// Synthesizer implements schemas.Speaker over an external TTS binary.
type Synthesizer struct {
	logger *zap.Logger
	binary string
}

// New detects the synthesizer to use. cfg.Engine pins a specific binary;
// empty means autodetect. A Synthesizer with no usable binary is still valid,
// it just says nothing.
func New(cfg config.VoiceConfig, logger *zap.Logger) *Synthesizer {
	s := &Synthesizer{logger: logger.Named("voice")}
	if !cfg.Enabled {
		return s
	}

	candidates := knownEngines
	if cfg.Engine != "" {
		candidates = []string{cfg.Engine}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			s.binary = path
			s.logger.Debug("Voice engine detected", zap.String("binary", path))
			return s
		}
	}

	s.logger.Debug("No voice engine found; speech output disabled")
	return s
}

// Enabled reports whether Say will actually produce audio.
func (s *Synthesizer) Enabled() bool {
	return s.binary != ""
}

// ErrListeningUnsupported reports that no speech recognizer is available.
var ErrListeningUnsupported = errors.New("speech recognition is not supported on this platform")

// Listen is the one-shot speech-to-text hook. No recognizer is bundled;
// callers fall back to the typed goal.
func (s *Synthesizer) Listen(ctx context.Context) (string, error) {
	return "", ErrListeningUnsupported
}

// Say speaks the text synchronously. With no engine it is a silent success;
// engine failures are returned for the caller to log, never to abort on.
func (s *Synthesizer) Say(ctx context.Context, text string) error {
	if s.binary == "" || text == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, s.binary, text)
	if err := cmd.Run(); err != nil {
		return err
	}
	return nil
}
