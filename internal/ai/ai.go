// Package ai abstracts interchangeable chat-completion backends behind one
// interface. Message-shape translation belongs to the adapters.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/adapters/ollama"
	"github.com/sprintpilot/sprintpilot/internal/adapters/openai"
	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/domain"
)

type Client interface {
	Chat(ctx context.Context, messages []domain.Message) (string, error)
}

// Factory builds a Client for a named engine using the user's credentials.
type Factory struct {
	cfg config.Config
	log zerolog.Logger
}

func NewFactory(cfg config.Config, log zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) Client(engine, credentials string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "openai", "chatgpt":
		if strings.TrimSpace(credentials) == "" {
			return nil, fmt.Errorf("%w: no openai credentials", domain.ErrConfigMissing)
		}
		return openai.NewClient(credentials, f.cfg.OpenAIModel, f.log), nil
	case "ollama":
		// for ollama the credential field holds the host URL, if any
		host := strings.TrimSpace(credentials)
		if host == "" {
			host = f.cfg.OllamaHost
		}
		return ollama.NewClient(host, f.cfg.OllamaModel, f.log), nil
	default:
		return nil, fmt.Errorf("%w: unsupported ai engine %q", domain.ErrConfigMissing, engine)
	}
}
