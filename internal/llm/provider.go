package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/comigor/portfolio-chat/internal/config"
)

// NewProvider builds the configured completion provider.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "openrouter":
		return NewOpenAI(NewClient(cfg)), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
