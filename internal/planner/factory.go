package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rahul/kubeask/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config selects and configures a planner backend.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	PromptDir string
	// Capabilities describe the executor's actions in the system prompts.
	Capabilities []string
}

// New builds the Planner for cfg.Provider.
func New(ctx context.Context, cfg Config, logger *observability.Logger) (Planner, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "heuristic", "":
		return NewHeuristic(logger), nil
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "gemini":
		model, err = NewGeminiModel(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("planner provider %s not implemented", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s planner: %w", cfg.Provider, err)
	}

	prompts := NewPromptManager(cfg.PromptDir, cfg.Capabilities)
	return NewGateway(model, cfg.Provider, prompts, cfg.Timeout, logger), nil
}
