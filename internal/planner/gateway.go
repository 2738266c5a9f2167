package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

// Gateway is the Planner backed by a language model. Every call is pinned
// to temperature 0 and bounded by the configured timeout.
type Gateway struct {
	model    llms.Model
	provider string
	prompts  *PromptManager
	timeout  time.Duration
	logger   *observability.Logger
}

func NewGateway(model llms.Model, provider string, prompts *PromptManager, timeout time.Duration, logger *observability.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if prompts == nil {
		prompts = NewPromptManager("", nil)
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Gateway{
		model:    model,
		provider: provider,
		prompts:  prompts,
		timeout:  timeout,
		logger:   logger,
	}
}

type history struct {
	Intent string        `json:"intent"`
	Steps  []intent.Step `json:"steps"`
}

func (g *Gateway) Propose(ctx context.Context, userIntent string, steps []intent.Step) (intent.Proposal, error) {
	system, err := g.prompts.GetStepPlannerPrompt()
	if err != nil {
		return intent.Proposal{}, &PlannerError{Kind: KindCall, Err: err}
	}
	payload, err := json.Marshal(history{Intent: userIntent, Steps: steps})
	if err != nil {
		return intent.Proposal{}, &PlannerError{Kind: KindCall, Err: err}
	}

	text, err := g.generate(ctx, system, string(payload))
	if err != nil {
		return intent.Proposal{}, err
	}

	raw, err := extractJSON(text)
	if err != nil {
		return intent.Proposal{}, &PlannerError{Kind: KindParse, Err: err}
	}
	var p intent.Proposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return intent.Proposal{}, &PlannerError{Kind: KindParse, Err: err}
	}
	if len(p.Steps) == 0 && p.FinalOutput == "" {
		return intent.Proposal{}, &PlannerError{Kind: KindParse, Err: errors.New("response has neither steps nor final_output")}
	}
	return p, nil
}

// parsedIntent accepts a structured intent or a kubectl string under
// "command" / "kubectl_command".
type parsedIntent struct {
	intent.Intent
	Command        string `json:"command"`
	KubectlCommand string `json:"kubectl_command"`
}

func (g *Gateway) Parse(ctx context.Context, userIntent string) (intent.Intent, error) {
	system, err := g.prompts.GetIntentParserPrompt()
	if err != nil {
		return intent.Intent{}, &PlannerError{Kind: KindCall, Err: err}
	}

	text, err := g.generate(ctx, system, userIntent)
	if err != nil {
		return intent.Intent{}, err
	}

	raw, err := extractJSON(text)
	if errors.Is(err, ErrNoJSON) {
		g.logger.LogFallback(ctx, "no JSON object in planner response")
		return FallbackIntent(), nil
	}

	var p parsedIntent
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return intent.Intent{}, &PlannerError{Kind: KindParse, Err: err}
	}

	in := p.Intent
	if in.Action == "" {
		line := p.Command
		if line == "" {
			line = p.KubectlCommand
		}
		if line == "" {
			return intent.Intent{}, &PlannerError{Kind: KindParse, Err: errors.New("response has no action")}
		}
		in, err = intent.ParseCommand(line)
		if err != nil {
			return intent.Intent{}, &PlannerError{Kind: KindParse, Err: err}
		}
	}
	in.Fallback = false
	return in, nil
}

func (g *Gateway) generate(ctx context.Context, system, human string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(human)},
		},
	}

	resp, err := g.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &PlannerError{Kind: KindTimeout, Err: err}
		}
		return "", &PlannerError{Kind: KindCall, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &PlannerError{Kind: KindCall, Err: fmt.Errorf("%s returned no choices", g.provider)}
	}

	text := resp.Choices[0].Content
	g.logger.LogLLM(ctx, g.provider, human, text)
	return text, nil
}
