package agent

import (
	"context"
	"fmt"

	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
)

// Direct answers a request with one parsed intent and one execution.
type Direct struct {
	planner  Planner
	executor Executor
	logger   *observability.Logger
}

func NewDirect(p Planner, e Executor, logger *observability.Logger) *Direct {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Direct{planner: p, executor: e, logger: logger}
}

func (d *Direct) Mode() Mode {
	return ModeSingleShot
}

// Ask parses prompt into an intent and executes it. Planner failures are
// returned as they come, so callers can inspect them with errors.As.
func (d *Direct) Ask(ctx context.Context, prompt, namespace string) (intent.Intent, intent.Result, error) {
	in, err := d.planner.Parse(ctx, prompt)
	if err != nil {
		return intent.Intent{}, intent.Result{}, fmt.Errorf("failed to parse intent: %w", err)
	}
	in = withNamespace(in, namespace)

	d.logger.LogToolCall(ctx, 1, in.String())
	res := d.executor.Execute(ctx, in)
	d.logger.LogToolResult(ctx, 1, res.Error, res.Code)
	return in, res, nil
}

func (d *Direct) Think(ctx context.Context, req Request) (*Answer, error) {
	d.logger.LogRequest(ctx, string(ModeSingleShot), req.Prompt)
	in, res, err := d.Ask(ctx, req.Prompt, req.Namespace)
	if err != nil {
		return nil, err
	}
	return &Answer{Mode: ModeSingleShot, Intent: &in, Result: &res}, nil
}
