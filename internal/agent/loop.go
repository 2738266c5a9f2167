package agent

import (
	"context"
	"fmt"

	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
)

// DefaultMaxSteps bounds the number of planner cycles per request.
const DefaultMaxSteps = 10

// StepLoop alternates planner proposals and executor calls until the
// planner produces a final answer or the step ceiling is reached.
type StepLoop struct {
	planner  Planner
	executor Executor
	maxSteps int
	logger   *observability.Logger
}

func NewStepLoop(p Planner, e Executor, maxSteps int, logger *observability.Logger) *StepLoop {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = observability.NewNop()
	}
	return &StepLoop{
		planner:  p,
		executor: e,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

func (l *StepLoop) Mode() Mode {
	return ModeMultiStep
}

func (l *StepLoop) Think(ctx context.Context, req Request) (*Answer, error) {
	l.logger.LogRequest(ctx, string(ModeMultiStep), req.Prompt)
	state := l.run(ctx, req.Prompt, req.Namespace)
	return &Answer{Mode: ModeMultiStep, State: &state}, nil
}

// Run executes the loop for one request. It never fails: planner errors,
// cancellation and panics all end in a terminal state whose final output
// starts with intent.ErrorPrefix. A state without final output means the
// planner did not converge within the ceiling.
func (l *StepLoop) Run(ctx context.Context, userIntent string) intent.ExecutionState {
	return l.run(ctx, userIntent, "")
}

func (l *StepLoop) run(ctx context.Context, userIntent, namespace string) (state intent.ExecutionState) {
	state = intent.NewExecutionState(userIntent)
	defer func() {
		if r := recover(); r != nil {
			state = state.Fail(fmt.Errorf("internal error: %v", r))
		}
	}()

	for cycle := 1; cycle <= l.maxSteps; cycle++ {
		if err := ctx.Err(); err != nil {
			return state.Fail(fmt.Errorf("request cancelled: %w", err))
		}

		proposal, err := l.planner.Propose(ctx, userIntent, state.Steps)
		if err != nil {
			l.logger.LogPlan(ctx, cycle, err.Error(), true)
			return state.Fail(err)
		}
		state = state.Apply(proposal)

		for _, idx := range state.Executable() {
			cmd := withNamespace(*state.Steps[idx-1].Command, namespace)
			l.logger.LogToolCall(ctx, idx, cmd.String())
			res := l.executor.Execute(ctx, cmd)
			l.logger.LogToolResult(ctx, idx, res.Error, res.Code)
			state = state.Attach(idx, res)
		}

		if state.Done() {
			l.logger.LogPlan(ctx, cycle, "", true)
			return state
		}
		l.logger.LogPlan(ctx, cycle, lastCommand(state), false)

		if cycle < l.maxSteps && len(state.Steps) < l.maxSteps {
			state = state.Advance()
		}
	}
	return state
}

func lastCommand(s intent.ExecutionState) string {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if c := s.Steps[i].Command; c != nil {
			return c.String()
		}
	}
	return ""
}
