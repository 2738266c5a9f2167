// Package agent runs requests end to end: the step loop that alternates
// planner and executor, and the single-shot parse-then-execute path.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/kubeask/internal/intent"
)

// Mode selects how a request is answered.
type Mode string

const (
	ModeMultiStep  Mode = "multistep"
	ModeSingleShot Mode = "singleshot"
)

// ErrPlannerDisabled is returned by the Disabled brain.
var ErrPlannerDisabled = errors.New("planner is disabled")

// Request is one question from a front door.
type Request struct {
	Prompt string
	// Namespace is applied to namespaced intents that name none.
	Namespace string
}

// Brain defines the core intelligence interface for the agent.
type Brain interface {
	Think(ctx context.Context, req Request) (*Answer, error)
	Mode() Mode
}

// Planner is what the agent needs from the planner gateway.
type Planner interface {
	Propose(ctx context.Context, userIntent string, steps []intent.Step) (intent.Proposal, error)
	Parse(ctx context.Context, userIntent string) (intent.Intent, error)
}

// Executor runs one intent and never fails with a Go error.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent) intent.Result
}

// Answer is the outcome of one request. State is set in multi-step mode,
// Intent and Result in single-shot mode.
type Answer struct {
	Mode   Mode
	State  *intent.ExecutionState
	Intent *intent.Intent
	Result *intent.Result
}

// Converged reports whether the request produced a final answer.
func (a *Answer) Converged() bool {
	if a.Mode == ModeMultiStep {
		return a.State != nil && a.State.Done()
	}
	return a.Result != nil
}

// Text renders the answer for chat front doors and the terminal.
func (a *Answer) Text() string {
	switch {
	case a.Mode == ModeMultiStep && a.State != nil:
		if a.State.Done() {
			return a.State.FinalOutput
		}
		for i := len(a.State.Steps) - 1; i >= 0; i-- {
			if out := a.State.Steps[i].Output; out != nil {
				return fmt.Sprintf("No final answer after %d steps. Last output:\n%s", len(a.State.Steps), out.Summary())
			}
		}
		return fmt.Sprintf("No final answer after %d steps.", len(a.State.Steps))
	case a.Result != nil:
		text := a.Result.Summary()
		if a.Intent != nil && a.Intent.Fallback {
			text = "(I could not understand the request, showing namespaces instead.)\n" + text
		}
		return text
	}
	return ""
}

// Disabled answers every request with ErrPlannerDisabled.
type Disabled struct {
	mode Mode
}

func NewDisabled(mode Mode) *Disabled {
	return &Disabled{mode: mode}
}

func (d *Disabled) Think(context.Context, Request) (*Answer, error) {
	return nil, ErrPlannerDisabled
}

func (d *Disabled) Mode() Mode {
	return d.mode
}

// withNamespace fills the request namespace into a namespaced intent that
// has none.
func withNamespace(in intent.Intent, ns string) intent.Intent {
	if ns == "" || in.Namespace != "" || in.AllNamespaces || !in.Resource.Namespaced() {
		return in
	}
	out := in.Clone()
	out.Namespace = ns
	return out
}
