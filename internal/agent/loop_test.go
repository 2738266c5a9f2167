package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rahul/kubeask/internal/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type proposeFunc func(call int, steps []intent.Step) (intent.Proposal, error)

// scriptedPlanner answers Propose with a function of the call number.
type scriptedPlanner struct {
	propose proposeFunc
	parse   func(string) (intent.Intent, error)
	calls   int
}

func (p *scriptedPlanner) Propose(_ context.Context, _ string, steps []intent.Step) (intent.Proposal, error) {
	p.calls++
	return p.propose(p.calls, steps)
}

func (p *scriptedPlanner) Parse(_ context.Context, text string) (intent.Intent, error) {
	return p.parse(text)
}

type countingExecutor struct {
	mu       sync.Mutex
	executed []intent.Intent
}

func (e *countingExecutor) Execute(_ context.Context, in intent.Intent) intent.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, in)
	return intent.Result{Items: []string{fmt.Sprintf("item-%d", len(e.executed))}, Namespace: in.Namespace}
}

func cmd(action intent.Action, res intent.Resource) *intent.Intent {
	return &intent.Intent{Action: action, Resource: res}
}

func pendingIndex(steps []intent.Step) int {
	return steps[len(steps)-1].Index
}

func TestStepLoop_Converges(t *testing.T) {
	p := &scriptedPlanner{propose: func(call int, steps []intent.Step) (intent.Proposal, error) {
		if call == 1 {
			return intent.Proposal{Steps: []intent.Step{{Index: 1, Command: cmd("get", "pods")}}}, nil
		}
		return intent.Proposal{Steps: steps, FinalOutput: "There is one pod."}, nil
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, 10, nil).Run(context.Background(), "how many pods?")

	assert.Equal(t, "There is one pod.", state.FinalOutput)
	assert.Equal(t, "how many pods?", state.Intent)
	require.Len(t, ex.executed, 1)

	want := []intent.Step{
		{Index: 1, Command: cmd("get", "pods"), Output: &intent.Result{Items: []string{"item-1"}}},
		{Index: 2},
	}
	if diff := cmp.Diff(want, state.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestStepLoop_StopsAtCeilingWithoutFinalOutput(t *testing.T) {
	p := &scriptedPlanner{propose: func(_ int, steps []intent.Step) (intent.Proposal, error) {
		return intent.Proposal{Steps: []intent.Step{{Index: pendingIndex(steps), Command: cmd("get", "events")}}}, nil
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, 4, nil).Run(context.Background(), "keep looking")

	assert.False(t, state.Done())
	assert.Equal(t, 4, p.calls)
	assert.Len(t, ex.executed, 4)
	assert.Len(t, state.Steps, 4)
	for _, s := range state.Steps {
		assert.NotNil(t, s.Output)
	}
}

func TestStepLoop_PlannerThatNeverFillsTerminates(t *testing.T) {
	p := &scriptedPlanner{propose: func(int, []intent.Step) (intent.Proposal, error) {
		return intent.Proposal{}, nil
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, DefaultMaxSteps, nil).Run(context.Background(), "?")

	assert.False(t, state.Done())
	assert.Equal(t, DefaultMaxSteps, p.calls)
	assert.Empty(t, ex.executed)
	assert.Len(t, state.Steps, 1)
}

func TestStepLoop_NeverReExecutesAStep(t *testing.T) {
	// The planner rewrites every step it is shown, including executed ones.
	p := &scriptedPlanner{propose: func(call int, steps []intent.Step) (intent.Proposal, error) {
		out := make([]intent.Step, len(steps))
		for i, s := range steps {
			out[i] = intent.Step{
				Index:   s.Index,
				Command: &intent.Intent{Action: "get", Resource: "pods", Namespace: fmt.Sprintf("ns-%d", call)},
				Output:  &intent.Result{Items: []string{"forged"}},
			}
		}
		prop := intent.Proposal{Steps: out}
		if call == 3 {
			prop.FinalOutput = "done"
		}
		return prop, nil
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, 10, nil).Run(context.Background(), "pods")

	require.Equal(t, "done", state.FinalOutput)
	require.Len(t, ex.executed, 3)
	assert.Equal(t, "ns-1", ex.executed[0].Namespace)
	assert.Equal(t, "ns-2", ex.executed[1].Namespace)
	assert.Equal(t, "ns-3", ex.executed[2].Namespace)

	assert.Equal(t, "ns-1", state.Steps[0].Command.Namespace)
	assert.Equal(t, []string{"item-1"}, state.Steps[0].Output.Items)
}

func TestStepLoop_PlannerErrorBecomesFinalOutput(t *testing.T) {
	p := &scriptedPlanner{propose: func(call int, steps []intent.Step) (intent.Proposal, error) {
		if call == 1 {
			return intent.Proposal{Steps: []intent.Step{{Index: 1, Command: cmd("get", "nodes")}}}, nil
		}
		return intent.Proposal{}, errors.New("planner returned malformed output: invalid character 'x'")
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, 10, nil).Run(context.Background(), "nodes")

	assert.True(t, strings.HasPrefix(state.FinalOutput, "Error:"))
	assert.Equal(t, intent.ErrorPrefix+"planner returned malformed output: invalid character 'x'", state.FinalOutput)
	assert.Len(t, ex.executed, 1)
}

func TestStepLoop_PanicBecomesFinalOutput(t *testing.T) {
	p := &scriptedPlanner{propose: func(int, []intent.Step) (intent.Proposal, error) {
		panic("boom")
	}}

	state := NewStepLoop(p, &countingExecutor{}, 10, nil).Run(context.Background(), "nodes")

	assert.True(t, strings.HasPrefix(state.FinalOutput, intent.ErrorPrefix))
	assert.Contains(t, state.FinalOutput, "boom")
}

func TestStepLoop_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedPlanner{propose: func(call int, steps []intent.Step) (intent.Proposal, error) {
		if call == 2 {
			cancel()
		}
		return intent.Proposal{Steps: []intent.Step{{Index: pendingIndex(steps), Command: cmd("get", "pods")}}}, nil
	}}
	ex := &countingExecutor{}

	state := NewStepLoop(p, ex, 10, nil).Run(ctx, "pods")

	assert.Equal(t, 2, p.calls)
	assert.True(t, strings.HasPrefix(state.FinalOutput, intent.ErrorPrefix))
	assert.Contains(t, state.FinalOutput, "cancelled")
}

func TestStepLoop_ThinkMergesNamespace(t *testing.T) {
	p := &scriptedPlanner{propose: func(call int, steps []intent.Step) (intent.Proposal, error) {
		if call == 1 {
			return intent.Proposal{Steps: []intent.Step{
				{Index: 1, Command: cmd("get", "pods")},
			}}, nil
		}
		return intent.Proposal{FinalOutput: "ok"}, nil
	}}
	ex := &countingExecutor{}

	answer, err := NewStepLoop(p, ex, 10, nil).Think(context.Background(), Request{Prompt: "pods", Namespace: "shop"})
	require.NoError(t, err)
	assert.True(t, answer.Converged())
	assert.Equal(t, "ok", answer.Text())
	require.Len(t, ex.executed, 1)
	assert.Equal(t, "shop", ex.executed[0].Namespace)
	// The recorded command keeps what the planner proposed.
	assert.Empty(t, answer.State.Steps[0].Command.Namespace)
}

func TestAnswer_TextWithoutConvergence(t *testing.T) {
	state := intent.ExecutionState{Steps: []intent.Step{
		{Index: 1, Command: cmd("get", "pods"), Output: &intent.Result{Items: []string{"a"}, Namespace: "default"}},
		{Index: 2},
	}}
	a := &Answer{Mode: ModeMultiStep, State: &state}

	assert.False(t, a.Converged())
	assert.Equal(t, "No final answer after 2 steps. Last output:\n1 found in default:\n- a", a.Text())
}
