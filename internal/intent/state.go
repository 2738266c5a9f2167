package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorPrefix starts every final answer produced from an internal failure.
const ErrorPrefix = "Error: An error occurred while generating the response: "

// Step is one command/output cycle of the loop. A step is pending while
// Command is nil and executed once Output is set; it never goes back.
type Step struct {
	Index   int     `json:"step"`
	Command *Intent `json:"command"`
	Output  *Result `json:"output"`
}

// Pending reports whether the planner has not yet filled the step.
func (s Step) Pending() bool {
	return s.Command == nil
}

// Executable reports whether the step has a command that has not run.
func (s Step) Executable() bool {
	return s.Command != nil && s.Output == nil
}

// UnmarshalJSON accepts the command either as a structured intent or as a
// kubectl-style string. Strings that cannot be parsed still decode, into an
// intent the allow-list will reject, so one bad step never discards the rest
// of a planner response.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index          int             `json:"step"`
		AltIndex       int             `json:"index"`
		Command        json.RawMessage `json:"command"`
		KubectlCommand json.RawMessage `json:"kubectl_command"`
		Output         *Result         `json:"output"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Index = raw.Index
	if s.Index == 0 {
		s.Index = raw.AltIndex
	}
	s.Output = raw.Output
	s.Command = nil

	cmd := raw.Command
	if isNull(cmd) {
		cmd = raw.KubectlCommand
	}
	if isNull(cmd) {
		return nil
	}

	switch cmd[0] {
	case '"':
		var text string
		if err := json.Unmarshal(cmd, &text); err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		in := ParseCommandLenient(text)
		s.Command = &in
	case '{':
		var in Intent
		if err := json.Unmarshal(cmd, &in); err != nil {
			return fmt.Errorf("step %d command: %w", s.Index, err)
		}
		s.Command = &in
	default:
		return fmt.Errorf("step %d command: unsupported JSON value %s", s.Index, cmd)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Proposal is what a planner returns for one cycle: the step list with the
// pending step filled in, and optionally the final answer.
type Proposal struct {
	Intent      string `json:"intent,omitempty"`
	Steps       []Step `json:"steps"`
	FinalOutput string `json:"final_output,omitempty"`
}

// ExecutionState is the accumulated session of one request. Transitions are
// pure: every method returns a new state and leaves the receiver untouched.
type ExecutionState struct {
	Intent      string `json:"intent"`
	Steps       []Step `json:"steps"`
	FinalOutput string `json:"final_output,omitempty"`
}

// NewExecutionState starts a session with a single pending step.
func NewExecutionState(userIntent string) ExecutionState {
	return ExecutionState{
		Intent: userIntent,
		Steps:  []Step{{Index: 1}},
	}
}

// Done reports whether a final answer has been produced.
func (s ExecutionState) Done() bool {
	return s.FinalOutput != ""
}

func (s ExecutionState) clone() ExecutionState {
	out := s
	out.Steps = make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		out.Steps[i] = step
		if step.Command != nil {
			c := step.Command.Clone()
			out.Steps[i].Command = &c
		}
	}
	return out
}

// Apply merges a planner proposal. Only steps the session already tracks
// can receive a command, a command is never replaced once set, and outputs
// supplied by the planner are ignored: output only comes from execution.
func (s ExecutionState) Apply(p Proposal) ExecutionState {
	next := s.clone()
	if next.Done() {
		return next
	}
	for _, proposed := range p.Steps {
		i := proposed.Index - 1
		if i < 0 || i >= len(next.Steps) || proposed.Command == nil {
			continue
		}
		if next.Steps[i].Command != nil {
			continue
		}
		c := proposed.Command.Clone()
		next.Steps[i].Command = &c
	}
	// A planner that echoes the history without indices still fills the
	// pending step with its last command.
	if last := len(next.Steps) - 1; next.Steps[last].Pending() && len(p.Steps) > 0 {
		tail := p.Steps[len(p.Steps)-1]
		if tail.Index == 0 && tail.Command != nil {
			c := tail.Command.Clone()
			next.Steps[last].Command = &c
		}
	}
	if p.FinalOutput != "" {
		next.FinalOutput = p.FinalOutput
	}
	return next
}

// Executable returns the indices (1-based) of steps ready to run.
func (s ExecutionState) Executable() []int {
	var out []int
	for _, step := range s.Steps {
		if step.Executable() {
			out = append(out, step.Index)
		}
	}
	return out
}

// Attach records the output of an executed step. Steps that already hold
// output, or have no command, are left as they are.
func (s ExecutionState) Attach(index int, r Result) ExecutionState {
	next := s.clone()
	i := index - 1
	if i < 0 || i >= len(next.Steps) || !next.Steps[i].Executable() {
		return next
	}
	out := r
	next.Steps[i].Output = &out
	return next
}

// Advance appends a new pending step. It is a no-op while the last step is
// still pending, which keeps at most one pending step in the history.
func (s ExecutionState) Advance() ExecutionState {
	next := s.clone()
	if n := len(next.Steps); n > 0 && next.Steps[n-1].Pending() {
		return next
	}
	next.Steps = append(next.Steps, Step{Index: len(next.Steps) + 1})
	return next
}

// Fail makes the state terminal with a human-readable error answer.
func (s ExecutionState) Fail(err error) ExecutionState {
	next := s.clone()
	next.FinalOutput = ErrorPrefix + err.Error()
	return next
}
