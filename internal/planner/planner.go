// Package planner turns natural-language requests into intents by asking a
// language model, or an offline keyword parser when none is configured.
package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rahul/kubeask/internal/intent"
)

// Planner is the narrow contract the intent loop depends on.
type Planner interface {
	// Propose returns the step list with the pending step filled in, or a
	// final answer once the executed steps are sufficient.
	Propose(ctx context.Context, userIntent string, steps []intent.Step) (intent.Proposal, error)
	// Parse maps a request onto exactly one intent.
	Parse(ctx context.Context, userIntent string) (intent.Intent, error)
}

// ErrorKind classifies planner failures.
type ErrorKind string

const (
	KindCall    ErrorKind = "call"
	KindTimeout ErrorKind = "timeout"
	KindParse   ErrorKind = "parse"
)

// PlannerError wraps every failure that crosses the planner boundary.
type PlannerError struct {
	Kind ErrorKind
	Err  error
}

func (e *PlannerError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("planner timed out: %v", e.Err)
	case KindParse:
		return fmt.Sprintf("planner returned malformed output: %v", e.Err)
	}
	return fmt.Sprintf("planner call failed: %v", e.Err)
}

func (e *PlannerError) Unwrap() error {
	return e.Err
}

// ErrNoJSON is wrapped when a response contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object in response")

var jsonBlockRE = regexp.MustCompile("(?s)\\s*```(?:json)?\\s*([\\s\\S]*?)```\\s*")

// extractJSON strips a markdown code fence if present and returns the text
// between the first '{' and the last '}'.
func extractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if m := jsonBlockRE.FindStringSubmatch(trimmed); len(m) > 1 {
		trimmed = strings.TrimSpace(m[1])
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return trimmed[start : end+1], nil
}

// FallbackIntent is substituted by Parse when the model answered without
// any JSON object.
func FallbackIntent() intent.Intent {
	return intent.Intent{
		Action:   intent.ActionGet,
		Resource: intent.ResourceNamespaces,
		Fallback: true,
	}
}
