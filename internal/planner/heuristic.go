package planner

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
)

// Heuristic is an offline Planner. It maps a request onto one intent by
// keywords, and in the step loop answers with a summary of that intent's
// output.
type Heuristic struct {
	logger *observability.Logger
}

func NewHeuristic(logger *observability.Logger) *Heuristic {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Heuristic{logger: logger}
}

func (h *Heuristic) Propose(ctx context.Context, userIntent string, steps []intent.Step) (intent.Proposal, error) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Output != nil {
			return intent.Proposal{Steps: steps, FinalOutput: steps[i].Output.Summary()}, nil
		}
	}

	in, err := h.Parse(ctx, userIntent)
	if err != nil {
		return intent.Proposal{}, err
	}
	index := 1
	if len(steps) > 0 {
		index = steps[len(steps)-1].Index
	}
	return intent.Proposal{Steps: []intent.Step{{Index: index, Command: &in}}}, nil
}

var (
	tailRE      = regexp.MustCompile(`\b(?:last|tail)\s+(\d+)`)
	containerRE = regexp.MustCompile(`\bcontainer\s+([a-z0-9][a-z0-9.-]*)`)
)

var proseWords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "for": true, "of": true, "from": true, "on": true,
	"at": true, "to": true, "me": true, "my": true, "all": true, "every": true, "any": true, "is": true,
	"are": true, "which": true, "what": true, "with": true, "and": true, "this": true,
}

var keywords = map[string]bool{
	"cluster": true, "namespace": true, "ns": true, "lines": true, "line": true,
	"logs": true, "log": true, "container": true, "last": true, "tail": true,
}

func (h *Heuristic) Parse(ctx context.Context, userIntent string) (intent.Intent, error) {
	text := strings.ToLower(strings.TrimSpace(userIntent))

	if in, ok := parseAsCommand(text); ok {
		return in, nil
	}

	tokens := tokenize(text)
	in := intent.Intent{Action: detectAction(text, tokens)}

	resIdx := -1
	for i, tok := range tokens {
		if isResource(tok) {
			in.Resource = intent.Resource(tok).Canonical()
			resIdx = i
			break
		}
	}

	switch in.Action {
	case intent.ActionLogs:
		in.Resource = intent.ResourcePod
	case intent.ActionTop:
		if in.Resource != intent.ResourceNodes {
			in.Resource = intent.ResourcePods
		}
	}

	if in.Resource == "" {
		h.logger.LogFallback(ctx, "no resource recognised in request")
		return FallbackIntent(), nil
	}

	in.AllNamespaces = wantsAllNamespaces(text)
	if !in.AllNamespaces && in.Resource.Namespaced() {
		in.Namespace = detectNamespace(tokens)
	}

	if in.Action == intent.ActionLogs || in.Action == intent.ActionDescribe {
		in.Name = detectName(tokens, resIdx)
	}

	if in.Action == intent.ActionLogs {
		extras := map[string]any{}
		if m := tailRE.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				extras["tail"] = n
			}
		}
		if m := containerRE.FindStringSubmatch(text); m != nil {
			extras["container"] = m[1]
		}
		if strings.Contains(text, "previous") || strings.Contains(text, "crashed") {
			extras["previous"] = true
		}
		if len(extras) > 0 {
			in.Extras = extras
		}
	}
	return in, nil
}

// parseAsCommand accepts requests typed as kubectl commands. Without the
// "kubectl" prefix the text must not read like prose.
func parseAsCommand(text string) (intent.Intent, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return intent.Intent{}, false
	}
	switch fields[0] {
	case "kubectl":
	case "get", "describe", "logs", "top":
		for _, f := range fields {
			if proseWords[f] {
				return intent.Intent{}, false
			}
		}
	default:
		return intent.Intent{}, false
	}
	in, err := intent.ParseCommand(text)
	if err != nil {
		return intent.Intent{}, false
	}
	return in, true
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `?!.,;:"'()`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func detectAction(text string, tokens []string) intent.Action {
	for _, tok := range tokens {
		switch tok {
		case "log", "logs", "logging":
			return intent.ActionLogs
		}
	}
	for _, tok := range tokens {
		if tok == "top" {
			return intent.ActionTop
		}
	}
	for _, kw := range []string{"cpu", "memory", "usage", "utilization", "consum"} {
		if strings.Contains(text, kw) {
			return intent.ActionTop
		}
	}
	for _, kw := range []string{"describe", "detail", "details", "inspect", "status of"} {
		if strings.Contains(text, kw) {
			return intent.ActionDescribe
		}
	}
	return intent.ActionGet
}

func isResource(tok string) bool {
	switch intent.Resource(tok).Canonical() {
	case intent.ResourceNamespaces, intent.ResourcePods, intent.ResourceNodes,
		intent.ResourceServices, intent.ResourceDeployments, intent.ResourceEvents:
		return true
	}
	return false
}

func reserved(tok string) bool {
	return proseWords[tok] || keywords[tok] || isResource(tok)
}

func wantsAllNamespaces(text string) bool {
	for _, kw := range []string{"all namespaces", "all-namespaces", "every namespace", "each namespace",
		"across namespaces", "across the cluster", "cluster-wide", "cluster wide", " -a"} {
		if strings.Contains(" "+text, kw) {
			return true
		}
	}
	return false
}

func detectNamespace(tokens []string) string {
	for i, tok := range tokens {
		if (tok == "-n" || tok == "--namespace") && i+1 < len(tokens) {
			return tokens[i+1]
		}
	}
	for i, tok := range tokens {
		if tok != "namespace" && tok != "ns" {
			continue
		}
		if i+1 < len(tokens) && !reserved(tokens[i+1]) {
			return tokens[i+1]
		}
		if i > 0 && !reserved(tokens[i-1]) {
			return tokens[i-1]
		}
	}
	for i, tok := range tokens {
		if (tok == "in" || tok == "from") && i+1 < len(tokens) && !reserved(tokens[i+1]) {
			return tokens[i+1]
		}
	}
	return ""
}

func detectName(tokens []string, resIdx int) string {
	if resIdx >= 0 && resIdx+1 < len(tokens) && !reserved(tokens[resIdx+1]) {
		return tokens[resIdx+1]
	}
	// "logs for my-app-123", "logs of my-app-123"
	for i, tok := range tokens {
		if tok != "logs" && tok != "log" {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+2; j++ {
			if !reserved(tokens[j]) {
				return tokens[j]
			}
		}
	}
	return ""
}
