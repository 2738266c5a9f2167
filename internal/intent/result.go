package intent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ErrDisallowed is the fixed error text for intents rejected by the allow-list.
const ErrDisallowed = "Disallowed action/resource"

// Usage is one row of resource metrics.
type Usage struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	CPU       string `json:"cpu"`
	Memory    string `json:"memory"`
}

// Result is the normalized output of one executed intent. Exactly one of the
// payload groups is populated, or Error is set.
type Result struct {
	Items         []string `json:"items,omitempty"`
	Namespace     string   `json:"namespace,omitempty"`
	AllNamespaces bool     `json:"all_namespaces,omitempty"`
	// Skipped lists namespaces left out of an all-namespaces aggregate.
	Skipped []string `json:"skipped,omitempty"`

	Log       string `json:"log,omitempty"`
	Pod       string `json:"pod,omitempty"`
	Container string `json:"container,omitempty"`
	TailLines int    `json:"tail_lines,omitempty"`

	Detail  map[string]any `json:"detail,omitempty"`
	Metrics []Usage        `json:"metrics,omitempty"`

	Error  string  `json:"error,omitempty"`
	Code   int     `json:"code,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Intent *Intent `json:"intent,omitempty"`
}

// MarshalJSON always emits items for list results, so an empty namespace
// reads as "items": [] rather than a missing key.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.Items == nil {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		Items []string `json:"items"`
		plain
	}{r.Items, plain(r)})
}

// OK reports whether the result carries data rather than an error.
func (r Result) OK() bool {
	return r.Error == ""
}

// ErrorResult builds a result for a failed cluster call.
func ErrorResult(msg string, code int) Result {
	return Result{Error: msg, Code: code}
}

// Summary renders the result as plain text for chat replies and for
// planners that do not synthesize their own answer.
func (r Result) Summary() string {
	if !r.OK() {
		if r.Reason != "" {
			return fmt.Sprintf("Error: %s (%s)", r.Error, r.Reason)
		}
		return "Error: " + r.Error
	}

	var b strings.Builder
	switch {
	case r.Log != "" || r.Pod != "":
		fmt.Fprintf(&b, "Logs for pod %s", r.Pod)
		if r.Namespace != "" {
			fmt.Fprintf(&b, " in %s", r.Namespace)
		}
		b.WriteString(":\n")
		b.WriteString(r.Log)
	case r.Detail != nil:
		keys := sortedKeys(r.Detail)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, r.Detail[k])
		}
	case r.Metrics != nil:
		for _, m := range r.Metrics {
			name := m.Name
			if m.Namespace != "" {
				name = m.Namespace + "/" + m.Name
			}
			fmt.Fprintf(&b, "%s cpu=%s memory=%s\n", name, m.CPU, m.Memory)
		}
	default:
		scope := ""
		switch {
		case r.AllNamespaces:
			scope = " across all namespaces"
		case r.Namespace != "":
			scope = " in " + r.Namespace
		}
		if len(r.Items) == 0 {
			return "No resources found" + scope + "."
		}
		fmt.Fprintf(&b, "%d found%s:\n", len(r.Items), scope)
		for _, item := range r.Items {
			b.WriteString("- " + item + "\n")
		}
		if len(r.Skipped) > 0 {
			fmt.Fprintf(&b, "(skipped: %s)\n", strings.Join(r.Skipped, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
