package governance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rahul/kubeask/internal/intent"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Decision contains the outcome of a policy evaluation.
type Decision struct {
	Effect Effect
	// Message is the fixed, machine-matchable error text for denials.
	Message string
	Reason  string
}

// Allowed reports whether the decision permits execution.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// PolicyEngine evaluates intents before they reach the cluster.
type PolicyEngine interface {
	Evaluate(in intent.Intent) Decision
	NamespaceAllowed(ns string) bool
}

// AllowList is the read-only action/resource matrix plus optional namespace
// denials. It is built once at startup and shared between requests; nothing
// mutates it after construction.
type AllowList struct {
	matrix           map[intent.Action]map[intent.Resource]bool
	deniedNamespaces []*regexp.Regexp
}

// NewAllowList returns an empty allow-list that denies everything.
func NewAllowList() *AllowList {
	return &AllowList{
		matrix: make(map[intent.Action]map[intent.Resource]bool),
	}
}

// NewDefaultAllowList returns the read-only verbs over the inspected kinds.
func NewDefaultAllowList() *AllowList {
	a := NewAllowList()
	a.Allow(intent.ActionGet,
		intent.ResourceNamespaces, intent.ResourcePods, intent.ResourceNodes,
		intent.ResourceServices, intent.ResourceDeployments, intent.ResourceEvents)
	a.Allow(intent.ActionDescribe,
		intent.ResourceNamespaces, intent.ResourcePods, intent.ResourceNodes,
		intent.ResourceServices, intent.ResourceDeployments)
	a.Allow(intent.ActionLogs, intent.ResourcePods)
	a.Allow(intent.ActionTop, intent.ResourcePods, intent.ResourceNodes)
	return a
}

// Allow permits action on the given resources.
func (a *AllowList) Allow(action intent.Action, resources ...intent.Resource) {
	row, ok := a.matrix[action]
	if !ok {
		row = make(map[intent.Resource]bool)
		a.matrix[action] = row
	}
	for _, r := range resources {
		row[r.Canonical()] = true
	}
}

// DenyNamespaces blocks namespaces matching pattern, even for otherwise
// allowed intents.
func (a *AllowList) DenyNamespaces(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	a.deniedNamespaces = append(a.deniedNamespaces, re)
	return nil
}

// Actions lists the permitted verbs with their resources, sorted.
func (a *AllowList) Actions() map[intent.Action][]intent.Resource {
	out := make(map[intent.Action][]intent.Resource, len(a.matrix))
	for action, row := range a.matrix {
		var rs []intent.Resource
		for r := range row {
			rs = append(rs, r)
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
		out[action] = rs
	}
	return out
}

func (a *AllowList) Evaluate(in intent.Intent) Decision {
	action := intent.Action(strings.ToLower(strings.TrimSpace(string(in.Action))))
	resource := in.Resource.Canonical()

	row, ok := a.matrix[action]
	if !ok {
		return Decision{
			Effect:  EffectDeny,
			Message: intent.ErrDisallowed,
			Reason:  fmt.Sprintf("action '%s' is not permitted", in.Action),
		}
	}
	if !row[resource] {
		return Decision{
			Effect:  EffectDeny,
			Message: intent.ErrDisallowed,
			Reason:  fmt.Sprintf("resource '%s' is not permitted for '%s'", in.Resource, action),
		}
	}
	if in.Namespace != "" && !a.NamespaceAllowed(in.Namespace) {
		return Decision{
			Effect:  EffectDeny,
			Message: "Disallowed namespace",
			Reason:  fmt.Sprintf("namespace '%s' is restricted by system policy", in.Namespace),
		}
	}

	return Decision{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}
}

func (a *AllowList) NamespaceAllowed(ns string) bool {
	for _, re := range a.deniedNamespaces {
		if re.MatchString(ns) {
			return false
		}
	}
	return true
}
