// Package intent holds the request-scoped data model shared by the planner,
// the executor and the step loop: structured intents, executor results and
// the step history of one request.
package intent

import (
	"fmt"
	"strconv"
	"strings"
)

// Action is a read-only verb the executor understands.
type Action string

const (
	ActionGet      Action = "get"
	ActionDescribe Action = "describe"
	ActionLogs     Action = "logs"
	ActionTop      Action = "top"
)

// Resource is a cluster object kind. Planners may use singular aliases;
// Canonical maps them onto the plural names the allow-list is keyed by.
type Resource string

const (
	ResourceNamespaces  Resource = "namespaces"
	ResourcePods        Resource = "pods"
	ResourceNodes       Resource = "nodes"
	ResourceServices    Resource = "services"
	ResourceDeployments Resource = "deployments"
	ResourceEvents      Resource = "events"

	// ResourcePod is the singular alias planners use for logs.
	ResourcePod Resource = "pod"
)

var resourceAliases = map[string]Resource{
	"namespace":   ResourceNamespaces,
	"namespaces":  ResourceNamespaces,
	"ns":          ResourceNamespaces,
	"pod":         ResourcePods,
	"pods":        ResourcePods,
	"po":          ResourcePods,
	"node":        ResourceNodes,
	"nodes":       ResourceNodes,
	"no":          ResourceNodes,
	"service":     ResourceServices,
	"services":    ResourceServices,
	"svc":         ResourceServices,
	"deployment":  ResourceDeployments,
	"deployments": ResourceDeployments,
	"deploy":      ResourceDeployments,
	"event":       ResourceEvents,
	"events":      ResourceEvents,
	"ev":          ResourceEvents,
}

// Canonical returns the plural resource name, or the lowercased input when
// it is not a known alias.
func (r Resource) Canonical() Resource {
	key := strings.ToLower(strings.TrimSpace(string(r)))
	if canon, ok := resourceAliases[key]; ok {
		return canon
	}
	return Resource(key)
}

// Namespaced reports whether objects of this resource live in a namespace.
func (r Resource) Namespaced() bool {
	switch r.Canonical() {
	case ResourceNamespaces, ResourceNodes:
		return false
	}
	return true
}

// Intent is the structured decision of a planner: one read-only action on
// one resource kind, with optional modifiers.
type Intent struct {
	Action        Action         `json:"action"`
	Resource      Resource       `json:"resource"`
	Namespace     string         `json:"namespace,omitempty"`
	Name          string         `json:"name,omitempty"`
	AllNamespaces bool           `json:"all_namespaces,omitempty"`
	Extras        map[string]any `json:"extras,omitempty"`

	// Fallback marks an intent substituted by the planner gateway because
	// the model produced no structured object at all.
	Fallback bool `json:"fallback,omitempty"`
}

// Clone returns a copy that shares nothing mutable with the receiver.
func (in Intent) Clone() Intent {
	out := in
	if in.Extras != nil {
		out.Extras = make(map[string]any, len(in.Extras))
		for k, v := range in.Extras {
			out.Extras[k] = v
		}
	}
	return out
}

func (in Intent) String() string {
	var b strings.Builder
	b.WriteString(string(in.Action))
	b.WriteString(" ")
	b.WriteString(string(in.Resource))
	if in.Name != "" {
		b.WriteString("/" + in.Name)
	}
	switch {
	case in.AllNamespaces:
		b.WriteString(" --all-namespaces")
	case in.Namespace != "":
		b.WriteString(" -n " + in.Namespace)
	}
	return b.String()
}

// ExtraString returns a string modifier from Extras.
func (in Intent) ExtraString(key string) (string, bool) {
	v, ok := in.Extras[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	default:
		return fmt.Sprint(t), true
	}
}

// ExtraInt returns an integer modifier from Extras. JSON numbers decode as
// float64, planners sometimes quote them, both are accepted.
func (in Intent) ExtraInt(key string) (int, bool) {
	v, ok := in.Extras[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case float32:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ExtraBool returns a boolean modifier from Extras.
func (in Intent) ExtraBool(key string) bool {
	switch t := in.Extras[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	}
	return false
}
