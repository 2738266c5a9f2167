// Package cluster executes allow-listed intents against a Kubernetes API
// server. Only read calls exist here.
package cluster

import (
	"context"

	"github.com/rahul/kubeask/internal/intent"
)

// ListOptions narrows a list call.
type ListOptions struct {
	LabelSelector string
}

// LogOptions controls a pod log fetch.
type LogOptions struct {
	Container string
	TailLines int
	Previous  bool
}

// Client is the read-only view of the cluster the executor needs. The
// production implementation is KubeClient; tests use in-memory fakes.
type Client interface {
	// List returns object names (or rendered lines for events) of one
	// kind. ns is ignored for cluster-scoped kinds.
	List(ctx context.Context, resource intent.Resource, ns string, opts ListOptions) ([]string, error)
	Describe(ctx context.Context, resource intent.Resource, ns, name string) (map[string]any, error)
	Logs(ctx context.Context, ns, pod string, opts LogOptions) (string, error)
	Top(ctx context.Context, resource intent.Resource, ns string) ([]intent.Usage, error)
	// HasMetrics reports whether a metrics API client is configured.
	HasMetrics() bool
}
