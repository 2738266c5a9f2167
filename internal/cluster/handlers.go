package cluster

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rahul/kubeask/internal/governance"
	"github.com/rahul/kubeask/internal/intent"
	"golang.org/x/sync/errgroup"
)

func normalizeAction(a intent.Action) intent.Action {
	return intent.Action(strings.ToLower(strings.TrimSpace(string(a))))
}

func validation(in intent.Intent, msg, reason string) intent.Result {
	verr := &intent.ValidationError{Intent: in, Msg: msg, Reason: reason}
	return verr.Result()
}

type getHandler struct {
	client      Client
	policy      governance.PolicyEngine
	parallelism int
}

func (h *getHandler) Action() intent.Action { return intent.ActionGet }

func (h *getHandler) Description() string {
	return "List namespaces, nodes, pods, services, deployments or events, optionally across all namespaces."
}

func (h *getHandler) Handle(ctx context.Context, in intent.Intent) intent.Result {
	opts := ListOptions{}
	if sel, ok := in.ExtraString("selector"); ok {
		opts.LabelSelector = sel
	}

	if in.AllNamespaces && in.Resource.Namespaced() {
		return h.aggregate(ctx, in.Resource, opts)
	}

	items, err := h.client.List(ctx, in.Resource, in.Namespace, opts)
	if err != nil {
		return normalize(err)
	}
	if items == nil {
		items = []string{}
	}
	return intent.Result{Items: items, Namespace: in.Namespace}
}

type namespaceItems struct {
	items []string
	err   error
}

// aggregate lists resource in every permitted namespace concurrently. A
// namespace that fails is reported in Skipped and contributes no items;
// items are merged in sorted namespace order.
func (h *getHandler) aggregate(ctx context.Context, res intent.Resource, opts ListOptions) intent.Result {
	namespaces, err := h.client.List(ctx, intent.ResourceNamespaces, "", ListOptions{})
	if err != nil {
		return normalize(err)
	}

	allowed := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if h.policy.NamespaceAllowed(ns) {
			allowed = append(allowed, ns)
		}
	}
	sort.Strings(allowed)

	results := make([]namespaceItems, len(allowed))
	var g errgroup.Group
	g.SetLimit(h.parallelism)
	for i, ns := range allowed {
		g.Go(func() error {
			items, err := h.client.List(ctx, res, ns, opts)
			results[i] = namespaceItems{items: items, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := intent.Result{Items: []string{}, AllNamespaces: true}
	for i, ns := range allowed {
		if results[i].err != nil {
			out.Skipped = append(out.Skipped, ns)
			continue
		}
		for _, item := range results[i].items {
			out.Items = append(out.Items, ns+"/"+item)
		}
	}
	return out
}

type describeHandler struct {
	client Client
}

func (h *describeHandler) Action() intent.Action { return intent.ActionDescribe }

func (h *describeHandler) Description() string {
	return "Show details of one named pod, node, service, deployment or namespace."
}

func (h *describeHandler) Handle(ctx context.Context, in intent.Intent) intent.Result {
	if in.Name == "" {
		return validation(in, "Missing resource name", fmt.Sprintf("describe %s requires a name", in.Resource))
	}
	detail, err := h.client.Describe(ctx, in.Resource, in.Namespace, in.Name)
	if err != nil {
		return normalize(err)
	}
	return intent.Result{Detail: detail, Namespace: in.Namespace}
}

type logsHandler struct {
	client      Client
	defaultTail int
	maxTail     int
}

func (h *logsHandler) Action() intent.Action { return intent.ActionLogs }

func (h *logsHandler) Description() string {
	return fmt.Sprintf("Fetch the last lines of a pod's log (default %d, at most %d); extras: tail, container, previous.",
		h.defaultTail, h.maxTail)
}

// tail returns the requested tail, the default when none was asked for, and
// the maximum when the request exceeds it.
func (h *logsHandler) tail(in intent.Intent) int {
	n, ok := in.ExtraInt("tail")
	if !ok {
		n, ok = in.ExtraInt("tail_lines")
	}
	switch {
	case !ok || n <= 0:
		return h.defaultTail
	case n > h.maxTail:
		return h.maxTail
	}
	return n
}

func (h *logsHandler) Handle(ctx context.Context, in intent.Intent) intent.Result {
	pod := in.Name
	if pod == "" {
		pod, _ = in.ExtraString("pod")
	}
	if pod == "" {
		return validation(in, "Missing pod name", "logs requires a pod name")
	}

	container, _ := in.ExtraString("container")
	tail := h.tail(in)
	log, err := h.client.Logs(ctx, in.Namespace, pod, LogOptions{
		Container: container,
		TailLines: tail,
		Previous:  in.ExtraBool("previous"),
	})
	if err != nil {
		return normalize(err)
	}
	return intent.Result{
		Log:       log,
		Pod:       pod,
		Namespace: in.Namespace,
		Container: container,
		TailLines: tail,
	}
}

type topHandler struct {
	client  Client
	policy  governance.PolicyEngine
	enabled bool
}

func (h *topHandler) Action() intent.Action { return intent.ActionTop }

func (h *topHandler) Description() string {
	return "Show CPU and memory usage of pods or nodes (requires the metrics API)."
}

func (h *topHandler) Handle(ctx context.Context, in intent.Intent) intent.Result {
	if !h.enabled || !h.client.HasMetrics() {
		return intent.ErrorResult(ErrMetricsUnavailable+": the metrics API is not enabled for this deployment",
			http.StatusServiceUnavailable)
	}

	ns := in.Namespace
	if in.AllNamespaces {
		ns = ""
	}
	usage, err := h.client.Top(ctx, in.Resource, ns)
	if err != nil {
		return normalize(err)
	}
	// Node rows carry no namespace; pod rows from denied namespaces are dropped.
	rows := make([]intent.Usage, 0, len(usage))
	for _, u := range usage {
		if u.Namespace != "" && !h.policy.NamespaceAllowed(u.Namespace) {
			continue
		}
		rows = append(rows, u)
	}
	return intent.Result{Metrics: rows, Namespace: ns, AllNamespaces: in.AllNamespaces && in.Resource.Namespaced()}
}
