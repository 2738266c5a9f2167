package cluster

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rahul/kubeask/internal/governance"
	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
)

const (
	DefaultLogTail     = 200
	DefaultMaxLogTail  = 5000
	DefaultParallelism = 8
	DefaultNamespace   = "default"
)

// Options tunes the executor. Zero values fall back to the defaults above.
type Options struct {
	DefaultLogTail int
	MaxLogTail     int
	MetricsEnabled bool
	// Parallelism bounds concurrent per-namespace queries when aggregating
	// over all namespaces.
	Parallelism int
}

func (o Options) withDefaults() Options {
	if o.DefaultLogTail <= 0 {
		o.DefaultLogTail = DefaultLogTail
	}
	if o.MaxLogTail <= 0 {
		o.MaxLogTail = DefaultMaxLogTail
	}
	if o.DefaultLogTail > o.MaxLogTail {
		o.DefaultLogTail = o.MaxLogTail
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	return o
}

// Executor validates intents against the policy engine and runs approved
// ones through the registered handlers. It holds no per-request state and is
// safe for concurrent use.
type Executor struct {
	client   Client
	policy   governance.PolicyEngine
	registry *Registry
	opts     Options
	logger   *observability.Logger
}

func NewExecutor(client Client, policy governance.PolicyEngine, opts Options, logger *observability.Logger) *Executor {
	if logger == nil {
		logger = observability.NewNop()
	}
	opts = opts.withDefaults()
	e := &Executor{
		client:   client,
		policy:   policy,
		registry: NewRegistry(),
		opts:     opts,
		logger:   logger,
	}
	e.registry.Register(&getHandler{client: client, policy: policy, parallelism: opts.Parallelism})
	e.registry.Register(&describeHandler{client: client})
	e.registry.Register(&logsHandler{client: client, defaultTail: opts.DefaultLogTail, maxTail: opts.MaxLogTail})
	e.registry.Register(&topHandler{client: client, policy: policy, enabled: opts.MetricsEnabled})
	return e
}

// Capabilities lists the registered actions with their descriptions.
func (e *Executor) Capabilities() []string {
	return e.registry.Describe()
}

// MetricsAvailable reports whether top requests can be served.
func (e *Executor) MetricsAvailable() bool {
	return e.opts.MetricsEnabled && e.client.HasMetrics()
}

// Execute runs one intent. It never returns a Go error: disallowed intents,
// missing modifiers and cluster failures all come back as error Results.
func (e *Executor) Execute(ctx context.Context, in intent.Intent) (res intent.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = intent.ErrorResult(fmt.Sprintf("executor panic: %v", r), http.StatusInternalServerError)
		}
	}()

	// The policy sees the namespace the handler will actually query.
	norm := in.Clone()
	norm.Action = normalizeAction(in.Action)
	norm.Resource = in.Resource.Canonical()
	if norm.Resource.Namespaced() && norm.Namespace == "" && !norm.AllNamespaces {
		norm.Namespace = DefaultNamespace
	}
	if !norm.Resource.Namespaced() {
		norm.Namespace = ""
	}

	decision := e.policy.Evaluate(norm)
	e.logger.LogPolicyCheck(ctx, norm.String(), decision.Allowed(), decision.Reason)
	if !decision.Allowed() {
		verr := &intent.ValidationError{Intent: in, Msg: decision.Message, Reason: decision.Reason}
		return verr.Result()
	}

	h := e.registry.Get(norm.Action)
	if h == nil {
		verr := &intent.ValidationError{Intent: in, Msg: intent.ErrDisallowed, Reason: fmt.Sprintf("no handler for '%s'", in.Action)}
		return verr.Result()
	}

	return h.Handle(ctx, norm)
}
