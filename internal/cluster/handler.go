package cluster

import (
	"context"
	"sort"

	"github.com/rahul/kubeask/internal/intent"
)

// Handler executes one action. Handlers only see intents the policy engine
// already approved, with the resource in canonical form.
type Handler interface {
	Action() intent.Action
	Description() string
	Handle(ctx context.Context, in intent.Intent) intent.Result
}

// Registry maps actions to their handlers.
type Registry struct {
	handlers map[intent.Action]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[intent.Action]Handler),
	}
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Action()] = h
}

func (r *Registry) Get(action intent.Action) Handler {
	return r.handlers[action]
}

// Describe returns "action: description" lines in action order, for prompts
// and the health endpoint.
func (r *Registry) Describe() []string {
	actions := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a+": "+r.handlers[intent.Action(a)].Description())
	}
	return out
}
