package planner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/kubeask/internal/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubModel replays canned replies and records what it was sent.
type stubModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	block    bool
	options  []llms.CallOptions
	messages [][]llms.MessageContent
}

func (m *stubModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	n := len(m.messages)
	m.options = append(m.options, opts)
	m.messages = append(m.messages, msgs)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	if n >= len(m.replies) {
		n = len(m.replies) - 1
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.replies[n]}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newStubGateway(m *stubModel) *Gateway {
	return NewGateway(m, "stub", NewPromptManager("", nil), time.Second, nil)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", "Sure! Here it is: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`, false},
		{"no object", "I cannot help with that", "", true},
		{"reversed braces", "} nope {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateway_ParsePinsTemperatureAndStripsFences(t *testing.T) {
	m := &stubModel{replies: []string{"```json\n{\"action\":\"get\",\"resource\":\"pods\",\"namespace\":\"operations\"}\n```"}}
	g := newStubGateway(m)

	in, err := g.Parse(context.Background(), "show pods in operations namespace")
	require.NoError(t, err)
	assert.Equal(t, intent.Intent{Action: "get", Resource: "pods", Namespace: "operations"}, in)

	require.Len(t, m.options, 1)
	assert.Equal(t, 0.0, m.options[0].Temperature)
	require.Len(t, m.messages[0], 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0][0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[0][1].Role)
}

func TestGateway_ParseKubectlCommand(t *testing.T) {
	m := &stubModel{replies: []string{`{"kubectl_command": "kubectl logs my-app-123 -n prod --tail 50"}`}}

	in, err := newStubGateway(m).Parse(context.Background(), "logs please")
	require.NoError(t, err)
	assert.Equal(t, intent.ActionLogs, in.Action)
	assert.Equal(t, "my-app-123", in.Name)
	assert.Equal(t, "prod", in.Namespace)
	tail, ok := in.ExtraInt("tail")
	assert.True(t, ok)
	assert.Equal(t, 50, tail)
}

func TestGateway_ParseFallbackWhenNoJSON(t *testing.T) {
	m := &stubModel{replies: []string{"I think you want to see namespaces."}}

	in, err := newStubGateway(m).Parse(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, in.Fallback)
	assert.Equal(t, intent.ActionGet, in.Action)
	assert.Equal(t, intent.ResourceNamespaces, in.Resource)
}

func TestGateway_ParseMalformedJSON(t *testing.T) {
	m := &stubModel{replies: []string{`{"action": "get", "resource": }`}}

	_, err := newStubGateway(m).Parse(context.Background(), "pods")
	var perr *PlannerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindParse, perr.Kind)
}

func TestGateway_ParseRejectsModelFallbackFlag(t *testing.T) {
	m := &stubModel{replies: []string{`{"action":"get","resource":"nodes","fallback":true}`}}

	in, err := newStubGateway(m).Parse(context.Background(), "nodes")
	require.NoError(t, err)
	assert.False(t, in.Fallback)
}

func TestGateway_CallErrors(t *testing.T) {
	t.Run("call", func(t *testing.T) {
		m := &stubModel{err: errors.New("401 unauthorized")}
		_, err := newStubGateway(m).Parse(context.Background(), "pods")
		var perr *PlannerError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindCall, perr.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		m := &stubModel{block: true}
		g := NewGateway(m, "stub", nil, 20*time.Millisecond, nil)
		_, err := g.Propose(context.Background(), "pods", []intent.Step{{Index: 1}})
		var perr *PlannerError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindTimeout, perr.Kind)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGateway_ProposeSendsHistory(t *testing.T) {
	m := &stubModel{replies: []string{`{"steps":[{"step":1,"command":{"action":"get","resource":"pods"}}]}`}}
	steps := []intent.Step{{Index: 1}}

	p, err := newStubGateway(m).Propose(context.Background(), "list pods", steps)
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	require.NotNil(t, p.Steps[0].Command)
	assert.Equal(t, intent.ResourcePods, p.Steps[0].Command.Resource)

	var sent history
	require.NoError(t, json.Unmarshal([]byte(textOf(m.messages[0][1].Parts)), &sent))
	assert.Equal(t, "list pods", sent.Intent)
	require.Len(t, sent.Steps, 1)
	assert.Equal(t, 1, sent.Steps[0].Index)
}

func TestGateway_ProposeFinalOutput(t *testing.T) {
	m := &stubModel{replies: []string{"```json\n{\"steps\":[], \"final_output\":\"There are 2 pods.\"}\n```"}}

	p, err := newStubGateway(m).Propose(context.Background(), "how many pods", nil)
	require.NoError(t, err)
	assert.Equal(t, "There are 2 pods.", p.FinalOutput)
}

func TestGateway_ProposeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no json", "Let me think about it."},
		{"bad json", `{"steps": [ {"step": 1, "command": 42} ]}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &stubModel{replies: []string{tt.reply}}
			_, err := newStubGateway(m).Propose(context.Background(), "pods", []intent.Step{{Index: 1}})
			var perr *PlannerError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, KindParse, perr.Kind)
		})
	}
}
