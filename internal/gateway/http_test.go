package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/intent"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrain returns a fixed answer and records the last request.
type fakeBrain struct {
	mode   agent.Mode
	answer *agent.Answer
	err    error

	got       agent.Request
	requestID string
}

func (f *fakeBrain) Think(ctx context.Context, req agent.Request) (*agent.Answer, error) {
	f.got = req
	f.requestID = observability.RequestID(ctx)
	return f.answer, f.err
}

func (f *fakeBrain) Mode() agent.Mode { return f.mode }

func newTestServer(brain agent.Brain, debug bool) *HTTPServer {
	return NewHTTPServer(brain, HTTPOptions{Debug: debug, PlannerName: "heuristic"}, observability.NewTracker(), nil)
}

func post(t *testing.T, s *HTTPServer, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAsk_SingleShot(t *testing.T) {
	in := intent.Intent{Action: intent.ActionGet, Resource: intent.ResourcePods, Namespace: "operations"}
	res := intent.Result{Items: []string{"api-1", "api-2"}, Namespace: "operations"}
	brain := &fakeBrain{
		mode:   agent.ModeSingleShot,
		answer: &agent.Answer{Mode: agent.ModeSingleShot, Intent: &in, Result: &res},
	}
	s := newTestServer(brain, false)

	rec := post(t, s, "/ask", `{"prompt":"show pods in operations namespace","namespace":"operations"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "get", body["intent"].(map[string]any)["action"])
	result := body["result"].(map[string]any)
	assert.Equal(t, []any{"api-1", "api-2"}, result["items"])
	assert.Equal(t, "operations", result["namespace"])

	assert.Equal(t, "show pods in operations namespace", brain.got.Prompt)
	assert.Equal(t, "operations", brain.got.Namespace)
}

func TestAsk_MultiStep(t *testing.T) {
	cmd := intent.Intent{Action: intent.ActionGet, Resource: intent.ResourceNamespaces}
	state := intent.ExecutionState{
		Intent: "what namespaces exist",
		Steps: []intent.Step{{
			Index:   1,
			Command: &cmd,
			Output:  &intent.Result{Items: []string{"default"}},
		}},
		FinalOutput: "There is one namespace: default.",
	}
	brain := &fakeBrain{
		mode:   agent.ModeMultiStep,
		answer: &agent.Answer{Mode: agent.ModeMultiStep, State: &state},
	}
	s := newTestServer(brain, false)

	rec := post(t, s, "/api/ask", `{"user_input":"what namespaces exist"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "what namespaces exist", body["intent"])
	assert.Equal(t, "There is one namespace: default.", body["final_output"])
	assert.Equal(t, true, body["converged"])
	steps := body["steps"].([]any)
	require.Len(t, steps, 1)
	assert.Equal(t, float64(1), steps[0].(map[string]any)["step"])
}

func TestAsk_NonConvergedOmitsFinalOutput(t *testing.T) {
	state := intent.ExecutionState{Intent: "loop", Steps: []intent.Step{{Index: 1}}}
	brain := &fakeBrain{
		mode:   agent.ModeMultiStep,
		answer: &agent.Answer{Mode: agent.ModeMultiStep, State: &state},
	}
	rec := post(t, newTestServer(brain, false), "/ask", `{"prompt":"loop"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	_, ok := body["final_output"]
	assert.False(t, ok)
	assert.Equal(t, false, body["converged"])
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		debug  bool
		status int
		errMsg string
		trace  bool
	}{
		{name: "empty prompt", body: `{"prompt":"  "}`, status: http.StatusBadRequest, errMsg: "prompt is required"},
		{name: "bad body", body: `{"prompt":`, status: http.StatusBadRequest, errMsg: "invalid request body"},
		{name: "planner disabled", body: `{"prompt":"pods"}`, err: agent.ErrPlannerDisabled, status: http.StatusServiceUnavailable, errMsg: "planner is disabled"},
		{
			name:   "planner failure",
			body:   `{"prompt":"pods"}`,
			err:    fmt.Errorf("failed to parse intent: %w", &planner.PlannerError{Kind: planner.KindTimeout, Err: context.DeadlineExceeded}),
			status: http.StatusBadGateway,
			errMsg: "failed to parse intent",
		},
		{name: "internal without trace", body: `{"prompt":"pods"}`, err: errors.New("boom"), status: http.StatusInternalServerError, errMsg: "boom"},
		{
			name:   "internal with trace",
			body:   `{"prompt":"pods"}`,
			err:    fmt.Errorf("outer: %w", errors.New("inner")),
			debug:  true,
			status: http.StatusInternalServerError,
			errMsg: "outer: inner",
			trace:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brain := &fakeBrain{mode: agent.ModeSingleShot, err: tt.err}
			rec := post(t, newTestServer(brain, tt.debug), "/ask", tt.body)
			require.Equal(t, tt.status, rec.Code)

			body := decode(t, rec)
			assert.Contains(t, body["error"], tt.errMsg)
			trace, hasTrace := body["trace"]
			assert.Equal(t, tt.trace, hasTrace)
			if tt.trace {
				assert.Equal(t, "outer: inner\ninner", trace)
			}
		})
	}
}

func TestAsk_RequestID(t *testing.T) {
	res := intent.Result{Items: []string{}}
	brain := &fakeBrain{
		mode:   agent.ModeSingleShot,
		answer: &agent.Answer{Mode: agent.ModeSingleShot, Result: &res},
	}
	rec := post(t, newTestServer(brain, false), "/ask", `{"prompt":"pods"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	id := rec.Header().Get(echo.HeaderXRequestID)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, brain.requestID)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeBrain{mode: agent.ModeMultiStep}, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "multistep", body["mode"])
	assert.Equal(t, "heuristic", body["planner"])
	assert.Equal(t, float64(0), body["in_flight"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(&fakeBrain{mode: agent.ModeMultiStep}, false)

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
