package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/cluster"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func fakeCluster() cluster.Client {
	core := fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "operations"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "operations"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default"}},
	)
	return cluster.NewKubeClientFromInterfaces(core, nil)
}

func TestAsk_MultiStepText(t *testing.T) {
	a, err := wire(context.Background(), config.Default(), fakeCluster(), observability.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "heuristic", a.PlannerName)
	assert.Equal(t, agent.ModeMultiStep, a.Brain.Mode())

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), a.Brain, "show pods in operations namespace", "", &out, false))
	assert.Equal(t, "1 found in operations:\n- api-1\n", out.String())
}

func TestAsk_SingleShotJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Loop.Mode = config.ModeSingleShot

	a, err := wire(context.Background(), cfg, fakeCluster(), observability.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), a.Brain, "show pods in operations namespace", "", &out, true))

	var body struct {
		Intent struct {
			Action    string `json:"action"`
			Resource  string `json:"resource"`
			Namespace string `json:"namespace"`
		} `json:"intent"`
		Result struct {
			Items     []string `json:"items"`
			Namespace string   `json:"namespace"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "get", body.Intent.Action)
	assert.Equal(t, "pods", body.Intent.Resource)
	assert.Equal(t, "operations", body.Intent.Namespace)
	assert.Equal(t, []string{"api-1"}, body.Result.Items)
	assert.Equal(t, "operations", body.Result.Namespace)
}

func TestAsk_DeniedNamespace(t *testing.T) {
	cfg := config.Default()
	cfg.Loop.Mode = config.ModeSingleShot
	cfg.Policy.DenyNamespaces = []string{"^operations$"}

	a, err := wire(context.Background(), cfg, fakeCluster(), observability.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), a.Brain, "show pods in operations namespace", "", &out, false))
	assert.Contains(t, out.String(), "Error:")
	assert.NotContains(t, out.String(), "api-1")
}

func TestAsk_PlannerDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Planner.Enabled = false

	a, err := wire(context.Background(), cfg, fakeCluster(), observability.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "disabled", a.PlannerName)

	err = runAsk(context.Background(), a.Brain, "show pods", "", &bytes.Buffer{}, false)
	assert.ErrorIs(t, err, agent.ErrPlannerDisabled)
}

func TestWire_BadDenyPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.DenyNamespaces = []string{"("}

	_, err := wire(context.Background(), cfg, fakeCluster(), observability.NewNop())
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "kubeask "+version+"\n", out.String())
}
