package main

import (
	"context"
	"fmt"

	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/cluster"
	"github.com/rahul/kubeask/internal/governance"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/internal/planner"
	"github.com/rahul/kubeask/pkg/config"
)

// app is the wired object graph shared by serve and ask.
type app struct {
	Brain       agent.Brain
	Executor    *cluster.Executor
	PlannerName string
}

// newApp connects to the cluster described by cfg and wires the brain.
func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app, error) {
	client, err := cluster.NewKubeClient(cluster.KubeConfig{
		InCluster:  cfg.Cluster.InCluster,
		Kubeconfig: cfg.Cluster.Kubeconfig,
		Context:    cfg.Cluster.Context,
		Timeout:    cfg.ClusterTimeout(),
		QPS:        cfg.Cluster.QPS,
		Burst:      cfg.Cluster.Burst,
		Metrics:    cfg.Executor.MetricsEnabled,
	})
	if err != nil {
		return nil, err
	}
	return wire(ctx, cfg, client, logger)
}

// wire builds the policy, executor, planner and brain around client.
func wire(ctx context.Context, cfg *config.Config, client cluster.Client, logger *observability.Logger) (*app, error) {
	policy := governance.NewDefaultAllowList()
	for _, pattern := range cfg.Policy.DenyNamespaces {
		if err := policy.DenyNamespaces(pattern); err != nil {
			return nil, err
		}
	}

	exec := cluster.NewExecutor(client, policy, cluster.Options{
		DefaultLogTail: cfg.Executor.DefaultLogTail,
		MaxLogTail:     cfg.Executor.MaxLogTail,
		MetricsEnabled: cfg.Executor.MetricsEnabled,
		Parallelism:    cfg.Executor.Parallelism,
	}, logger)

	mode := agent.Mode(cfg.Loop.Mode)
	if !cfg.Planner.Enabled {
		logger.Zap().Warn("planner disabled, every request will be refused")
		return &app{Brain: agent.NewDisabled(mode), Executor: exec, PlannerName: "disabled"}, nil
	}

	name, provider := cfg.GetDefaultProvider()
	p, err := planner.New(ctx, planner.Config{
		Provider:     name,
		Model:        provider.Model,
		APIKey:       provider.APIKey,
		BaseURL:      provider.BaseURL,
		Timeout:      cfg.PlannerTimeout(),
		PromptDir:    cfg.Planner.PromptDir,
		Capabilities: exec.Capabilities(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize planner %q: %w", name, err)
	}

	var brain agent.Brain
	switch mode {
	case agent.ModeSingleShot:
		brain = agent.NewDirect(p, exec, logger)
	default:
		brain = agent.NewStepLoop(p, exec, cfg.Loop.MaxSteps, logger)
	}
	return &app{Brain: brain, Executor: exec, PlannerName: name}, nil
}
