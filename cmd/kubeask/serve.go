package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/gateway"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and the enabled chat gateways",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	observability.PrintBanner(os.Stderr,
		fmt.Sprintf("mode: %s | planner: %s | listen: %s", a.Brain.Mode(), a.PlannerName, cfg.HTTP.Addr),
		"actions: "+strings.Join(a.Executor.Capabilities(), " | "),
	)

	tracker := observability.NewTracker()
	srv := gateway.NewHTTPServer(a.Brain, gateway.HTTPOptions{
		Addr:           cfg.HTTP.Addr,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Debug:          cfg.HTTP.Debug,
		PlannerName:    a.PlannerName,
	}, tracker, logger)

	messengers, err := chatGateways(cfg, a.Brain, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, m := range messengers {
		g.Go(func() error { return m.Start(gctx) })
	}
	g.Go(func() error {
		observability.NewHeartbeat(tracker, logger, 0).Start(gctx)
		return nil
	})

	err = g.Wait()
	logger.Zap().Info("kubeask stopped", zap.Error(err))
	return err
}

// chatGateways builds a Messenger for every enabled chat gateway.
func chatGateways(cfg *config.Config, brain agent.Brain, logger *observability.Logger) ([]gateway.Messenger, error) {
	var out []gateway.Messenger
	if gc, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(gc.Token, brain, gc.AllowedUsers, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if gc, ok := cfg.GetGateway("discord"); ok {
		dg, err := gateway.NewDiscordGateway(gc.Token, brain, gc.AllowedUsers, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, dg)
	}
	return out, nil
}
