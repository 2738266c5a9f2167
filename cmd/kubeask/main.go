package main

import (
	"fmt"
	"os"

	"github.com/rahul/kubeask/internal/observability"
	"github.com/rahul/kubeask/pkg/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kubeask",
	Short: "kubeask - read-only natural language questions for Kubernetes",
	Long: `kubeask answers questions about a Kubernetes cluster in plain language.

A planner turns each question into read-only intents (get, describe, logs,
top). Every intent passes a fixed allow-list before it reaches the cluster,
so nothing is ever created, changed or deleted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		z, err := observability.NewZap(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = observability.NewLogger(z)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Zap().Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kubeask.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
