package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/gateway"
	"github.com/rahul/kubeask/internal/observability"
	"github.com/spf13/cobra"
)

var (
	askNamespace string
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Long: `Runs a single question through the planner and the cluster.

Output is JSON when stdout is not a terminal or --json is given.

Examples:
  kubeask ask "show pods in operations namespace"
  kubeask ask "get logs for pod my-app-123" -n prod
  kubeask ask "which nodes use the most cpu" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		asJSON := askJSON || !observability.IsTerminal(os.Stdout)
		return runAsk(ctx, a.Brain, strings.Join(args, " "), askNamespace, cmd.OutOrStdout(), asJSON)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askNamespace, "namespace", "n", "", "Namespace for questions that name none")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full JSON response")
}

func runAsk(ctx context.Context, brain agent.Brain, prompt, namespace string, out io.Writer, asJSON bool) error {
	ctx = observability.WithRequestID(ctx, "")
	answer, err := brain.Think(ctx, agent.Request{Prompt: prompt, Namespace: namespace})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(gateway.Response(prompt, answer))
	}
	_, err = fmt.Fprintln(out, answer.Text())
	return err
}
