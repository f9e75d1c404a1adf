package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued tasks without the API server",
	Long: `Worker runs task consumers until interrupted. Use it when the API
server runs with WORKERS_ENABLED=false.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "number of consumers (default: WORKER_CONCURRENCY)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if workerConcurrency > 0 {
		catalog.Config.Queue.Concurrency = workerConcurrency
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Consuming queue %q with %d consumers\n",
		catalog.Config.Queue.Name, catalog.Config.Queue.Concurrency)

	if err := catalog.NewTaskWorker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}
