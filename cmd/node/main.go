package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tunnelforge/orchestrator/internal/adapter"
	"github.com/tunnelforge/orchestrator/internal/config"
	"github.com/tunnelforge/orchestrator/internal/metrics"
	"github.com/tunnelforge/orchestrator/internal/transport"
	txhttp "github.com/tunnelforge/orchestrator/internal/transport/http"
)

// version is injected at build time via -ldflags.
var version = "devel"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	conf, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cmd := &cobra.Command{
		Use:           "node",
		Short:         "tunnelforge node agent: applies tunnels on behalf of the panel",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNode(cmd.Context(), conf)
		},
	}
	if err := conf.BindFlags(cmd.Flags(), config.NodeOptions); err != nil {
		return err
	}
	if err := conf.BindFlags(cmd.Flags(), config.BinaryOptions); err != nil {
		return err
	}

	return cmd.ExecuteContext(ctx)
}

func runNode(ctx context.Context, conf *config.Config) error {
	adapter.RatholeBinary = conf.RatholeBinary()
	adapter.BackhaulBinary = conf.BackhaulBinary()
	adapter.FRPSBinary = conf.FRPSBinary()
	adapter.FRPCBinary = conf.FRPCBinary()
	adapter.GostBinary = conf.GostBinary()

	app, cleanup, err := wireApp(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize node agent: %w", err)
	}
	defer cleanup()

	app.Log.Info("reconciling manifest")
	if err := app.Agent.LoadManifest(ctx); err != nil {
		app.Log.Error("manifest reconcile failed", "error", err)
	}

	addr := fmt.Sprintf(":%d", conf.NodeAPIPort())
	httpSrv, err := txhttp.NewServer(
		txhttp.WithAddress(addr),
		txhttp.WithLogger(app.Log),
		txhttp.WithMount(app.Agent.Mount),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	metricsSrv, err := txhttp.NewServer(
		txhttp.WithAddress(conf.NodeMetricsAddress()),
		txhttp.WithLogger(app.Log.With("server", "metrics")),
		txhttp.WithMount(func(mux *http.ServeMux) error {
			return metrics.Install(mux)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}

	return transport.Serve(ctx, httpSrv, metricsSrv)
}
