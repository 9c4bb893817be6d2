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
		Use:           "panel",
		Short:         "tunnelforge panel: control plane for reverse-tunnel nodes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPanel(cmd.Context(), conf)
		},
	}
	if err := conf.BindFlags(cmd.Flags(), config.PanelOptions); err != nil {
		return err
	}

	return cmd.ExecuteContext(ctx)
}

func runPanel(ctx context.Context, conf *config.Config) error {
	adapter.RatholeBinary = conf.RatholeBinary()
	adapter.BackhaulBinary = conf.BackhaulBinary()
	adapter.FRPSBinary = conf.FRPSBinary()
	adapter.FRPCBinary = conf.FRPCBinary()
	adapter.GostBinary = conf.GostBinary()

	app, cleanup, err := wireApp(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize panel: %w", err)
	}
	defer cleanup()

	app.Log.Info("restoring persisted tunnels")
	if err := app.Restorer.Run(ctx); err != nil {
		app.Log.Error("restoration pass failed", "error", err)
	}

	httpSrv, err := txhttp.NewServer(
		txhttp.WithAddress(conf.PanelAddress()),
		txhttp.WithLogger(app.Log),
		txhttp.WithMount(func(mux *http.ServeMux) error {
			return app.Panel.Mount(mux)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	metricsSrv, err := txhttp.NewServer(
		txhttp.WithAddress(conf.PanelMetricsAddress()),
		txhttp.WithLogger(app.Log.With("server", "metrics")),
		txhttp.WithMount(metrics.Install),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics server: %w", err)
	}

	go app.Panel.RunReconciler(ctx, conf.PanelReapplyInterval())
	go app.Panel.RunUsagePoller(ctx, conf.PanelUsagePollInterval())

	return transport.Serve(ctx, httpSrv, metricsSrv)
}
