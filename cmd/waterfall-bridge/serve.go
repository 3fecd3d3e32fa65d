package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/schemabounce/waterfall-bridge/helpers/logging"
	"github.com/schemabounce/waterfall-bridge/metrics"
	"github.com/schemabounce/waterfall-bridge/rpc"
	"github.com/schemabounce/waterfall-bridge/server"
	"github.com/schemabounce/waterfall-bridge/service"
)

var (
	listenAddr   string
	pluginBinary string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP export/import API",
		Long:  `Serves /export, /import, /health, /version, /config and /metrics. With --plugin the operations run in a separately launched bridge plugin process.`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	pluginCmd = &cobra.Command{
		Use:    "plugin",
		Short:  "Serve the bridge as a go-plugin RPC plugin",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE:   runPlugin,
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&pluginBinary, "plugin", "", "run operations in this bridge plugin binary")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	logger := logging.NewLogger("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var b rpc.Bridge
	if pluginBinary != "" {
		args := []string{"plugin"}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		host, err := rpc.Launch(pluginBinary, logger, args...)
		if err != nil {
			return err
		}
		defer host.Kill()
		b = host.Bridge()
		logger.Info("operations delegated to plugin", "binary", pluginBinary)
	} else {
		local, err := service.FromConfig(ctx, cfg, logger, metrics.New(reg))
		if err != nil {
			return err
		}
		defer local.Close()
		b = local
	}

	srv := server.New(server.Options{
		Bridge:   b,
		Config:   cfg,
		Gatherer: reg,
		Logger:   logger.Named("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}

func runPlugin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The host parses the plugin's stderr as JSON log lines.
	cfg.Logging.Format = "json"
	cfg.ApplyLogging()
	logger := logging.NewLogger("plugin")

	b, err := service.FromConfig(context.Background(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	return rpc.Serve(&rpc.ServeConfig{Bridge: b, Logger: logger})
}
