package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chmcp/companies-house-mcp/pkg/config"
	"github.com/chmcp/companies-house-mcp/pkg/gateway"
	"github.com/chmcp/companies-house-mcp/pkg/logger"
	"github.com/chmcp/companies-house-mcp/pkg/mcp"
	"github.com/chmcp/companies-house-mcp/pkg/metrics"
	"github.com/chmcp/companies-house-mcp/pkg/tracker"
)

// listenFromConfig is the --http value used when the flag is given bare.
const listenFromConfig = "config"

func newServeCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log := logger.New(cfg.Log)
			m := metrics.New()

			gwOpts := []gateway.Option{
				gateway.WithLogger(log),
				gateway.WithMetrics(m),
				gateway.WithUserAgent("chmcp/" + version),
			}
			srvOpts := []mcp.Option{
				mcp.WithLogger(log),
				mcp.WithMetrics(m),
			}

			if cfg.Usage.Enabled {
				tr, err := tracker.New(cfg.DBPath,
					tracker.WithRetention(time.Duration(cfg.Usage.RetentionDays)*24*time.Hour),
					tracker.WithLogger(log),
				)
				if err != nil {
					return fmt.Errorf("init tracker: %w", err)
				}
				defer func() { _ = tr.Close() }()
				gwOpts = append(gwOpts, gateway.WithRecorder(tr))
				srvOpts = append(srvOpts, mcp.WithLedger(tr))
			}

			client, err := gateway.New(cfg, gwOpts...)
			if err != nil {
				return fmt.Errorf("init gateway: %w", err)
			}
			srv := mcp.New(client, version, srvOpts...)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if httpAddr != "" {
				if httpAddr == listenFromConfig {
					httpAddr = cfg.Listen
				}
				return srv.ListenAndServe(ctx, httpAddr)
			}

			log.Info().Str("version", version).Msg("serving MCP over stdio")
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults and environment only when empty)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on ADDR instead of stdio (bare flag uses the configured listen address)")
	cmd.Flags().Lookup("http").NoOptDefVal = listenFromConfig
	return cmd
}
