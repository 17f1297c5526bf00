package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/bridge"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/config"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/telemetry"
)

var (
	flagUsername string
	flagPorts    string
	flagDaemon   bool
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gateway until terminated (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
	cmd.Flags().StringVar(&flagUsername, "username", "", "backend account email address (overrides config/env)")
	cmd.Flags().StringVar(&flagPorts, "ports", "", "comma-separated listener ports (overrides config/env)")
	cmd.Flags().BoolVar(&flagDaemon, "daemon", false, "detach from the controlling terminal")
	return cmd
}

func runGateway() {
	if flagDaemon {
		if err := bridge.Daemonize(); err != nil {
			slog.Error("daemonize failed", "error", err)
			os.Exit(1)
		}
	}

	log := telemetry.NewLogger(verbose)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applyCLIOverlay(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())

	config.Watch(ctx, log, cfgPath, cfg)

	gw, err := bridge.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	log.Info("lineproto-gateway starting", "version", Version, "ports", []string(cfg.Ports))
	gw.Run(ctx)
}

// applyCLIOverlay overlays explicitly-set flags over the loaded config,
// the highest-precedence layer: CLI flags win over config-file values,
// which win over built-in defaults.
func applyCLIOverlay(cfg *config.Config) {
	if flagUsername != "" {
		cfg.Username = flagUsername
	}
	if flagPorts != "" {
		cfg.Ports = strings.Split(flagPorts, ",")
	}
	if flagDaemon {
		cfg.Daemon = true
	}
	if verbose {
		cfg.Verbose = true
	}
}
