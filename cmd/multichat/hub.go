package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/multichat/internal/config"
	"github.com/Tyrowin/multichat/internal/display"
	"github.com/Tyrowin/multichat/internal/hub"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

func hubCmd() *cobra.Command {
	var (
		bind     string
		port     int
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Run the chat hub",
		Long: `Run the chat hub until SIGINT or SIGTERM.

When an HTTP address is configured the hub also serves /health,
/participants, /metrics and a WebSocket gateway on /ws.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("bind") {
				cfg.BindAddress = bind
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("http") {
				cfg.HTTPAddress = httpAddr
			}
			if err := config.ValidateHub(cfg); err != nil {
				return err
			}
			return runHub(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Address to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP side-car address, e.g. :8080")
	return cmd
}

func runHub(ctx context.Context, cfg config.Config) error {
	logger := logs.GetLoggerFromString(cfg.LogLevel)
	console := display.NewConsole(os.Stdout, display.WithColors(cfg.Colors))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(cfg.HubOptions(), logger, hub.WithSink(console))
	if err := h.Start(ctx); err != nil {
		return err
	}

	var httpServer *http.Server
	httpErrs := make(chan error, 1)
	if cfg.HTTPAddress != "" {
		httpServer = hub.CreateServer(cfg.HTTPAddress, h.Routes(cfg.AllowedOrigins))
		go func() {
			logger.Info("HTTP side-car listening", "address", cfg.HTTPAddress)
			httpErrs <- hub.StartServer(httpServer)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-httpErrs:
		logger.Error("HTTP side-car stopped", "error", runErr)
	}

	if httpServer != nil {
		if err := hub.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			logger.Warn("HTTP side-car did not stop cleanly", "error", err)
		}
	}
	if err := h.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Hub did not stop cleanly", "error", err)
	}
	return runErr
}
