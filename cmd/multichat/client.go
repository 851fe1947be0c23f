package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Tyrowin/multichat/internal/client"
	"github.com/Tyrowin/multichat/internal/config"
	"github.com/Tyrowin/multichat/internal/display"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

const (
	quitCommand = "/quit"
	whoCommand  = "/who"
)

func clientCmd() *cobra.Command {
	var (
		name    string
		address string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a hub and chat from the terminal",
		Long: `Join a hub and chat from the terminal.

Each line typed is sent to the room. /who lists the participants and
/quit leaves.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				cfg.DisplayName = name
			}
			if flags.Changed("address") {
				cfg.ConnectAddress = address
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if err := config.ValidateClient(cfg); err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&address, "address", "a", "", "Hub address")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Hub port")
	return cmd
}

func runClient(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) error {
	logger := logs.GetLoggerFromString(cfg.LogLevel)
	console := display.NewConsole(out, display.WithSelf(cfg.DisplayName), display.WithColors(cfg.Colors))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg.ClientConfig(), console, logger)
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c.Disconnect()
		case <-c.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return c.Disconnect()
			}
			switch strings.TrimSpace(line) {
			case "":
			case quitCommand:
				return c.Disconnect()
			case whoCommand:
				console.PrintRoster()
			default:
				if err := c.Say(line); err != nil {
					console.Notice(display.LevelError, err.Error())
				}
			}
		}
	}
}
