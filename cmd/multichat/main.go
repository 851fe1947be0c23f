// Command multichat runs a MultiChat hub or joins one from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Tyrowin/multichat/internal/config"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "multichat",
		Short: "Line-framed group chat over TCP",
		Long: `MultiChat relays chat events between every connected participant.

Commands:
  hub      Accept connections and relay events
  client   Join a hub and chat from the terminal

Settings come from defaults, then --config, then MULTICHAT_* variables
(a .env file in the working directory is loaded first), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(
		hubCmd(),
		clientCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.Red.Sprint("Error:"), err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = strings.ToUpper(logLevel)
	}
	return cfg, nil
}
