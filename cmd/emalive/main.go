package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/ema-live/core/config"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type rootFlags struct {
	configPath  string
	envFile     string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "emalive",
		Short: "emalive - talk to an assistant live or by text",
		Long:  "emalive holds a conversation with a voice assistant over a live audio session, with text turns when live is off.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.envFile != "" {
				return config.LoadEnv(flags.envFile)
			}
			return config.LoadEnv()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to emalive config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "load environment variables from this file instead of ./.env")
	cmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLiveCmd(flags))
	cmd.AddCommand(newChatCmd(flags))
	cmd.AddCommand(newExtractCmd(flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "emalive %s (commit: %s)\n", Version, Commit)
		},
	}
}

func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Address = f.metricsAddr
	}
	return cfg, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
