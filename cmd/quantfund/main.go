package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/quantfund/internal/config"
	applog "github.com/sawpanic/quantfund/internal/log"
)

const (
	appName = "QuantFund"
	version = "v0.4.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "quantfund",
		Short:   "Real-time strategy performance and leaderboard engine",
		Version: version,
		Long: `QuantFund samples every registered trading strategy on a fixed tick,
keeps running performance metrics per strategy, ranks the leaderboard and
pushes consistent snapshots to subscribers.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to YAML config (defaults when empty)")
	config.BindFlags(rootCmd.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the HTTP API and optional Redis mirror",
		RunE:  runServe,
	}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the engine on the synthetic feed and print the leaderboard",
		RunE:  runDemo,
	}
	demoCmd.Flags().Int("ticks", 10, "number of ticks to run")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(serveCmd, demoCmd, versionCmd)
	return rootCmd
}

// loadConfig reads --config, applies explicit flags and sets up logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := applog.Setup(cfg.Log, cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	return cfg, nil
}
