package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weave/internal/cli"
	"github.com/aretw0/weave/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Weave runs WeaveLang control programs",
	Long: `Weave interprets WeaveLang, a small language for tension-driven control loops.
A program is executed once per tick against a persisted session: sensors are read,
tensions fire actions, and resolve nudges the model toward what the host observes.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default $WEAVE_CONFIG or ./weave.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override log.format (text, json)")
	rootCmd.PersistentFlags().Uint64("seed", 0, "Override interpreter.seed for reproducible drift")
}

// loadApp reads the configuration, applies flag overrides and builds the App.
// Callers must Close the returned App.
func loadApp(cmd *cobra.Command, opts ...cli.AppOption) (*cli.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if cmd.Flags().Changed("seed") {
		cfg.Interpreter.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cli.NewApp(cfg, opts...)
}
