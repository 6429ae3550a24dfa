package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/factions/internal/config"
)

// cfg is loaded from the environment before any command runs; flags
// override individual fields.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "factionsim",
	Short: "Faction policy directory and diplomacy simulation",
	Long: "Keeps every faction's internal, one-way and two-way policies, fills\n" +
		"defaults for new factions and pairs, and drifts attitudes into wars\n" +
		"and treaties over simulated weeks.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		level, _ := cfg.Level()
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

var (
	flagDB       string
	flagCatalog  string
	flagSeed     int64
	flagLogLevel string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "SQLite database path (env FACTIONS_DB_PATH)")
	pf.StringVar(&flagCatalog, "catalog", "", "Faction catalog YAML (env FACTIONS_CATALOG)")
	pf.Int64Var(&flagSeed, "seed", 0, "Noise seed for generated attitudes (env FACTIONS_SEED)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env FACTIONS_LOG_LEVEL)")
}

// applyFlags copies explicitly set flags over the environment config.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = flagDB
	}
	if flags.Changed("catalog") {
		cfg.CatalogPath = flagCatalog
	}
	if flags.Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("tick") {
		cfg.TickInterval = serveTick
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotSchedule = serveSnapshot
	}
	if flags.Changed("watch") {
		cfg.WatchCatalog = serveWatch
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
