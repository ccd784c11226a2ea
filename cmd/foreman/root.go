package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/eventbus"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/logging"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store/sqlite"
)

var (
	dbPath     string
	configPath string
	jsonOutput bool
	logLevel   string

	// One owned instance per process; every command routes through
	// these rather than package globals in the core.
	log *slog.Logger
	bus *eventbus.Bus
	db  store.Store
)

var rootCmd = &cobra.Command{
	Use:           "foreman",
	Short:         "Local supervisor for autonomous code-generation agents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(configPath); err != nil {
			FatalError("%v", err)
		}
		level := slog.LevelInfo
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		format := logging.FormatText
		if jsonOutput {
			format = logging.FormatJSON
		}
		log = logging.New(logging.Options{Format: format, Level: level})
		bus = eventbus.New(log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "path to the foreman database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (TOML or YAML)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(milestoneCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(breakpointCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
}

func defaultDBPath() string {
	if env := os.Getenv("FOREMAN_DB"); env != "" {
		return env
	}
	return filepath.Join(".foreman", "foreman.db")
}

// openStore opens the store of record, fatally on failure. Commands
// that touch persistence call this first.
func openStore() store.Store {
	s, err := sqlite.Open(dbPath, log)
	if err != nil {
		FatalErrorWithHint(err.Error(), "check --db points at a writable path")
	}
	db = s
	return s
}
