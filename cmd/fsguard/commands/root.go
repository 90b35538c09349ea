// Package commands implements the fsguard CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polysafe/fsguard/internal/logger"
	"github.com/polysafe/fsguard/pkg/config"
	"github.com/polysafe/fsguard/pkg/metrics"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fsguard",
	Short: "fsguard - capability-scoped transactional filesystem safety core",
	Long: `fsguard governs filesystem mutations inside an explicitly granted
directory subtree. Every operation is authorized through a directory-scoped
capability, recorded in a hash-chained audit log, and executed inside a
transaction that either fully completes or is fully reversed.

Use "fsguard [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fsguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// setup loads configuration and initializes logging and metrics for
// every subcommand.
func setup() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	loadedConfig = cfg

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	return nil
}

// loadedConfig is the configuration resolved by setup.
var loadedConfig *config.Config
