package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polysafe/fsguard/internal/cli/prompt"
	"github.com/polysafe/fsguard/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample fsguard configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/fsguard/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  fsguard init

  # Initialize with custom path
  fsguard init --config /etc/fsguard/config.yaml

  # Force overwrite existing config
  fsguard init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		ok, err := prompt.Confirm(fmt.Sprintf("Configuration file %s exists, overwrite?", path), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.WriteSample(path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set workspace.root to the directory fsguard may govern")
	fmt.Println("  2. Check the audit chain with: fsguard audit verify")
	fmt.Printf("  3. Or use a custom config: fsguard --config %s <command>\n", path)
	return nil
}
