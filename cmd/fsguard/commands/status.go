package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polysafe/fsguard/internal/cli/output"
	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/capability"
	"github.com/polysafe/fsguard/pkg/gitrepo"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the status of a repository inside the workspace",
	Long: `Display the git status of a repository inside the configured
workspace, read through a read-only capability. The inspection is
recorded in the audit log.

Examples:
  # Status of the workspace root
  fsguard status

  # Status of a repository below the root
  fsguard status repos/project

  # JSON output
  fsguard status -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	rel := "."
	if len(args) == 1 {
		rel = args[0]
	}

	cap, err := capability.Mint(loadedConfig.Workspace.Root, capability.ReadOnly())
	if err != nil {
		return fmt.Errorf("failed to mint workspace capability: %w", err)
	}

	var log *audit.Log
	if log, err = audit.Open(loadedConfig.AuditLogPath(), nil); err == nil {
		defer log.Close()
	} else {
		log = nil
	}

	st, err := gitrepo.NewInspector(log).Status(cmd.Context(), cap, rel)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(st)
	}

	p := output.DefaultPrinter()
	branch := st.Branch
	if branch == "" {
		branch = "(detached)"
	}
	p.Printf("Repository: %s\n", st.Path)
	p.Printf("Branch:     %s\n", branch)
	if st.Head != "" {
		p.Printf("HEAD:       %s\n", st.Head)
	}
	if st.IsClean {
		p.Success("working tree clean")
		return nil
	}

	table := output.NewTableData("PATH", "INDEX", "WORKTREE")
	for _, e := range st.Entries {
		table.AddRow(e.Path, string(e.Index), string(e.Worktree))
	}
	if err := output.PrintTable(os.Stdout, table); err != nil {
		return err
	}

	if st.HasUntracked {
		p.Warning("untracked files present")
	}
	return nil
}
