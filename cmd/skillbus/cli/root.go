package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/analytics"
)

const gettingStarted = `

Getting Started:
  Run 'skillbus setup' to create your first insert and subscription,
  then 'skillbus list' to see the effective configuration for the
  current project.

`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skillbus",
		Short: "Skill Bus CLI",
		Long:  "Subscription-based context injection for skill dispatch" + gettingStarted,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			reporter := analytics.NewReporter(Version)
			defer reporter.Close()
			reporter.Command(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newSkillsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newInsertsCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newAddInsertCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "skillbus %s (%s)\n", Version, Commit)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
