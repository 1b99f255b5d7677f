package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

const insertPreviewLen = 60

func newInsertsCmd() *cobra.Command {
	var (
		cwdFlag string
		scope   string
	)

	cmd := &cobra.Command{
		Use:   "inserts",
		Short: "List available inserts for a scope",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scope != "global" && scope != "project" {
				return fmt.Errorf("invalid --scope value %q: use global or project", scope)
			}
			return runInserts(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveCWD(cwdFlag), scope)
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&scope, "scope", "project", "Scope to list: global or project")

	return cmd
}

func runInserts(w, errW io.Writer, cwd, scope string) error {
	var file *config.File
	var warnings []string
	if scope == "global" {
		file, warnings = config.Load(paths.GlobalConfigPath())
	} else {
		file, warnings = config.Load(paths.ProjectConfigPath(cwd))
	}

	if file == nil {
		fmt.Fprintf(w, "No %s config found.\n", scope)
		printWarnings(errW, warnings)
		return nil
	}
	if len(file.Inserts) == 0 {
		fmt.Fprintf(w, "No inserts in %s config.\n", scope)
		printWarnings(errW, warnings)
		return nil
	}

	names := make([]string, 0, len(file.Inserts))
	for name := range file.Inserts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Available inserts (%s):\n", scope)
	fmt.Fprintln(w, "  1. [Create new insert]")
	for i, name := range names {
		var ins config.Insert
		if err := json.Unmarshal(file.Inserts[name], &ins); err != nil {
			fmt.Fprintf(w, "  %d. %s -- (invalid shape)\n", i+2, name)
			continue
		}
		condStr := "     (no conditions)"
		if len(ins.Conditions) > 0 {
			condStr = fmt.Sprintf("     conditions: %s", condition.FormatAll(ins.Conditions))
		}
		fmt.Fprintf(w, "  %d. %s -- %q\n%s\n", i+2, name, insertPreview(ins.Text), condStr)
	}

	printWarnings(errW, warnings)
	return nil
}

func insertPreview(text string) string {
	preview := strings.ReplaceAll(text, "\n", " ")
	if len(preview) > insertPreviewLen {
		return preview[:insertPreviewLen] + "..."
	}
	return preview
}
