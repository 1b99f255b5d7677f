package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
)

func newStatusCmd() *cobra.Command {
	var cwdFlag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "One-line configuration summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveCWD(cwdFlag))
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")

	return cmd
}

func runStatus(w, errW io.Writer, cwd string) error {
	global, project, view, warnings := loadScopes(cwd)
	subs, legacyWarning := config.DropLegacy(view.Subscriptions)
	if legacyWarning != "" {
		warnings = append(warnings, legacyWarning)
	}

	state := "enabled"
	if !view.Settings.Enabled {
		state = "PAUSED"
	}

	globalCount, projectCount := 0, 0
	if view.Settings.Enabled {
		for _, s := range subs {
			if s.Scope == "project" {
				projectCount++
			} else {
				globalCount++
			}
		}
	} else {
		// A paused view holds no subscriptions; count what the files declare.
		if global != nil {
			globalCount = len(global.Subscriptions)
		}
		if project != nil {
			projectCount = len(project.Subscriptions)
		}
	}

	telem := "off"
	if view.Settings.Telemetry {
		telem = "on"
		if view.Settings.ObserveUnmatched {
			telem += " (+unmatched)"
		}
	}

	parts := []string{
		fmt.Sprintf("Skill Bus v%s: %s", Version, state),
		fmt.Sprintf("%d subs (%d global, %d project)", globalCount+projectCount, globalCount, projectCount),
		fmt.Sprintf("%d inserts", len(view.Inserts)),
		fmt.Sprintf("prompt-monitor: %s", onOff(view.Settings.MonitorSlashCommands)),
		fmt.Sprintf("telemetry: %s", telem),
	}
	fmt.Fprintln(w, strings.Join(parts, " | "))
	printWarnings(errW, warnings)
	return nil
}
