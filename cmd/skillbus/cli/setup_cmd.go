package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// NewAccessibleForm builds a huh form honoring the ACCESSIBLE env var for
// screen-reader friendly prompts.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithAccessible(os.Getenv("ACCESSIBLE") != "")
}

func newSetupCmd() *cobra.Command {
	var (
		cwdFlag   string
		scopeFlag string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Guided first-run setup",
		Long:  "Create an initial configuration with a starter insert and subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scopeFlag != "" && scopeFlag != "global" && scopeFlag != "project" {
				return fmt.Errorf("invalid --scope value %q: use global or project", scopeFlag)
			}
			return runSetup(cmd.OutOrStdout(), scopeFlag, resolveCWD(cwdFlag))
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&scopeFlag, "scope", "", "Skip the scope prompt: global or project")

	return cmd
}

func runSetup(w io.Writer, scopeFlag, cwd string) error {
	scope := scopeFlag
	monitorPrompts := false
	enableTelemetry := false

	if scope == "" {
		form := NewAccessibleForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Where should the configuration live?").
					Options(
						huh.NewOption("project  Only this project (.claude/skill-bus.json)", "project"),
						huh.NewOption("global  Every project on this machine (~/.claude/skill-bus.json)", "global"),
					).
					Value(&scope),
				huh.NewConfirm().
					Title("Monitor slash commands too?").
					Value(&monitorPrompts),
				huh.NewConfirm().
					Title("Record local telemetry (match counts, skipped conditions)?").
					Value(&enableTelemetry),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}
	}

	configPath := scopeConfigPath(scope, cwd)
	cfg, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}

	settings, ok := cfg["settings"].(map[string]any)
	if !ok {
		settings = map[string]any{}
		cfg["settings"] = settings
	}
	settings["enabled"] = true
	if monitorPrompts {
		settings["monitorSlashCommands"] = true
	}
	if enableTelemetry {
		settings["telemetry"] = true
	}

	inserts, ok := cfg["inserts"].(map[string]any)
	if !ok {
		inserts = map[string]any{}
		cfg["inserts"] = inserts
	}
	if _, exists := inserts["project-context"]; !exists {
		inserts["project-context"] = map[string]any{
			"text":        "Before starting, review the project conventions in CLAUDE.md.",
			"description": "Starter insert created by setup",
		}
		subs, _ := cfg["subscriptions"].([]any)
		cfg["subscriptions"] = append(subs, map[string]any{
			"insert": "project-context",
			"on":     "*",
			"when":   "pre",
		})
	}

	if err := saveRawConfig(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "✓ Wrote %s config: %s\n", scope, configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  skillbus list                  review the effective configuration")
	fmt.Fprintln(w, "  skillbus skills                see what skill names you can subscribe to")
	fmt.Fprintln(w, "  skillbus simulate <skill>      dry-run matching for a skill")
	fmt.Fprintln(w, "  skillbus add-insert <name>     add more inserts")
	return nil
}
