package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/config"
)

func newListCmd() *cobra.Command {
	var cwdFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the effective configuration",
		Long:  "Show merged settings and subscriptions grouped by insert, with scope and condition details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveCWD(cwdFlag))
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")

	return cmd
}

func runList(w, errW io.Writer, cwd string) error {
	global, project, view, warnings := loadScopes(cwd)
	subs, legacyWarning := config.DropLegacy(view.Subscriptions)
	if legacyWarning != "" {
		warnings = append(warnings, legacyWarning)
	}

	content := formatSettingsBlock(view.Settings, global, project) + "\n\n" +
		formatGroupedSubs(subs, view.Inserts, global, project) + "\n"
	pageListing(w, content)
	printWarnings(errW, warnings)
	return nil
}

// pageListing pipes the listing through $PAGER when it would scroll past
// the visible window. The grouped listing grows with every subscription,
// so this is the one command whose output regularly outruns a terminal.
// Non-TTY writers (tests, pipes) always print directly.
func pageListing(w io.Writer, content string) {
	f, ok := w.(*os.File)
	if !ok || f != os.Stdout || !term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, content)
		return
	}

	_, rows, err := term.GetSize(int(f.Fd()))
	if err != nil || strings.Count(content, "\n") < rows {
		fmt.Fprint(w, content)
		return
	}

	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	cmd := exec.CommandContext(context.Background(), pager) //nolint:gosec // pager choice belongs to the user
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = f
	cmd.Stderr = os.Stderr
	if cmd.Run() != nil {
		fmt.Fprint(w, content)
	}
}

func formatSettingsBlock(settings config.Settings, global, project *config.File) string {
	var b strings.Builder
	b.WriteString("Skill Bus Status:\n")
	fmt.Fprintf(&b, "  Global:  %s\n", scopeState(global))
	fmt.Fprintf(&b, "  Project: %s\n", scopeState(project))
	fmt.Fprintf(&b, "  Max matches per skill: %d\n", settings.MaxMatchesPerSkill)
	fmt.Fprintf(&b, "  Console echo: %s\n", onOff(settings.ShowConsoleEcho))

	if settings.MonitorSlashCommands {
		b.WriteString("  Slash command monitoring: ON\n")
	} else {
		b.WriteString("  Slash command monitoring: off (enable with \"monitorSlashCommands\": true in settings)\n")
	}

	fmt.Fprintf(&b, "  Condition skip logging: %s", onOff(settings.ShowConditionSkips))
	return b.String()
}

type groupEntry struct {
	sub        config.Subscription
	overridden bool
}

func formatGroupedSubs(subs []config.Subscription, inserts map[string]config.Insert, global, project *config.File) string {
	overriddenSubs := config.OverriddenGlobals(global, project)

	var order []string
	groups := map[string][]groupEntry{}
	add := func(sub config.Subscription, overridden bool) {
		name := sub.Insert
		if name == "" {
			name = "unnamed"
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], groupEntry{sub: sub, overridden: overridden})
	}
	for _, sub := range subs {
		add(sub, false)
	}
	for _, sub := range overriddenSubs {
		add(sub, true)
	}

	if len(groups) == 0 {
		return "Subscriptions: (none)"
	}

	var b strings.Builder
	b.WriteString("Subscriptions (grouped by insert):")

	for _, insertName := range order {
		fmt.Fprintf(&b, "\n\n  %s:", insertName)

		insertConditions := inserts[insertName].Conditions
		if len(insertConditions) > 0 {
			fmt.Fprintf(&b, "\n    insert conditions: %s", condition.FormatAll(insertConditions))
		}

		for _, entry := range groups[insertName] {
			sub := entry.sub
			pattern := sub.On
			if pattern == "" {
				pattern = "?"
			}

			if entry.overridden {
				fmt.Fprintf(&b, "\n    -> %s [%s] (global, disabled in project)", pattern, sub.Timing())
				continue
			}
			fmt.Fprintf(&b, "\n    -> %s [%s] (%s)", pattern, sub.Timing(), sub.Scope)

			subConditions := sub.Conditions
			switch {
			case !sub.Inherits():
				b.WriteString("\n      inheritConditions: false (opts out of insert conditions)")
				if len(subConditions) > 0 {
					fmt.Fprintf(&b, "\n      sub conditions: %s", condition.FormatAll(subConditions))
					fmt.Fprintf(&b, "\n      effective: %s", condition.FormatAll(subConditions))
				} else {
					b.WriteString("\n      effective: (none)")
				}
			case len(insertConditions) > 0:
				if len(subConditions) > 0 {
					fmt.Fprintf(&b, "\n      sub conditions: %s", condition.FormatAll(subConditions))
					effective := append(append([]condition.Condition{}, insertConditions...), subConditions...)
					fmt.Fprintf(&b, "\n      effective: %s", condition.FormatAll(effective))
				} else {
					b.WriteString("\n      (no sub conditions)")
					fmt.Fprintf(&b, "\n      effective: %s", condition.FormatAll(insertConditions))
				}
			case len(subConditions) > 0:
				fmt.Fprintf(&b, "\n      conditions: %s", condition.FormatAll(subConditions))
			}
		}
	}

	if orphans := orphanInserts(inserts, subs, overriddenSubs); len(orphans) > 0 {
		fmt.Fprintf(&b, "\n\n  Orphan inserts (no subscriptions): %s", strings.Join(orphans, ", "))
	}

	return b.String()
}

// orphanInserts finds inserts no subscription references, including
// overridden ones so a project disable does not orphan its insert.
func orphanInserts(inserts map[string]config.Insert, subs, overridden []config.Subscription) []string {
	referenced := map[string]bool{}
	for _, s := range subs {
		referenced[s.Insert] = true
	}
	for _, s := range overridden {
		referenced[s.Insert] = true
	}

	var orphans []string
	for name := range inserts {
		if !referenced[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	return orphans
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
