package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/telemetry"
)

// suggestionThreshold is how many occurrences of a pattern warrant a
// suggestion line.
const suggestionThreshold = 3

func newStatsCmd() *cobra.Command {
	var (
		cwdFlag string
		days    int
		session string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize telemetry data",
		Long:  "Aggregate the telemetry log: match counts per skill, condition skips, uncovered skills, and suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveCWD(cwdFlag), days, session)
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().IntVar(&days, "days", 0, "Only include events from the last N days")
	cmd.Flags().StringVar(&session, "session", "", "Only include events from one session ID")

	return cmd
}

func runStats(w, errW io.Writer, cwd string, days int, session string) error {
	_, _, view, warnings := loadScopes(cwd)

	path := paths.ResolveTelemetryPath(cwd, view.Settings.TelemetryPath)
	events := telemetry.Read(path, telemetry.ReadOptions{Session: session, Days: days})

	if len(events) == 0 {
		fmt.Fprintln(w, "No telemetry data found.")
		if !view.Settings.Telemetry {
			fmt.Fprintln(w, `  Telemetry is disabled. Enable with: "telemetry": true in settings.`)
		}
		printWarnings(errW, warnings)
		return nil
	}

	var matches, skips, noMatch []telemetry.Event
	for _, ev := range events {
		switch ev.Event {
		case "match":
			matches = append(matches, ev)
		case "condition_skip":
			skips = append(skips, ev)
		case "no_match":
			noMatch = append(noMatch, ev)
		}
	}

	fmt.Fprintln(w, "Skill Bus Stats")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	if days > 0 {
		fmt.Fprintf(w, "(last %d days)\n", days)
	}
	fmt.Fprintln(w)

	matchedSkills := map[string]bool{}
	for _, m := range matches {
		matchedSkills[orQuestion(m.Skill)] = true
	}
	fmt.Fprintf(w, "Skills intercepted: %d\n", len(matchedSkills))
	fmt.Fprintf(w, "Inserts injected: %d\n", len(matches))
	fmt.Fprintln(w)

	if len(matches) > 0 {
		fmt.Fprintln(w, "Top skills:")
		bySkill := map[string][]string{}
		for _, m := range matches {
			skill := orQuestion(m.Skill)
			bySkill[skill] = append(bySkill[skill], orQuestion(m.Insert))
		}
		for _, skill := range sortedByCountDesc(bySkill) {
			inserts := bySkill[skill]
			total := len(inserts)
			counts := map[string]int{}
			var order []string
			for _, ins := range inserts {
				if counts[ins] == 0 {
					order = append(order, ins)
				}
				counts[ins]++
			}
			parts := make([]string, 0, len(order))
			for _, ins := range order {
				parts = append(parts, fmt.Sprintf("%s %d/%d", ins, counts[ins], total))
			}
			fmt.Fprintf(w, "  %s — %dx (%s)\n", skill, total, strings.Join(parts, ", "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Condition skips: %d\n", len(skips))
	if len(skips) > 0 {
		type pair struct{ insert, skill string }
		counts := map[pair]int{}
		var order []pair
		for _, s := range skips {
			key := pair{orQuestion(s.Insert), orQuestion(s.Skill)}
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
		for _, key := range order {
			fmt.Fprintf(w, "  %s on %s (%dx)\n", key.insert, key.skill, counts[key])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "No coverage: %d\n", len(noMatch))
	noMatchBySkill := countBy(noMatch, func(ev telemetry.Event) string { return orQuestion(ev.Skill) })
	for _, skill := range sortedKeysByCountDesc(noMatchBySkill) {
		fmt.Fprintf(w, "  %s — %dx\n", skill, noMatchBySkill[skill])
	}
	fmt.Fprintln(w)

	sessions := map[string]bool{}
	for _, ev := range events {
		sessions[orQuestion(ev.SessionID)] = true
	}
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))

	var suggestions []string
	for _, skill := range sortedKeysByCountDesc(noMatchBySkill) {
		if count := noMatchBySkill[skill]; count >= suggestionThreshold {
			suggestions = append(suggestions,
				fmt.Sprintf("  %s ran %dx with no subscription. Consider: /skill-bus:add-sub", skill, count))
		}
	}
	skipsByInsert := countBy(skips, func(ev telemetry.Event) string { return orQuestion(ev.Insert) })
	for _, insert := range sortedKeysByCountDesc(skipsByInsert) {
		if count := skipsByInsert[insert]; count >= suggestionThreshold {
			suggestions = append(suggestions,
				fmt.Sprintf("  %s skipped %dx due to conditions. Run: skillbus simulate <skill>", insert, count))
		}
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Suggestions:")
		for _, s := range suggestions {
			fmt.Fprintln(w, s)
		}
	}

	printWarnings(errW, warnings)
	return nil
}

func countBy(events []telemetry.Event, key func(telemetry.Event) string) map[string]int {
	counts := map[string]int{}
	for _, ev := range events {
		counts[key(ev)]++
	}
	return counts
}

// sortedByCountDesc orders map keys by slice length descending, name
// ascending on ties so the output is stable.
func sortedByCountDesc(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(m[keys[i]]) != len(m[keys[j]]) {
			return len(m[keys[i]]) > len(m[keys[j]])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func sortedKeysByCountDesc(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func orQuestion(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
