// Package insert resolves the text an insert contributes at dispatch time.
//
// Most inserts are static. An insert naming a dynamic handler is computed
// when it fires; the registry is a closed set, not a plugin mechanism.
// Every failure path falls back to the static text so dispatch stays
// infallible.
package insert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/telemetry"
)

// Handler computes dynamic insert content. An empty result means "use the
// static text".
type Handler func(cwd string, settings config.Settings) (string, error)

var registry = map[string]Handler{
	"session-stats": sessionStats,
}

// HandlerNames returns the registered handler names, sorted.
func HandlerNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the text for one firing insert plus any warnings. The
// name does not affect the result; warnings name the dynamic handler.
func Resolve(name string, ins config.Insert, cwd string, settings config.Settings) (string, []string) {
	if ins.Dynamic == "" {
		return ins.Text, nil
	}

	handler, ok := registry[ins.Dynamic]
	if !ok {
		return ins.Text, []string{fmt.Sprintf("[skill-bus] WARNING: unknown dynamic handler '%s', using static text", ins.Dynamic)}
	}

	text, err := handler(cwd, settings)
	if err != nil {
		return ins.Text, []string{fmt.Sprintf("[skill-bus] WARNING: dynamic handler '%s' failed: %v", ins.Dynamic, err)}
	}
	if text == "" {
		return ins.Text, nil
	}
	_ = name
	return text, nil
}

// sessionStats summarizes the project's telemetry log: skills intercepted,
// inserts injected, condition skips by insert, and repeated no-coverage
// skills. Designed to be injected into reflection-style completion skills.
func sessionStats(cwd string, settings config.Settings) (string, error) {
	events := telemetry.Read(paths.ResolveTelemetryPath(cwd, settings.TelemetryPath), telemetry.ReadOptions{})
	if len(events) == 0 {
		return "", nil
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

	matchedSkills := map[string]bool{}
	for _, m := range matches {
		matchedSkills[orUnknown(m.Skill)] = true
	}

	lines := []string{
		"[skill-bus session summary]",
		fmt.Sprintf("Skills intercepted: %d | Inserts injected: %d", len(matchedSkills), len(matches)),
	}

	if len(skips) > 0 {
		counts := map[string]int{}
		var order []string
		for _, s := range skips {
			key := orUnknown(s.Insert)
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
		parts := make([]string, 0, len(order))
		for _, ins := range order {
			parts = append(parts, fmt.Sprintf("%s (%dx)", ins, counts[ins]))
		}
		lines = append(lines, "Condition skips: "+strings.Join(parts, ", "))
	}

	if len(noMatch) > 0 {
		counts := map[string]int{}
		for _, n := range noMatch {
			counts[orUnknown(n.Skill)]++
		}
		type gap struct {
			skill string
			count int
		}
		var gaps []gap
		for skill, count := range counts {
			if count >= 3 {
				gaps = append(gaps, gap{skill, count})
			}
		}
		sort.Slice(gaps, func(i, j int) bool {
			if gaps[i].count != gaps[j].count {
				return gaps[i].count > gaps[j].count
			}
			return gaps[i].skill < gaps[j].skill
		})
		if len(gaps) > 0 {
			lines = append(lines, "Gaps:")
			for _, g := range gaps {
				lines = append(lines, fmt.Sprintf("  %s ran %dx with no subscriptions", g.skill, g.count))
				lines = append(lines, fmt.Sprintf("  Suggestion: add a subscription for %s", g.skill))
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
