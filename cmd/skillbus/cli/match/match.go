// Package match finds the subscriptions that fire for an incoming skill or
// prompt command. Patterns are globs, conditions are AND-stacked with the
// owning insert's conditions, and the per-skill ceiling bounds how many
// subscriptions contribute.
package match

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/config"
)

// DebugEnvVar forces the condition-skip echo on regardless of settings.
const DebugEnvVar = "SKILL_BUS_DEBUG"

var validTimings = map[string]bool{"pre": true, "post": true, "complete": true}

// Skip records a subscription that matched its pattern but failed its
// conditions. Kept for the telemetry sink and the skip echo.
type Skip struct {
	Skill   string
	Insert  string
	Pattern string
	// List is "insert" or "sub", naming which condition list failed.
	// ConditionIndex is the failing position within that list (-1 when the
	// skip was caused by a missing CWD rather than a condition).
	List           string
	ConditionIndex int
}

// Result is the outcome of one matching pass.
type Result struct {
	Matched  []config.Subscription
	Skips    []Skip
	Warnings []string
}

// Options configures a matching pass.
type Options struct {
	Evaluator          *condition.Evaluator
	Inserts            map[string]config.Insert
	MaxMatches         int
	CWD                string
	ShowConditionSkips bool
}

// EffectiveConditions stacks the insert-level conditions (unless the
// subscription opts out) ahead of the subscription-level conditions. The
// second return is how many of the returned conditions came from the
// insert, so a failure can be attributed to the right list.
func EffectiveConditions(sub config.Subscription, inserts map[string]config.Insert) ([]condition.Condition, int) {
	var insertConditions []condition.Condition
	if sub.Inherits() && inserts != nil {
		if ins, ok := inserts[insertName(sub)]; ok {
			insertConditions = ins.Conditions
		}
	}

	effective := make([]condition.Condition, 0, len(insertConditions)+len(sub.Conditions))
	effective = append(effective, insertConditions...)
	effective = append(effective, sub.Conditions...)
	return effective, len(insertConditions)
}

// Subscriptions matches the tool path: the subscription timing must equal
// the dispatch timing and the pattern must glob-match the skill name.
func Subscriptions(skillName, timing string, subs []config.Subscription, opts Options) Result {
	var res Result
	totalMatching := 0

	for _, sub := range subs {
		when := sub.Timing()
		if !validTimings[when] {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("[skill-bus] WARNING: subscription '%s' has invalid 'when' value: '%s'. Use 'pre', 'post', or 'complete'.", insertName(sub), when))
			continue
		}
		if when != timing {
			continue
		}
		if !globMatch(sub.On, skillName) {
			continue
		}
		if !passesConditions(skillName, sub, opts, &res) {
			continue
		}
		totalMatching++
		if len(res.Matched) < opts.MaxMatches {
			res.Matched = append(res.Matched, sub)
		}
	}

	finish(&res, totalMatching, opts)
	return res
}

// PromptSubscriptions matches the prompt-monitor path. Only pre-timing
// subscriptions participate. A bare command name (no ":") also matches a
// qualified pattern's trailing segment, except when that segment is a pure
// wildcard, which would turn every bare command into a match.
func PromptSubscriptions(cmdName string, subs []config.Subscription, opts Options) Result {
	var res Result
	totalMatching := 0
	qualified := strings.Contains(cmdName, ":")

	for _, sub := range subs {
		if sub.Timing() != "pre" {
			continue
		}
		if !promptGlob(sub.On, cmdName, qualified) {
			continue
		}
		if !passesConditions(cmdName, sub, opts, &res) {
			continue
		}
		totalMatching++
		if len(res.Matched) < opts.MaxMatches {
			res.Matched = append(res.Matched, sub)
		}
	}

	finish(&res, totalMatching, opts)
	return res
}

func passesConditions(skillName string, sub config.Subscription, opts Options, res *Result) bool {
	effective, insertCount := EffectiveConditions(sub, opts.Inserts)
	if len(effective) == 0 {
		return true
	}
	if opts.CWD == "" {
		res.Warnings = append(res.Warnings, "[skill-bus] WARNING: conditions present but no CWD, skipping subscription")
		res.Skips = append(res.Skips, Skip{
			Skill: skillName, Insert: insertName(sub), Pattern: sub.On,
			List: "", ConditionIndex: -1,
		})
		return false
	}
	ok, failed := opts.Evaluator.EvaluateAll(effective)
	if ok {
		return true
	}
	skip := Skip{Skill: skillName, Insert: insertName(sub), Pattern: sub.On}
	if failed < insertCount {
		skip.List = "insert"
		skip.ConditionIndex = failed
	} else {
		skip.List = "sub"
		skip.ConditionIndex = failed - insertCount
	}
	res.Skips = append(res.Skips, skip)
	return false
}

func finish(res *Result, totalMatching int, opts Options) {
	if totalMatching > opts.MaxMatches {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("[skill-bus] %d subs matched but maxMatchesPerSkill=%d, showing first %d", totalMatching, opts.MaxMatches, opts.MaxMatches))
	}
	showSkips := opts.ShowConditionSkips || os.Getenv(DebugEnvVar) == "1"
	if len(res.Skips) > 0 && showSkips {
		names := make([]string, 0, len(res.Skips))
		for _, s := range res.Skips {
			names = append(names, s.Insert)
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("[skill-bus] conditions not met, skipped: %s", strings.Join(names, ", ")))
	}
}

// HasCompletionSubscribers reports whether any complete-timing
// subscription's pattern matches the skill. Conditions are ignored here;
// they are re-evaluated when the completion signal arrives.
func HasCompletionSubscribers(skillName string, subs []config.Subscription) bool {
	for _, sub := range subs {
		if sub.When == "complete" && globMatch(sub.On, skillName) {
			return true
		}
	}
	return false
}

func insertName(sub config.Subscription) string {
	if sub.Insert == "" {
		return "unnamed"
	}
	return sub.Insert
}

// Glob reports whether the skill-name glob matches. An invalid pattern
// matches nothing.
func Glob(pattern, name string) bool {
	return globMatch(pattern, name)
}

// PromptGlob applies the prompt-monitor matching rule for one pattern
// against one command name.
func PromptGlob(pattern, cmdName string) bool {
	return promptGlob(pattern, cmdName, strings.Contains(cmdName, ":"))
}

func promptGlob(pattern, cmdName string, qualified bool) bool {
	switch {
	case qualified:
		return globMatch(pattern, cmdName)
	case strings.Contains(pattern, ":"):
		suffix := pattern[strings.LastIndex(pattern, ":")+1:]
		if suffix == "*" || suffix == "**" {
			return false
		}
		return globMatch(suffix, cmdName)
	default:
		return globMatch(pattern, cmdName)
	}
}

func globMatch(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	return err == nil && matched
}
