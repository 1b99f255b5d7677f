package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/match"
)

func newSimulateCmd() *cobra.Command {
	var (
		cwdFlag    string
		timing     string
		promptMode bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <skill>",
		Short: "Dry-run matching for a skill name",
		Long:  "Show which subscriptions would fire for a skill, with per-condition pass/fail detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timing != "pre" && timing != "post" && timing != "complete" {
				return fmt.Errorf("invalid --on value %q: use pre, post, or complete", timing)
			}
			return runSimulate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], timing, promptMode, resolveCWD(cwdFlag))
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&timing, "on", "pre", "Timing to simulate: pre, post, or complete")
	cmd.Flags().BoolVar(&promptMode, "prompt", false, "Match as a slash command instead of a skill dispatch")

	return cmd
}

func runSimulate(w, errW io.Writer, skillName, timing string, promptMode bool, cwd string) error {
	_, _, view, warnings := loadScopes(cwd)
	subs, legacyWarning := config.DropLegacy(view.Subscriptions)
	if legacyWarning != "" {
		warnings = append(warnings, legacyWarning)
	}

	label := timing
	if promptMode {
		label = "prompt"
	}
	fmt.Fprintf(w, "Simulating: %s (%s) in %s\n\n", skillName, label, cwd)

	evaluator := condition.NewEvaluator(cwd)
	warned := 0
	drainWarnings := func() []string {
		all := evaluator.Warnings()
		fresh := all[warned:]
		warned = len(all)
		return fresh
	}

	matchedAny := false
	for _, sub := range subs {
		if promptMode {
			if sub.Timing() != "pre" || !match.PromptGlob(sub.On, skillName) {
				continue
			}
		} else {
			if sub.Timing() != timing || !match.Glob(sub.On, skillName) {
				continue
			}
		}
		matchedAny = true

		insertName := sub.Insert
		if insertName == "" {
			insertName = "unnamed"
		}
		insertDef := view.Inserts[insertName]
		insertConditions := insertDef.Conditions
		subConditions := sub.Conditions
		optOut := !sub.Inherits()

		fmt.Fprintf(w, "  %s -> %s [%s]:\n", insertName, sub.On, timing)
		allPass := true

		if len(insertConditions) > 0 && !optOut {
			for _, cond := range insertConditions {
				pass := evaluator.Evaluate(cond)
				for _, warning := range drainWarnings() {
					fmt.Fprintf(w, "    WARNING: %s\n", warning)
				}
				fmt.Fprintf(w, "    insert: %s %s%s\n", condition.Format(cond), passMark(pass), liveValue(cond, evaluator))
				if !pass {
					allPass = false
					fmt.Fprintln(w, "    (short-circuit: insert condition failed, sub conditions not evaluated)")
					break
				}
			}
		} else if optOut && len(insertConditions) > 0 {
			fmt.Fprintln(w, "    insert: (opted out with inheritConditions: false)")
		}

		if allPass && len(subConditions) > 0 {
			for _, cond := range subConditions {
				pass := evaluator.Evaluate(cond)
				for _, warning := range drainWarnings() {
					fmt.Fprintf(w, "    WARNING: %s\n", warning)
				}
				fmt.Fprintf(w, "    sub: %s %s%s\n", condition.Format(cond), passMark(pass), liveValue(cond, evaluator))
				if !pass {
					allPass = false
					fmt.Fprintln(w, "    (short-circuit: sub condition failed, remaining not evaluated)")
					break
				}
			}
		}

		if allPass {
			fmt.Fprintf(w, "    -> fires (~%d tokens)\n", len(insertDef.Text)/4)
		} else {
			fmt.Fprintln(w, "    -> skipped (conditions not met)")
		}
		fmt.Fprintln(w)
	}

	if !matchedAny {
		fmt.Fprintf(w, "  No subscriptions match '%s' [%s]\n", skillName, label)
	}

	printWarnings(errW, warnings)
	return nil
}

func passMark(pass bool) string {
	if pass {
		return "✓"
	}
	return "✗"
}

// liveValue annotates gitBranch conditions with the branch the evaluator
// actually sees, which is what users need when a simulation surprises them.
func liveValue(cond condition.Condition, evaluator *condition.Evaluator) string {
	if len(cond) != 1 {
		return ""
	}
	for condType, condValue := range cond {
		switch condType {
		case "gitBranch":
			if branch := evaluator.CurrentBranch(); branch != "" {
				return fmt.Sprintf(" (current: %s)", branch)
			}
			return " (not in git repo)"
		case "not":
			if wrapped, ok := condValue.(map[string]any); ok {
				return liveValue(condition.Condition(wrapped), evaluator)
			}
		}
	}
	return ""
}
