package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/fastpath"
	"github.com/skillbus/cli/cmd/skillbus/cli/logging"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/telemetry"
)

// skillToolName is the host tool that loads a skill. Only its events
// carry a dispatchable skill name.
const skillToolName = "Skill"

// builtinPromptCommands are host commands the prompt monitor never
// matches against user subscriptions.
var builtinPromptCommands = map[string]bool{
	"help": true, "clear": true, "compact": true, "init": true,
	"login": true, "logout": true, "config": true, "status": true,
	"doctor": true, "memory": true, "cost": true, "tasks": true,
}

const nudgeMessage = "[skill-bus] No skill-bus configuration found for this project. " +
	"Run 'skillbus setup' to create your first insert and subscription. This notice is shown once."

// hookRunE wraps a handler so the host never sees a failure: any panic
// becomes an error envelope on stdout and the command still exits 0.
func hookRunE(handle func(ev fastpath.Event) []byte) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		defer func() {
			if r := recover(); r != nil {
				writeResponse(out, systemMessageOnly(fmt.Sprintf("[skill-bus] ERROR - %T: %v", r, r)))
			}
		}()

		ev, err := fastpath.ReadEvent(cmd.InOrStdin())
		if err != nil {
			writeResponse(out, systemMessageOnly(fmt.Sprintf("[skill-bus] ERROR - %T: %v", err, err)))
			return nil
		}

		cwd := ev.CWD
		if cwd == "" {
			cwd, _ = os.Getwd()
		}
		_ = logging.Init(cwd, telemetry.SessionID())
		defer logging.Close()

		writeResponse(out, handle(ev))
		return nil
	}
}

func writeResponse(w io.Writer, data []byte) {
	if len(data) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, string(data))
}

func handlePreTool(ev fastpath.Event) []byte {
	return handleSkillTool(ev, "pre")
}

func handlePostTool(ev fastpath.Event) []byte {
	return handleSkillTool(ev, "post")
}

func handleSkillTool(ev fastpath.Event, timing string) []byte {
	if ev.ToolName != skillToolName || ev.Skill == "" {
		return nil
	}
	cwd := ev.CWD
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	ctx := logging.WithTiming(logging.WithSkill(logging.WithComponent(context.Background(), "hooks"), ev.Skill), timing)

	if ev.Skill == fastpath.CompletionSkill {
		// Post events of the completion signal are no-ops; the chain
		// advances on the pre event only.
		if timing != "pre" {
			return nil
		}
		logging.Debug(ctx, "completion signal", slog.String("args", ev.Args))
		return handleCompletionSignal(ev.Args, "tool", cwd)
	}

	globalPath := paths.GlobalConfigPath()
	projectPath := paths.ProjectConfigPath(cwd)

	if timing == "pre" && fastpath.ConfigMissing(globalPath, projectPath) {
		if fastpath.NudgePending(cwd) {
			fastpath.MarkNudged(cwd)
			return systemMessageOnly(nudgeMessage)
		}
		return nil
	}

	switch fastpath.Gate(ev.Skill, globalPath, projectPath) {
	case fastpath.RejectSilent:
		logging.Debug(ctx, "fast-path reject")
		return nil
	case fastpath.LogNoCoverage:
		logNoCoverage(cwd, ev.Skill, timing, "fast-path")
		return nil
	default:
		return runDispatch(dispatchRequest{Skill: ev.Skill, Timing: timing, Source: "tool", CWD: cwd})
	}
}

func handlePromptSubmit(ev fastpath.Event) []byte {
	prompt := strings.TrimSpace(ev.Prompt)
	if !strings.HasPrefix(prompt, "/") {
		return nil
	}
	rest := strings.TrimPrefix(prompt, "/")
	name, args, _ := strings.Cut(rest, " ")
	if name == "" {
		return nil
	}
	cwd := ev.CWD
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	if name == fastpath.CompletionSkill {
		return handleCompletionSignal(args, "prompt", cwd)
	}
	if builtinPromptCommands[name] {
		return nil
	}

	globalPath := paths.GlobalConfigPath()
	projectPath := paths.ProjectConfigPath(cwd)
	switch fastpath.Gate(name, globalPath, projectPath) {
	case fastpath.RejectSilent:
		return nil
	case fastpath.LogNoCoverage:
		logNoCoverage(cwd, name, "pre", "prompt-fast-path")
		return nil
	default:
		return runDispatch(dispatchRequest{Skill: name, Timing: "pre", Source: "prompt", CWD: cwd})
	}
}

// logNoCoverage records a no_match event for a skill the fast path
// rejected. The parsed settings are authoritative; the byte-level hint
// that got us here may have been a false positive.
func logNoCoverage(cwd, skill, timing, source string) {
	global, _ := config.Load(paths.GlobalConfigPath())
	project, _ := config.Load(paths.ProjectConfigPath(cwd))
	view, _ := config.Merge(global, project)
	if !view.Settings.Enabled {
		return
	}
	telemetry.NewSink(cwd, view.Settings).NoMatch(skill, timing, source)
}
