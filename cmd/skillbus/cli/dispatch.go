package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/fastpath"
	"github.com/skillbus/cli/cmd/skillbus/cli/insert"
	"github.com/skillbus/cli/cmd/skillbus/cli/jsonutil"
	"github.com/skillbus/cli/cmd/skillbus/cli/logging"
	"github.com/skillbus/cli/cmd/skillbus/cli/match"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/telemetry"
)

// ChainDepthEnvVar carries the completion-chain depth between the host
// processes of one chain. The instruction the model receives also carries
// the depth explicitly, so the env var is a fallback, not the source of
// truth.
const ChainDepthEnvVar = "_SB_CHAIN_DEPTH"

// maxChainDepth bounds completion chains. A signal arriving at this depth
// stops the chain with a warning.
const maxChainDepth = 5

// maxContextBytes is the soft cap on additionalContext. Past it the
// context is cut and a note appended.
const maxContextBytes = 32 * 1024

const disabledMessage = "[skill-bus] Disabled via settings. Run /skill-bus:unpause-subs to re-enable."

// hookOutput is the inner envelope region the host splices into the
// model's context.
type hookOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// hookResponse is the full hook response envelope. Both regions are
// optional; an entirely empty response is expressed as empty stdout
// instead.
type hookResponse struct {
	HookSpecificOutput *hookOutput `json:"hookSpecificOutput,omitempty"`
	SystemMessage      string      `json:"systemMessage,omitempty"`
}

func (r hookResponse) empty() bool {
	return r.HookSpecificOutput == nil && r.SystemMessage == ""
}

func marshalResponse(r hookResponse) []byte {
	if r.empty() {
		return nil
	}
	data, err := jsonutil.MarshalCompact(r)
	if err != nil {
		return nil
	}
	return data
}

func systemMessageOnly(msg string) []byte {
	return marshalResponse(hookResponse{SystemMessage: msg})
}

// dispatchRequest is one full-evaluation dispatch. Depth is only
// meaningful for complete timing; pre timing reads it from the
// environment.
type dispatchRequest struct {
	Skill  string
	Timing string
	Source string // "tool" or "prompt"
	CWD    string
	Depth  int
}

// runDispatch executes the slow path: load, merge, match, resolve, build.
// The returned bytes are the response to print; nil means empty stdout.
func runDispatch(req dispatchRequest) []byte {
	started := time.Now()
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	ctx := logging.WithTiming(logging.WithSkill(logging.WithComponent(context.Background(), "dispatch"), req.Skill), req.Timing)
	defer logging.LogDuration(ctx, slog.LevelDebug, "dispatch finished", started)

	globalPath := paths.GlobalConfigPath()
	global, loadWarnings := config.Load(globalPath)
	warnings = append(warnings, loadWarnings...)
	project, loadWarnings := config.Load(paths.ProjectConfigPath(req.CWD))
	warnings = append(warnings, loadWarnings...)

	view, mergeWarnings := config.Merge(global, project)
	warnings = append(warnings, mergeWarnings...)
	settings := view.Settings

	subs, legacyWarning := config.DropLegacy(view.Subscriptions)
	if legacyWarning != "" {
		warnings = append(warnings, legacyWarning)
	}

	if !settings.Enabled {
		return systemMessageOnly(disabledMessage)
	}
	if req.Timing == "complete" && !settings.CompletionHooks {
		return nil
	}
	if req.Source == "prompt" && !settings.MonitorSlashCommands {
		return nil
	}

	evaluator := condition.NewEvaluator(req.CWD)
	opts := match.Options{
		Evaluator:          evaluator,
		Inserts:            view.Inserts,
		MaxMatches:         settings.MaxMatchesPerSkill,
		CWD:                req.CWD,
		ShowConditionSkips: settings.ShowConditionSkips,
	}

	var res match.Result
	if req.Source == "prompt" && req.Timing != "complete" {
		res = match.PromptSubscriptions(req.Skill, subs, opts)
	} else {
		res = match.Subscriptions(req.Skill, req.Timing, subs, opts)
	}
	warnings = append(warnings, evaluator.Warnings()...)
	warnings = append(warnings, res.Warnings...)

	sink := telemetry.NewSink(req.CWD, settings)
	for _, skip := range res.Skips {
		sink.ConditionSkip(skip.Skill, skip.Insert, skip.Pattern, req.Source, skip.List, skip.ConditionIndex)
	}
	for _, sub := range res.Matched {
		sink.Match(req.Skill, sub.Insert, req.Timing, req.Source)
	}

	// The completion instruction must be computed before the no-match
	// early exit: a skill with zero pre subscriptions can still have
	// completion subscribers.
	completionInstruction := ""
	if req.Timing == "pre" && settings.CompletionHooks && match.HasCompletionSubscribers(req.Skill, subs) {
		depth := chainDepthFromEnv(warnf)
		completionInstruction = buildCompletionInstruction(req.Skill, depth)
	}

	if req.Timing == "complete" && len(res.Matched) > 0 {
		sink.SkillComplete(req.Skill, req.Depth)
	}

	if len(res.Matched) == 0 {
		sink.NoMatch(req.Skill, req.Timing, req.Source)
		if len(warnings) == 0 && completionInstruction == "" {
			return nil
		}
	}

	if elapsed := time.Since(started); elapsed > 4*time.Second {
		warnf("[skill-bus] WARNING: dispatch took %.1fs (5s timeout), context may be incomplete", elapsed.Seconds())
	}

	resp := buildResponse(res.Matched, req, view, &warnings)

	if note := ceilingNote(warnings); note != "" && resp.HookSpecificOutput != nil {
		resp.HookSpecificOutput.AdditionalContext += "\n\n[Note: " + note + "]"
	}

	if completionInstruction != "" {
		if resp.HookSpecificOutput != nil {
			resp.HookSpecificOutput.AdditionalContext += completionInstruction
		} else {
			eventName := "PreToolUse"
			if req.Source == "prompt" {
				eventName = "UserPromptSubmit"
			}
			resp.HookSpecificOutput = &hookOutput{
				HookEventName:     eventName,
				AdditionalContext: strings.TrimLeft(completionInstruction, "\n"),
			}
			if resp.SystemMessage == "" && len(warnings) > 0 {
				resp.SystemMessage = strings.Join(warnings, " | ")
			}
		}
	}

	if resp.HookSpecificOutput != nil {
		resp.HookSpecificOutput.AdditionalContext = capContext(resp.HookSpecificOutput.AdditionalContext)
	}

	if resp.HookSpecificOutput == nil && resp.SystemMessage == "" && len(warnings) > 0 {
		resp.SystemMessage = strings.Join(warnings, " | ")
	}
	return marshalResponse(resp)
}

// buildResponse resolves matched inserts into the response envelope.
// Each insert contributes at most once per dispatch; dangling references
// warn and contribute nothing.
func buildResponse(matched []config.Subscription, req dispatchRequest, view *config.View, warnings *[]string) hookResponse {
	var parts []string
	var labels []string
	seen := map[string]bool{}

	for _, sub := range matched {
		if sub.Insert == "" {
			continue
		}
		if seen[sub.Insert] {
			continue
		}
		seen[sub.Insert] = true

		ins, ok := view.Inserts[sub.Insert]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("[skill-bus] WARNING: dangling insert reference '%s' — skipping", sub.Insert))
			continue
		}
		text, resolveWarnings := insert.Resolve(sub.Insert, ins, req.CWD, view.Settings)
		*warnings = append(*warnings, resolveWarnings...)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		labels = append(labels, fmt.Sprintf("%s -> %s [%s]", sub.Insert, lastSegment(sub.On), sub.Timing()))
	}

	var resp hookResponse
	if len(parts) > 0 {
		resp.HookSpecificOutput = &hookOutput{
			HookEventName:     eventNameFor(req.Source, req.Timing),
			AdditionalContext: strings.Join(parts, "\n\n"),
		}
	}

	messages := append([]string{}, *warnings...)
	if view.Settings.ShowConsoleEcho && len(parts) > 0 {
		label := "[skill-bus]"
		if req.Source == "prompt" {
			label = "[skill-bus] prompt-monitor:"
		}
		messages = append(messages, fmt.Sprintf("%s %d sub(s) matched (%s)", label, len(labels), strings.Join(labels, ", ")))
	}
	if len(parts) > 0 && len(messages) > 0 {
		resp.SystemMessage = strings.Join(messages, " | ")
	}
	return resp
}

func eventNameFor(source, timing string) string {
	switch {
	case source == "prompt":
		return "UserPromptSubmit"
	case timing == "pre" || timing == "complete":
		return "PreToolUse"
	default:
		return "PostToolUse"
	}
}

func lastSegment(pattern string) string {
	if pattern == "" {
		return "?"
	}
	if idx := strings.LastIndex(pattern, ":"); idx >= 0 {
		return pattern[idx+1:]
	}
	return pattern
}

// ceilingNote returns the first ceiling warning so the model itself learns
// that inserts were dropped, not just the user.
func ceilingNote(warnings []string) string {
	for _, w := range warnings {
		if strings.Contains(w, "maxMatchesPerSkill") {
			return w
		}
	}
	return ""
}

func capContext(text string) string {
	if len(text) <= maxContextBytes {
		return text
	}
	return text[:maxContextBytes] + "\n\n[skill-bus] NOTE: context truncated (size cap)"
}

// buildCompletionInstruction renders the synthetic instruction appended to
// pre-timing output when the skill has completion subscribers. It carries
// the next chain depth explicitly so each link re-bounds the chain.
func buildCompletionInstruction(skill string, depth int) string {
	args := fmt.Sprintf("%s --depth %d", skill, depth+1)
	return fmt.Sprintf("\n\n---\n[skill-bus] COMPLETION TRIGGER: When you have FULLY completed "+
		"the work described by this skill — not begun it, FULLY delivered all "+
		"outputs — you MUST invoke the Skill tool with skill: %q "+
		"and args: %q to trigger "+
		"downstream subscriptions. Do NOT skip this step.", fastpath.CompletionSkill, args)
}

func chainDepthFromEnv(warnf func(string, ...any)) int {
	raw := os.Getenv(ChainDepthEnvVar)
	if raw == "" {
		return 0
	}
	depth, err := strconv.Atoi(raw)
	if err != nil || depth < 0 {
		warnf("[skill-bus] WARNING: invalid %s=%q, defaulting to 0", ChainDepthEnvVar, raw)
		return 0
	}
	return depth
}

// handleCompletionSignal routes the reserved completion skill: parse the
// completed skill and depth out of the args, bound the chain, then
// dispatch at complete timing.
func handleCompletionSignal(args, source, cwd string) []byte {
	skill, depth, ok := parseCompletionArgs(args)
	if !ok {
		return nil
	}
	if depth >= maxChainDepth {
		return systemMessageOnly(fmt.Sprintf("[skill-bus] WARNING: completion chain depth limit (%d) reached for '%s' — stopping", maxChainDepth, skill))
	}
	// Conditions and any in-process chain logic observe the depth through
	// the environment.
	_ = os.Setenv(ChainDepthEnvVar, strconv.Itoa(depth))
	return runDispatch(dispatchRequest{Skill: skill, Timing: "complete", Source: source, CWD: cwd, Depth: depth})
}

// parseCompletionArgs extracts the completed skill name and chain depth
// from the completion signal's args. The depth token is optional and
// falls back to the environment. Missing or depth-only args are not a
// dispatchable signal.
func parseCompletionArgs(args string) (skill string, depth int, ok bool) {
	tokens := strings.Fields(args)
	if len(tokens) == 0 || strings.HasPrefix(tokens[0], "--") {
		return "", 0, false
	}
	skill = tokens[0]

	depth = chainDepthFromEnv(func(string, ...any) {})
	for i := 1; i < len(tokens)-1; i++ {
		if tokens[i] == "--depth" {
			if n, err := strconv.Atoi(tokens[i+1]); err == nil && n >= 0 {
				depth = n
			}
			break
		}
	}
	return skill, depth, true
}
