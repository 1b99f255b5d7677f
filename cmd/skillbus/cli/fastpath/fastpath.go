// Package fastpath decides, without parsing any JSON config, whether an
// incoming hook event is worth a full dispatch. Most events in a project
// with a small config are rejected here on raw-byte checks alone.
package fastpath

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// CompletionSkill is the reserved skill name that carries completion
// signals back into the bus. It always passes the gate.
const CompletionSkill = "skill-bus:complete"

// maxStdinBytes caps how much of stdin is read. Hook payloads are small;
// anything past the cap is a malformed or hostile producer.
const maxStdinBytes = 10 << 20

// Event is the raw hook payload plus the handful of fields the gate and
// the dispatcher probe before deciding to decode anything else.
type Event struct {
	Raw      []byte
	ToolName string
	Skill    string
	Args     string
	CWD      string
	Prompt   string
}

// ReadEvent slurps the hook payload from r and probes the fields of
// interest directly on the raw bytes.
func ReadEvent(r io.Reader) (Event, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxStdinBytes))
	if err != nil {
		return Event{}, err
	}
	return Event{
		Raw:      raw,
		ToolName: gjson.GetBytes(raw, "tool_name").String(),
		Skill:    gjson.GetBytes(raw, "tool_input.skill").String(),
		Args:     gjson.GetBytes(raw, "tool_input.args").String(),
		CWD:      gjson.GetBytes(raw, "cwd").String(),
		Prompt:   gjson.GetBytes(raw, "prompt").String(),
	}, nil
}

// Decision is the gate's verdict for one event.
type Decision int

const (
	// RejectSilent means exit with empty stdout.
	RejectSilent Decision = iota
	// Proceed means run the full dispatch.
	Proceed
	// Nudge means emit the one-time setup pointer, then exit.
	Nudge
	// LogNoCoverage means the skill has no possible coverage but the
	// config hints at observeUnmatched telemetry, so the caller should
	// load settings and record a no_match event before exiting.
	LogNoCoverage
)

// Gate decides the fate of a skill dispatch from the raw bytes of both
// config files. It never parses JSON: presence of the skill name anywhere
// in either file, or any "*" byte, is enough to proceed. False positives
// cost one full dispatch. A pattern that matches the skill only through
// "?", a character class or {…} alternatives, with no "*" and without the
// literal name, is rejected here.
func Gate(skill, globalPath, projectPath string) Decision {
	if skill == CompletionSkill {
		return Proceed
	}

	globalRaw, globalExists := readConfig(globalPath)
	projectRaw, projectExists := readConfig(projectPath)

	if !globalExists && !projectExists {
		return RejectSilent
	}

	needle := []byte(skill)
	star := []byte("*")
	if bytes.Contains(globalRaw, needle) || bytes.Contains(projectRaw, needle) ||
		bytes.Contains(globalRaw, star) || bytes.Contains(projectRaw, star) {
		return Proceed
	}

	if hintsObserveUnmatched(globalRaw) || hintsObserveUnmatched(projectRaw) {
		return LogNoCoverage
	}
	return RejectSilent
}

// hintsObserveUnmatched is a raw-byte sniff for the two settings that
// make a no-coverage event worth recording. The dispatcher re-checks the
// parsed settings, so a false positive only costs one config load.
func hintsObserveUnmatched(raw []byte) bool {
	return bytes.Contains(raw, []byte(`"telemetry"`)) &&
		bytes.Contains(raw, []byte(`"observeUnmatched"`))
}

func readConfig(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// ConfigMissing reports whether neither config file exists, which is the
// precondition for the first-run nudge.
func ConfigMissing(globalPath, projectPath string) bool {
	return !fileExists(globalPath) && !fileExists(projectPath)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// NudgePending reports whether the first-run nudge has not yet been shown
// for this project.
func NudgePending(cwd string) bool {
	_, err := os.Stat(paths.NudgeMarkerPath(cwd))
	return err != nil
}

// MarkNudged records that the nudge was shown. Best-effort: an unwritable
// project directory just means the nudge may repeat.
func MarkNudged(cwd string) {
	marker := paths.NudgeMarkerPath(cwd)
	if err := os.MkdirAll(filepath.Dir(marker), 0o750); err != nil {
		return
	}
	_ = os.WriteFile(marker, []byte("shown\n"), 0o600)
}
