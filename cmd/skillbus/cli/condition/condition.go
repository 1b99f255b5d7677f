// Package condition evaluates the gating conditions attached to inserts
// and subscriptions.
//
// The vocabulary is closed: fileExists, gitBranch, envSet, envEquals,
// fileContains, and not. Evaluation is total: malformed or unknown
// conditions evaluate to false with a warning, never an error, so a broken
// config can never break skill dispatch.
package condition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	git "github.com/go-git/go-git/v5"

	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// Condition is a single-key record: the key names the variant, the value
// carries its parameters. Kept loosely typed so evaluation can degrade
// gracefully on any shape the config throws at it.
type Condition map[string]any

// UnmarshalJSON tolerates non-object condition entries. A malformed entry
// decodes to nil, which evaluates to false with a warning instead of
// failing the surrounding config decode.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		*c = nil
		return nil
	}
	*c = m
	return nil
}

// maxContainsFileSize bounds fileContains reads so a dispatch stays well
// inside the host's 5s window.
const maxContainsFileSize = 1 << 20

// maxRegexPatternLen bounds regex compilation cost.
const maxRegexPatternLen = 500

// Evaluator evaluates conditions against one working directory. The git
// branch is probed at most once per Evaluator, so many subscriptions
// sharing a gitBranch condition cost a single repository open.
type Evaluator struct {
	cwd string

	warnings []string

	branchProbed bool
	branch       string
}

// NewEvaluator returns an Evaluator rooted at cwd.
func NewEvaluator(cwd string) *Evaluator {
	return &Evaluator{cwd: cwd}
}

// Warnings returns the warnings accumulated across all evaluations.
func (e *Evaluator) Warnings() []string {
	return e.warnings
}

func (e *Evaluator) warnf(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// EvaluateAll reports whether every condition passes. Evaluation is
// left-to-right and stops at the first false. An empty list passes.
// The index of the failing condition is returned (-1 when all pass).
func (e *Evaluator) EvaluateAll(conditions []Condition) (bool, int) {
	for i, c := range conditions {
		if !e.Evaluate(c) {
			return false, i
		}
	}
	return true, -1
}

// Evaluate reports whether a single condition passes.
func (e *Evaluator) Evaluate(c Condition) bool {
	if len(c) != 1 {
		e.warnf("[skill-bus] WARNING: malformed condition %v, treating as false", c)
		return false
	}

	var condType string
	var condValue any
	for k, v := range c {
		condType, condValue = k, v
	}

	switch condType {
	case "not":
		return e.evalNot(condValue)
	case "fileExists":
		return e.evalFileExists(condValue)
	case "gitBranch":
		return e.evalGitBranch(condValue)
	case "envSet":
		return e.evalEnvSet(condValue)
	case "envEquals":
		return e.evalEnvEquals(condValue)
	case "fileContains":
		return e.evalFileContains(condValue)
	default:
		e.warnf("[skill-bus] WARNING: unknown condition type '%s', treating as false", condType)
		return false
	}
}

func (e *Evaluator) evalNot(value any) bool {
	wrapped, ok := value.(map[string]any)
	if !ok {
		e.warnf("[skill-bus] WARNING: 'not' condition must wrap a condition object, got %T", value)
		return false
	}
	if _, double := wrapped["not"]; double {
		e.warnings = append(e.warnings, "[skill-bus] WARNING: double negation in condition — likely a mistake")
	}
	return !e.Evaluate(Condition(wrapped))
}

func (e *Evaluator) evalFileExists(value any) bool {
	path, ok := value.(string)
	if !ok {
		e.warnf("[skill-bus] WARNING: fileExists requires a path string, got %T", value)
		return false
	}
	resolved := paths.ExpandHome(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(e.cwd, resolved)
	}
	_, err := os.Stat(resolved)
	return err == nil
}

func (e *Evaluator) evalGitBranch(value any) bool {
	pattern, ok := value.(string)
	if !ok {
		e.warnf("[skill-bus] WARNING: gitBranch requires a glob string, got %T", value)
		return false
	}
	branch := e.currentBranch()
	if branch == "" {
		return false
	}
	matched, err := doublestar.Match(pattern, branch)
	if err != nil {
		e.warnf("[skill-bus] WARNING: gitBranch pattern %q is not a valid glob", pattern)
		return false
	}
	return matched
}

// currentBranch returns the checked-out branch name, or "" when the
// working directory is not a repository or HEAD is detached. Probed once
// per Evaluator.
func (e *Evaluator) currentBranch() string {
	if e.branchProbed {
		return e.branch
	}
	e.branchProbed = true

	repo, err := git.PlainOpenWithOptions(e.cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if !head.Name().IsBranch() {
		return ""
	}
	e.branch = head.Name().Short()
	return e.branch
}

// CurrentBranch exposes the probed branch for callers that display live
// values (simulate).
func (e *Evaluator) CurrentBranch() string {
	return e.currentBranch()
}

func (e *Evaluator) evalEnvSet(value any) bool {
	name, ok := value.(string)
	if !ok {
		e.warnf("[skill-bus] WARNING: envSet requires a variable name string, got %T", value)
		return false
	}
	return os.Getenv(name) != ""
}

func (e *Evaluator) evalEnvEquals(value any) bool {
	fields, ok := value.(map[string]any)
	if !ok {
		e.warnf("[skill-bus] WARNING: envEquals requires {\"var\": ..., \"value\": ...}, got %T", value)
		return false
	}
	varName, _ := fields["var"].(string)
	if varName == "" {
		e.warnings = append(e.warnings, "[skill-bus] WARNING: envEquals missing 'var' field")
		return false
	}
	expectedRaw, present := fields["value"]
	if !present || expectedRaw == nil {
		e.warnings = append(e.warnings, "[skill-bus] WARNING: envEquals missing 'value' field")
		return false
	}
	expected, ok := expectedRaw.(string)
	if !ok {
		e.warnf("[skill-bus] WARNING: envEquals 'value' must be a string, got %T. Use \"3000\" not 3000.", expectedRaw)
		return false
	}
	return os.Getenv(varName) == expected
}

func (e *Evaluator) evalFileContains(value any) bool {
	fields, ok := value.(map[string]any)
	if !ok {
		e.warnf("[skill-bus] WARNING: fileContains requires {\"file\": ..., \"pattern\": ...}, got %T", value)
		return false
	}
	filePath, _ := fields["file"].(string)
	pattern, _ := fields["pattern"].(string)
	if filePath == "" || pattern == "" {
		e.warnings = append(e.warnings, "[skill-bus] WARNING: fileContains missing 'file' or 'pattern' field")
		return false
	}
	useRegex := fields["regex"] == true

	var compiled *regexp.Regexp
	if useRegex {
		if len(pattern) > maxRegexPatternLen {
			e.warnings = append(e.warnings, "[skill-bus] WARNING: fileContains regex pattern too long (>500 chars), skipping")
			return false
		}
		var err error
		compiled, err = regexp.Compile(pattern)
		if err != nil {
			e.warnf("[skill-bus] WARNING: fileContains regex error: %v", err)
			return false
		}
	}

	fullPath := paths.ExpandHome(filePath)
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(e.cwd, fullPath)
	}
	if strings.HasPrefix(filepath.Base(fullPath), ".") {
		e.warnf("[skill-bus] WARNING: fileContains references dotfile '%s' — ensure this is intentional", filePath)
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() > maxContainsFileSize {
		e.warnf("[skill-bus] WARNING: fileContains skipped — file exceeds 1MB size limit: %s", filePath)
		return false
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return false
	}
	content := strings.ToValidUTF8(string(data), "�")

	for _, line := range strings.Split(content, "\n") {
		if useRegex {
			if compiled.MatchString(line) {
				return true
			}
		} else if strings.Contains(line, pattern) {
			return true
		}
	}
	return false
}
