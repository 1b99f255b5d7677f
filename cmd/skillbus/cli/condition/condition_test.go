package condition

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skillbus/cli/cmd/skillbus/cli/testutil"
)

func hasGitCLI() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func TestEvaluate_FileExists(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module example\n")
	testutil.WriteFile(t, tmpDir, "docs/guide.md", "# guide\n")

	e := NewEvaluator(tmpDir)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"relative file present", "go.mod", true},
		{"nested file present", "docs/guide.md", true},
		{"directory present", "docs", true},
		{"missing file", "Makefile", false},
		{"absolute path", filepath.Join(tmpDir, "go.mod"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(Condition{"fileExists": tt.path})
			if got != tt.want {
				t.Errorf("fileExists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestEvaluate_FileExists_ExpandsHome(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	testutil.WriteFile(t, homeDir, ".claude/skill-bus.json", "{}\n")

	e := NewEvaluator(t.TempDir())
	if !e.Evaluate(Condition{"fileExists": "~/.claude/skill-bus.json"}) {
		t.Error("fileExists with ~ prefix should resolve against HOME")
	}
}

func TestEvaluate_FileExists_BadType(t *testing.T) {
	e := NewEvaluator(t.TempDir())
	if e.Evaluate(Condition{"fileExists": 42}) {
		t.Error("fileExists with non-string value should be false")
	}
	if len(e.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(e.Warnings()))
	}
	if !strings.Contains(e.Warnings()[0], "fileExists requires a path string") {
		t.Errorf("unexpected warning: %s", e.Warnings()[0])
	}
}

func TestEvaluate_GitBranch(t *testing.T) {
	if !hasGitCLI() {
		t.Skip("git CLI not available")
	}
	repoDir := t.TempDir()
	testutil.BranchRepo(t, repoDir, "feature/login")

	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"exact match", "feature/login", true},
		{"glob match", "feature/*", true},
		{"doublestar match", "**", true},
		{"no match", "main", false},
		{"no match glob", "release/*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvaluator(repoDir)
			got := e.Evaluate(Condition{"gitBranch": tt.pattern})
			if got != tt.want {
				t.Errorf("gitBranch(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestEvaluate_GitBranch_NotARepo(t *testing.T) {
	e := NewEvaluator(t.TempDir())
	if e.Evaluate(Condition{"gitBranch": "main"}) {
		t.Error("gitBranch outside a repository should be false")
	}
	// Not a warning case: non-repo is a normal negative result.
	if len(e.Warnings()) != 0 {
		t.Errorf("expected no warnings, got %v", e.Warnings())
	}
}

func TestEvaluate_GitBranch_ProbedOnce(t *testing.T) {
	if !hasGitCLI() {
		t.Skip("git CLI not available")
	}
	repoDir := t.TempDir()
	testutil.BranchRepo(t, repoDir, "main-line")

	e := NewEvaluator(repoDir)
	if !e.Evaluate(Condition{"gitBranch": "main-line"}) {
		t.Fatal("first evaluation should match")
	}
	if got := e.CurrentBranch(); got != "main-line" {
		t.Errorf("CurrentBranch() = %q, want %q", got, "main-line")
	}
	// Second evaluation uses the cached probe.
	if !e.Evaluate(Condition{"gitBranch": "main-*"}) {
		t.Error("second evaluation should reuse the probed branch")
	}
}

func TestEvaluate_EnvSet(t *testing.T) {
	t.Setenv("SB_TEST_SET", "1")
	t.Setenv("SB_TEST_EMPTY", "")

	e := NewEvaluator(t.TempDir())
	if !e.Evaluate(Condition{"envSet": "SB_TEST_SET"}) {
		t.Error("envSet should be true for a non-empty variable")
	}
	if e.Evaluate(Condition{"envSet": "SB_TEST_EMPTY"}) {
		t.Error("envSet should be false for an empty variable")
	}
	if e.Evaluate(Condition{"envSet": "SB_TEST_UNSET_NOWHERE"}) {
		t.Error("envSet should be false for an unset variable")
	}
}

func TestEvaluate_EnvEquals(t *testing.T) {
	t.Setenv("SB_TEST_ENV", "production")

	e := NewEvaluator(t.TempDir())
	if !e.Evaluate(Condition{"envEquals": map[string]any{"var": "SB_TEST_ENV", "value": "production"}}) {
		t.Error("envEquals should be true on exact match")
	}
	if e.Evaluate(Condition{"envEquals": map[string]any{"var": "SB_TEST_ENV", "value": "staging"}}) {
		t.Error("envEquals should be false on mismatch")
	}
}

func TestEvaluate_EnvEquals_NonStringValue(t *testing.T) {
	t.Setenv("SB_TEST_PORT", "3000")

	e := NewEvaluator(t.TempDir())
	// JSON numbers decode as float64; the value must be a string.
	if e.Evaluate(Condition{"envEquals": map[string]any{"var": "SB_TEST_PORT", "value": float64(3000)}}) {
		t.Error("envEquals with a numeric value should be false")
	}
	warnings := e.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if !strings.Contains(warnings[0], `Use "3000" not 3000.`) {
		t.Errorf("warning should point at the quoting fix, got: %s", warnings[0])
	}
}

func TestEvaluate_EnvEquals_MissingFields(t *testing.T) {
	e := NewEvaluator(t.TempDir())
	if e.Evaluate(Condition{"envEquals": map[string]any{"value": "x"}}) {
		t.Error("envEquals without 'var' should be false")
	}
	if e.Evaluate(Condition{"envEquals": map[string]any{"var": "SB_X"}}) {
		t.Error("envEquals without 'value' should be false")
	}
	if e.Evaluate(Condition{"envEquals": "not-a-map"}) {
		t.Error("envEquals with a non-object value should be false")
	}
	if len(e.Warnings()) != 3 {
		t.Errorf("expected 3 warnings, got %v", e.Warnings())
	}
}

func TestEvaluate_FileContains_Substring(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module github.com/example/app\n\ngo 1.24\n")

	e := NewEvaluator(tmpDir)
	if !e.Evaluate(Condition{"fileContains": map[string]any{"file": "go.mod", "pattern": "github.com/example"}}) {
		t.Error("substring present should match")
	}
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "go.mod", "pattern": "gitlab.com"}}) {
		t.Error("substring absent should not match")
	}
}

func TestEvaluate_FileContains_Regex(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module github.com/example/app\n")

	e := NewEvaluator(tmpDir)
	if !e.Evaluate(Condition{"fileContains": map[string]any{"file": "go.mod", "pattern": "^module ", "regex": true}}) {
		t.Error("anchored regex should match per line")
	}
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "go.mod", "pattern": "^go 2", "regex": true}}) {
		t.Error("non-matching regex should be false")
	}
}

func TestEvaluate_FileContains_InvalidRegex(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "a.txt", "content\n")

	e := NewEvaluator(tmpDir)
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "a.txt", "pattern": "[unclosed", "regex": true}}) {
		t.Error("invalid regex should be false")
	}
	if len(e.Warnings()) != 1 || !strings.Contains(e.Warnings()[0], "regex error") {
		t.Errorf("expected a regex error warning, got %v", e.Warnings())
	}
}

func TestEvaluate_FileContains_RegexTooLong(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "a.txt", "content\n")

	e := NewEvaluator(tmpDir)
	long := strings.Repeat("a", maxRegexPatternLen+1)
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "a.txt", "pattern": long, "regex": true}}) {
		t.Error("over-length regex should be false")
	}
	if len(e.Warnings()) != 1 || !strings.Contains(e.Warnings()[0], "pattern too long") {
		t.Errorf("expected a pattern-too-long warning, got %v", e.Warnings())
	}
}

func TestEvaluate_FileContains_SizeLimit(t *testing.T) {
	tmpDir := t.TempDir()
	big := strings.Repeat("x", maxContainsFileSize+1)
	testutil.WriteFile(t, tmpDir, "big.log", big)

	e := NewEvaluator(tmpDir)
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "big.log", "pattern": "x"}}) {
		t.Error("oversized file should be skipped")
	}
	if len(e.Warnings()) != 1 || !strings.Contains(e.Warnings()[0], "1MB size limit") {
		t.Errorf("expected a size-limit warning, got %v", e.Warnings())
	}
}

func TestEvaluate_FileContains_DotfileAdvisory(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, ".env", "MODE=dev\n")

	e := NewEvaluator(tmpDir)
	if !e.Evaluate(Condition{"fileContains": map[string]any{"file": ".env", "pattern": "MODE=dev"}}) {
		t.Error("dotfile contents should still be matched")
	}
	if len(e.Warnings()) != 1 || !strings.Contains(e.Warnings()[0], "references dotfile") {
		t.Errorf("expected a dotfile advisory, got %v", e.Warnings())
	}
}

func TestEvaluate_FileContains_MissingFileOrFields(t *testing.T) {
	tmpDir := t.TempDir()
	e := NewEvaluator(tmpDir)

	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "nope.txt", "pattern": "x"}}) {
		t.Error("missing file should be false")
	}
	if e.Evaluate(Condition{"fileContains": map[string]any{"file": "a.txt"}}) {
		t.Error("missing pattern should be false")
	}
	if e.Evaluate(Condition{"fileContains": "bogus"}) {
		t.Error("non-object value should be false")
	}
}

func TestEvaluate_FileContains_InvalidUTF8(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bin.dat")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 'k', 'e', 'y', '\n'}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	e := NewEvaluator(tmpDir)
	if !e.Evaluate(Condition{"fileContains": map[string]any{"file": "bin.dat", "pattern": "key"}}) {
		t.Error("invalid UTF-8 bytes should be replaced, not fatal")
	}
}

func TestEvaluate_Not(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module example\n")

	e := NewEvaluator(tmpDir)
	if e.Evaluate(Condition{"not": map[string]any{"fileExists": "go.mod"}}) {
		t.Error("not(true) should be false")
	}
	if !e.Evaluate(Condition{"not": map[string]any{"fileExists": "Makefile"}}) {
		t.Error("not(false) should be true")
	}
}

func TestEvaluate_Not_NonObject(t *testing.T) {
	e := NewEvaluator(t.TempDir())
	if e.Evaluate(Condition{"not": "fileExists"}) {
		t.Error("not wrapping a non-object should be false")
	}
	if len(e.Warnings()) != 1 || !strings.Contains(e.Warnings()[0], "must wrap a condition object") {
		t.Errorf("expected a wrap warning, got %v", e.Warnings())
	}
}

func TestEvaluate_DoubleNegation(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module example\n")

	e := NewEvaluator(tmpDir)
	got := e.Evaluate(Condition{"not": map[string]any{"not": map[string]any{"fileExists": "go.mod"}}})
	if !got {
		t.Error("not(not(true)) should be true")
	}
	found := false
	for _, w := range e.Warnings() {
		if strings.Contains(w, "double negation") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a double-negation advisory, got %v", e.Warnings())
	}
}

func TestEvaluate_MalformedAndUnknown(t *testing.T) {
	e := NewEvaluator(t.TempDir())

	if e.Evaluate(Condition{}) {
		t.Error("empty condition should be false")
	}
	if e.Evaluate(Condition{"fileExists": "a", "envSet": "B"}) {
		t.Error("multi-key condition should be false")
	}
	if e.Evaluate(Condition{"diskFull": true}) {
		t.Error("unknown condition type should be false")
	}

	warnings := e.Warnings()
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[2], "unknown condition type 'diskFull'") {
		t.Errorf("unexpected warning: %s", warnings[2])
	}
}

func TestEvaluateAll(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.WriteFile(t, tmpDir, "go.mod", "module example\n")
	t.Setenv("SB_ALL_TEST", "yes")

	e := NewEvaluator(tmpDir)

	ok, failed := e.EvaluateAll(nil)
	if !ok || failed != -1 {
		t.Errorf("empty list = (%v, %d), want (true, -1)", ok, failed)
	}

	ok, failed = e.EvaluateAll([]Condition{
		{"fileExists": "go.mod"},
		{"envSet": "SB_ALL_TEST"},
	})
	if !ok || failed != -1 {
		t.Errorf("all-pass = (%v, %d), want (true, -1)", ok, failed)
	}

	ok, failed = e.EvaluateAll([]Condition{
		{"fileExists": "go.mod"},
		{"fileExists": "Makefile"},
		{"envSet": "SB_ALL_TEST"},
	})
	if ok || failed != 1 {
		t.Errorf("mid-fail = (%v, %d), want (false, 1)", ok, failed)
	}
}

func TestEvaluateAll_ShortCircuits(t *testing.T) {
	e := NewEvaluator(t.TempDir())

	// The malformed second condition would warn, but evaluation must stop at
	// the first failure before reaching it.
	ok, failed := e.EvaluateAll([]Condition{
		{"fileExists": "missing.txt"},
		{"bogusType": true},
	})
	if ok || failed != 0 {
		t.Errorf("EvaluateAll = (%v, %d), want (false, 0)", ok, failed)
	}
	if len(e.Warnings()) != 0 {
		t.Errorf("short-circuit should not evaluate later conditions, got warnings %v", e.Warnings())
	}
}
