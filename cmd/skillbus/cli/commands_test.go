package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/testutil"
)

// runForOutput captures stdout and stderr for a command run function.
func runForOutput(t *testing.T, fn func(w, errW *bytes.Buffer) error) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	require.NoError(t, fn(&out, &errOut))
	return out.String(), errOut.String()
}

func TestListNoConfig(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runList(w, errW, cwd)
	})

	assert.Contains(t, out, "Skill Bus Status:")
	assert.Contains(t, out, "Global:  no config")
	assert.Contains(t, out, "Project: no config")
	assert.Contains(t, out, "Max matches per skill: 3")
	assert.Contains(t, out, "Slash command monitoring: off")
	assert.Contains(t, out, "Subscriptions: (none)")
}

func TestListGroupedWithConditionsAndOrphans(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"settings": map[string]any{"monitorSlashCommands": true},
		"inserts": map[string]any{
			"guarded": map[string]any{
				"text":       "careful now",
				"conditions": []any{map[string]any{"fileExists": "docs/"}},
			},
			"lonely": map[string]any{"text": "nobody subscribes"},
		},
		"subscriptions": []any{
			map[string]any{"insert": "guarded", "on": "tests:*", "when": "pre"},
			map[string]any{
				"insert": "guarded", "on": "deploy:*", "when": "post",
				"conditions": []any{map[string]any{"envSet": "CI"}},
			},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runList(w, errW, cwd)
	})

	assert.Contains(t, out, "Project: enabled")
	assert.Contains(t, out, "Slash command monitoring: ON")
	assert.Contains(t, out, "Subscriptions (grouped by insert):")
	assert.Contains(t, out, "  guarded:")
	assert.Contains(t, out, `    insert conditions: fileExists("docs/")`)
	assert.Contains(t, out, "    -> tests:* [pre] (project)")
	assert.Contains(t, out, "    -> deploy:* [post] (project)")
	assert.Contains(t, out, `      sub conditions: envSet("CI")`)
	assert.Contains(t, out, `      effective: fileExists("docs/") AND envSet("CI")`)
	assert.Contains(t, out, "Orphan inserts (no subscriptions): lonely")
}

func TestListShowsGlobalDisabledInProject(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "skill-bus.json")
	t.Setenv(paths.GlobalConfigEnvVar, globalPath)
	testutil.WriteConfig(t, filepath.Dir(globalPath), "skill-bus.json", map[string]any{
		"inserts": map[string]any{"shared": map[string]any{"text": "from global"}},
		"subscriptions": []any{
			map[string]any{"insert": "shared", "on": "*", "when": "pre"},
		},
	})
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"subscriptions": []any{
			map[string]any{"insert": "shared", "on": "*", "when": "pre", "enabled": false},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runList(w, errW, cwd)
	})

	assert.Contains(t, out, "    -> * [pre] (global, disabled in project)")
	assert.NotContains(t, out, "Orphan inserts")
}

func TestListOptOutShowsEffectiveConditions(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{
			"picky": map[string]any{
				"text":       "x",
				"conditions": []any{map[string]any{"fileExists": "Makefile"}},
			},
		},
		"subscriptions": []any{
			map[string]any{"insert": "picky", "on": "*", "when": "pre", "inheritConditions": false},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runList(w, errW, cwd)
	})

	assert.Contains(t, out, "      inheritConditions: false (opts out of insert conditions)")
	assert.Contains(t, out, "      effective: (none)")
}

func TestSimulateFiresWithTokenEstimate(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{
			"ctx": map[string]any{"text": "12345678"},
		},
		"subscriptions": []any{
			map[string]any{"insert": "ctx", "on": "tests:*", "when": "pre"},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "tests:run", "pre", false, cwd)
	})

	assert.Contains(t, out, "Simulating: tests:run (pre) in "+cwd)
	assert.Contains(t, out, "  ctx -> tests:* [pre]:")
	assert.Contains(t, out, "    -> fires (~2 tokens)")
}

func TestSimulateShortCircuitsOnInsertCondition(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{
			"guarded": map[string]any{
				"text": "x",
				"conditions": []any{
					map[string]any{"fileExists": "absent.txt"},
					map[string]any{"fileExists": "also-absent.txt"},
				},
			},
		},
		"subscriptions": []any{
			map[string]any{
				"insert": "guarded", "on": "*", "when": "pre",
				"conditions": []any{map[string]any{"envSet": "NEVER_SET_XYZ"}},
			},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "anything", "pre", false, cwd)
	})

	assert.Contains(t, out, `    insert: fileExists("absent.txt") ✗`)
	assert.Contains(t, out, "    (short-circuit: insert condition failed, sub conditions not evaluated)")
	assert.NotContains(t, out, "also-absent.txt")
	assert.NotContains(t, out, "NEVER_SET_XYZ")
	assert.Contains(t, out, "    -> skipped (conditions not met)")
}

func TestSimulateSubConditionShortCircuit(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteFile(t, cwd, "README.md", "hi")
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{"ctx": map[string]any{"text": "x"}},
		"subscriptions": []any{
			map[string]any{
				"insert": "ctx", "on": "*", "when": "pre",
				"conditions": []any{
					map[string]any{"fileExists": "README.md"},
					map[string]any{"fileExists": "absent.txt"},
					map[string]any{"fileExists": "never-reached.txt"},
				},
			},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "x", "pre", false, cwd)
	})

	assert.Contains(t, out, `    sub: fileExists("README.md") ✓`)
	assert.Contains(t, out, `    sub: fileExists("absent.txt") ✗`)
	assert.Contains(t, out, "    (short-circuit: sub condition failed, remaining not evaluated)")
	assert.NotContains(t, out, "never-reached.txt")
}

func TestSimulateGitBranchAnnotation(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{"ctx": map[string]any{"text": "x"}},
		"subscriptions": []any{
			map[string]any{
				"insert": "ctx", "on": "*", "when": "pre",
				"conditions": []any{map[string]any{"gitBranch": "main"}},
			},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "x", "pre", false, cwd)
	})

	assert.Contains(t, out, "(not in git repo)")
}

func TestSimulateNoMatch(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "ghost:skill", "post", false, cwd)
	})

	assert.Contains(t, out, "  No subscriptions match 'ghost:skill' [post]")
}

func TestSimulatePromptMode(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{
			"pre-only":  map[string]any{"text": "x"},
			"post-only": map[string]any{"text": "y"},
		},
		"subscriptions": []any{
			map[string]any{"insert": "pre-only", "on": "review", "when": "pre"},
			map[string]any{"insert": "post-only", "on": "review", "when": "post"},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runSimulate(w, errW, "review", "pre", true, cwd)
	})

	assert.Contains(t, out, "Simulating: review (prompt) in "+cwd)
	assert.Contains(t, out, "  pre-only -> review [pre]:")
	assert.NotContains(t, out, "post-only")
}

func TestStatusDefaults(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runStatus(w, errW, cwd)
	})

	assert.Equal(t,
		"Skill Bus v"+Version+": enabled | 0 subs (0 global, 0 project) | 0 inserts | prompt-monitor: off | telemetry: off\n",
		out)
}

func TestStatusPausedWithCounts(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "skill-bus.json")
	t.Setenv(paths.GlobalConfigEnvVar, globalPath)
	testutil.WriteConfig(t, filepath.Dir(globalPath), "skill-bus.json", map[string]any{
		"inserts": map[string]any{"g": map[string]any{"text": "x"}},
		"subscriptions": []any{
			map[string]any{"insert": "g", "on": "*", "when": "pre"},
		},
	})
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"settings": map[string]any{
			"enabled":          false,
			"telemetry":        true,
			"observeUnmatched": true,
		},
		"inserts": map[string]any{"p": map[string]any{"text": "y"}},
		"subscriptions": []any{
			map[string]any{"insert": "p", "on": "deploy:*", "when": "post"},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runStatus(w, errW, cwd)
	})

	assert.Contains(t, out, ": PAUSED")
	assert.Contains(t, out, "2 subs (1 global, 1 project)")
	assert.Contains(t, out, "2 inserts")
	assert.Contains(t, out, "telemetry: on (+unmatched)")
}

func TestInsertsNoConfig(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runInserts(w, errW, cwd, "project")
	})

	assert.Equal(t, "No project config found.\n", out)
}

func TestInsertsNumberedWithPreviews(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}
	testutil.WriteConfig(t, cwd, ".claude/skill-bus.json", map[string]any{
		"inserts": map[string]any{
			"alpha": map[string]any{"text": "line one\nline two"},
			"beta": map[string]any{
				"text":       long,
				"conditions": []any{map[string]any{"fileExists": "go.mod"}},
			},
		},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runInserts(w, errW, cwd, "project")
	})

	assert.Contains(t, out, "Available inserts (project):")
	assert.Contains(t, out, "  1. [Create new insert]")
	assert.Contains(t, out, `  2. alpha -- "line one line two"`)
	assert.Contains(t, out, "     (no conditions)")
	assert.Contains(t, out, `  3. beta -- "`+long[:60]+`..."`)
	assert.Contains(t, out, `     conditions: fileExists("go.mod")`)
}

func TestInsertsGlobalScope(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	globalPath := filepath.Join(t.TempDir(), "skill-bus.json")
	t.Setenv(paths.GlobalConfigEnvVar, globalPath)
	testutil.WriteConfig(t, filepath.Dir(globalPath), "skill-bus.json", map[string]any{
		"inserts": map[string]any{},
	})

	out, _ := runForOutput(t, func(w, errW *bytes.Buffer) error {
		return runInserts(w, errW, cwd, "global")
	})

	assert.Equal(t, "No inserts in global config.\n", out)
}

func TestSkillsListsProjectAndPluginEntries(t *testing.T) {
	isolate(t)
	cwd := t.TempDir()
	cacheDir := filepath.Join(t.TempDir(), "cache")
	testutil.WriteFile(t, cacheDir, "market/super/1.0.0/.claude-plugin/plugin.json", `{"name":"super"}`)
	testutil.WriteFile(t, cacheDir, "market/super/1.0.0/skills/review/SKILL.md", "---\nname: review\n---\nbody\n")
	testutil.WriteFile(t, cacheDir, "market/super/1.0.0/commands/ship.md", "ship it")
	testutil.WriteFile(t, cwd, ".claude/skills/local-skill/SKILL.md", "---\nname: local-skill\n---\n")
	testutil.WriteFile(t, cwd, ".claude/commands/retro.md", "retro")

	var out bytes.Buffer
	require.NoError(t, runSkills(&out, cwd, cacheDir))

	s := out.String()
	assert.Contains(t, s, "Available skills and commands:")
	assert.Contains(t, s, "  Plugin: super (v1.0.0)")
	assert.Contains(t, s, "    Skills: review")
	assert.Contains(t, s, "    Commands: ship")
	assert.Contains(t, s, "  Project skills:")
	assert.Contains(t, s, "    local-skill")
	assert.Contains(t, s, "  Project commands:")
	assert.Contains(t, s, "    retro")
	assert.Contains(t, s, `  Or enter a glob pattern (e.g. "superpowers:*")`)
}
