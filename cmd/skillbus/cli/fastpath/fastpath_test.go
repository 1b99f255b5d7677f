package fastpath

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestReadEventProbesFields(t *testing.T) {
	payload := `{"tool_name":"Skill","tool_input":{"skill":"tests:run","args":"--fast"},"cwd":"/work","prompt":""}`

	ev, err := ReadEvent(strings.NewReader(payload))

	require.NoError(t, err)
	assert.Equal(t, "Skill", ev.ToolName)
	assert.Equal(t, "tests:run", ev.Skill)
	assert.Equal(t, "--fast", ev.Args)
	assert.Equal(t, "/work", ev.CWD)
	assert.Equal(t, payload, string(ev.Raw))
}

func TestReadEventPromptPayload(t *testing.T) {
	ev, err := ReadEvent(strings.NewReader(`{"prompt":"/tests:run now","cwd":"/work"}`))

	require.NoError(t, err)
	assert.Equal(t, "/tests:run now", ev.Prompt)
	assert.Empty(t, ev.ToolName)
}

func TestReadEventNonJSON(t *testing.T) {
	ev, err := ReadEvent(strings.NewReader("not json"))

	require.NoError(t, err)
	assert.Empty(t, ev.Skill)
	assert.Equal(t, "not json", string(ev.Raw))
}

func TestGateNoConfigRejects(t *testing.T) {
	dir := t.TempDir()

	d := Gate("tests:run", filepath.Join(dir, "global.json"), filepath.Join(dir, "project.json"))

	assert.Equal(t, RejectSilent, d)
}

func TestGateLiteralSkillNameProceeds(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.json")
	writeFile(t, project, `{"subscriptions":[{"insert":"a","on":"tests:run"}]}`)

	assert.Equal(t, Proceed, Gate("tests:run", filepath.Join(dir, "absent.json"), project))
	assert.Equal(t, RejectSilent, Gate("deploy:prod", filepath.Join(dir, "absent.json"), project))
}

func TestGateWildcardProceeds(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.json")
	writeFile(t, global, `{"subscriptions":[{"insert":"a","on":"tests:*"}]}`)

	assert.Equal(t, Proceed, Gate("anything:at-all", global, filepath.Join(dir, "absent.json")))
}

func TestGateCompletionSignalAlwaysProceeds(t *testing.T) {
	dir := t.TempDir()

	d := Gate(CompletionSkill, filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"))

	assert.Equal(t, Proceed, d)
}

func TestGateObserveUnmatchedHint(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.json")
	writeFile(t, project, `{"settings":{"telemetry":true,"observeUnmatched":true},"subscriptions":[{"insert":"a","on":"tests:run"}]}`)

	assert.Equal(t, LogNoCoverage, Gate("deploy:prod", filepath.Join(dir, "absent.json"), project))
}

func TestGateNoHintRejects(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "project.json")
	writeFile(t, project, `{"settings":{"telemetry":true},"subscriptions":[{"insert":"a","on":"tests:run"}]}`)

	assert.Equal(t, RejectSilent, Gate("deploy:prod", filepath.Join(dir, "absent.json"), project))
}

func TestConfigMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.json")
	writeFile(t, present, `{}`)

	assert.True(t, ConfigMissing(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")))
	assert.False(t, ConfigMissing(present, filepath.Join(dir, "b.json")))
}

func TestNudgeShownOnce(t *testing.T) {
	cwd := t.TempDir()

	assert.True(t, NudgePending(cwd))
	MarkNudged(cwd)
	assert.False(t, NudgePending(cwd))
}

func TestMarkNudgedUnwritableIsSilent(t *testing.T) {
	cwd := t.TempDir()
	// Make .claude a file so MkdirAll fails.
	require.NoError(t, os.WriteFile(filepath.Join(cwd, ".claude"), []byte("x"), 0o600))

	MarkNudged(cwd)

	assert.True(t, NudgePending(cwd))
}
