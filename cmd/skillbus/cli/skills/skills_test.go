package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeSkill(t *testing.T, dir, frontmatterName string) {
	t.Helper()
	content := "# Skill\n"
	if frontmatterName != "" {
		content = "---\nname: " + frontmatterName + "\ndescription: test\n---\n\n# Skill\n"
	}
	writeFile(t, filepath.Join(dir, "SKILL.md"), content)
}

func TestFrontmatterName(t *testing.T) {
	dir := t.TempDir()

	md := filepath.Join(dir, "SKILL.md")
	writeFile(t, md, "---\nname: code-review\ndescription: reviews code\n---\n\nbody\n")
	assert.Equal(t, "code-review", FrontmatterName(md))

	writeFile(t, md, "---\nname: \"quoted-name\"\n---\nbody\n")
	assert.Equal(t, "quoted-name", FrontmatterName(md))

	writeFile(t, md, "# No frontmatter\n")
	assert.Empty(t, FrontmatterName(md))

	writeFile(t, md, "---\nname: [unterminated\n")
	assert.Empty(t, FrontmatterName(md))

	assert.Empty(t, FrontmatterName(filepath.Join(dir, "missing.md")))
}

func TestScanPluginCacheNewestVersionWins(t *testing.T) {
	cache := t.TempDir()
	plugin := filepath.Join(cache, "marketplace", "helper")

	writeSkill(t, filepath.Join(plugin, "1.2.0", "skills", "old-skill"), "")
	writeSkill(t, filepath.Join(plugin, "1.10.0", "skills", "new-skill"), "")

	plugins := ScanPluginCache(cache)
	require.Len(t, plugins, 1)
	assert.Equal(t, "helper", plugins[0].Name)
	assert.Equal(t, "1.10.0", plugins[0].Version)
	assert.Equal(t, []string{"new-skill"}, plugins[0].Skills)
}

func TestScanPluginCacheOrphanedVersionSkipped(t *testing.T) {
	cache := t.TempDir()
	version := filepath.Join(cache, "marketplace", "helper", "2.0.0")
	writeSkill(t, filepath.Join(version, "skills", "review"), "")
	writeFile(t, filepath.Join(version, ".orphaned_at"), "2026-01-01")

	assert.Empty(t, ScanPluginCache(cache))
}

func TestScanPluginCacheManifestOverridesDirName(t *testing.T) {
	cache := t.TempDir()
	version := filepath.Join(cache, "marketplace", "helper-dir", "1.0.0")
	writeSkill(t, filepath.Join(version, "skills", "review"), "fancy-review")
	writeFile(t, filepath.Join(version, ".claude-plugin", "plugin.json"),
		`{"name": "helper", "version": "1.0.1"}`)
	writeFile(t, filepath.Join(version, "commands", "deploy.md"), "# deploy\n")
	writeFile(t, filepath.Join(version, "commands", "notes.txt"), "not a command\n")

	plugins := ScanPluginCache(cache)
	require.Len(t, plugins, 1)
	assert.Equal(t, "helper", plugins[0].Name)
	assert.Equal(t, "1.0.1", plugins[0].Version)
	assert.Equal(t, []string{"fancy-review"}, plugins[0].Skills)
	assert.Equal(t, []string{"deploy"}, plugins[0].Commands)
}

func TestScanPluginCacheDuplicateKeepsRicherCopy(t *testing.T) {
	cache := t.TempDir()

	sparse := filepath.Join(cache, "source-a", "helper", "1.0.0")
	writeSkill(t, filepath.Join(sparse, "skills", "one"), "")

	rich := filepath.Join(cache, "source-b", "helper", "1.0.0")
	writeSkill(t, filepath.Join(rich, "skills", "one"), "")
	writeSkill(t, filepath.Join(rich, "skills", "two"), "")

	plugins := ScanPluginCache(cache)
	require.Len(t, plugins, 1)
	assert.Len(t, plugins[0].Skills, 2)
}

func TestScanPluginCacheIgnoresTempGitDirs(t *testing.T) {
	cache := t.TempDir()
	writeSkill(t, filepath.Join(cache, "temp_git_12345", "helper", "1.0.0", "skills", "x"), "")

	assert.Empty(t, ScanPluginCache(cache))
}

func TestScanPluginCacheMissingDir(t *testing.T) {
	assert.Empty(t, ScanPluginCache(filepath.Join(t.TempDir(), "absent")))
}

func TestVersionLess(t *testing.T) {
	assert.True(t, versionLess("1.2.0", "1.10.0"))
	assert.False(t, versionLess("2.0.0", "1.9.9"))
	assert.True(t, versionLess("abc", "abd"))
	// Valid semver sorts after non-semver names.
	assert.True(t, versionLess("snapshot", "0.1.0"))
}

func TestScanStandalone(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, filepath.Join(dir, "local-skill"), "named-skill")
	writeSkill(t, filepath.Join(dir, "bare"), "")
	writeSkill(t, filepath.Join(dir, "shared", "public", "team-skill"), "")
	writeFile(t, filepath.Join(dir, "not-a-skill", "README.md"), "no SKILL.md here\n")

	skills := ScanStandalone(dir)
	assert.Equal(t, []string{"bare", "named-skill", "team-skill"}, skills)
}

func TestScanStandaloneMissingDir(t *testing.T) {
	assert.Empty(t, ScanStandalone(filepath.Join(t.TempDir(), "absent")))
}

func TestScanCommands(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "deploy.md"), "# deploy\n")
	writeFile(t, filepath.Join(dir, "review.md"), "# review\n")
	writeFile(t, filepath.Join(dir, "ignore.txt"), "x\n")

	assert.Equal(t, []string{"deploy", "review"}, ScanCommands(dir))
	assert.Empty(t, ScanCommands(filepath.Join(dir, "absent")))
}
