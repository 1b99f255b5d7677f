// Package skills enumerates the skills and slash commands the host can
// dispatch, so users know what names their subscriptions can match.
//
// Two sources exist: the host's plugin cache (versioned, with orphan
// markers left by uninstalls) and standalone skill directories at the
// user and project level.
package skills

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Plugin is one installed plugin at its newest non-orphaned version.
type Plugin struct {
	Name     string
	Version  string
	Skills   []string
	Commands []string
}

type pluginManifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type skillFrontmatter struct {
	Name string `yaml:"name"`
}

// FrontmatterName extracts the name field from a SKILL.md YAML
// frontmatter block. Returns "" when the file has no parseable
// frontmatter so callers fall back to the directory name.
func FrontmatterName(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	body := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(body, "---\n") {
		return ""
	}
	rest := body[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return ""
	}
	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return ""
	}
	return strings.TrimSpace(fm.Name)
}

// ScanPluginCache walks the plugin cache layout
// <cache>/<source>/<plugin>/<version>/ and returns each plugin at its
// newest version, skipping versions carrying an .orphaned_at marker.
// When the same plugin name appears under multiple sources, the copy
// exposing the most skills and commands wins.
func ScanPluginCache(cacheDir string) []Plugin {
	sources, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil
	}

	byName := map[string]Plugin{}
	for _, source := range sources {
		if !source.IsDir() || strings.HasPrefix(source.Name(), "temp_git_") {
			continue
		}
		sourcePath := filepath.Join(cacheDir, source.Name())
		pluginDirs, err := os.ReadDir(sourcePath)
		if err != nil {
			continue
		}
		for _, pd := range pluginDirs {
			if !pd.IsDir() {
				continue
			}
			p, ok := scanPlugin(filepath.Join(sourcePath, pd.Name()), pd.Name())
			if !ok {
				continue
			}
			if prev, exists := byName[p.Name]; exists && len(prev.Skills)+len(prev.Commands) >= len(p.Skills)+len(p.Commands) {
				continue
			}
			byName[p.Name] = p
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		plugins = append(plugins, byName[name])
	}
	return plugins
}

func scanPlugin(pluginPath, dirName string) (Plugin, bool) {
	entries, err := os.ReadDir(pluginPath)
	if err != nil {
		return Plugin{}, false
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(pluginPath, e.Name(), ".orphaned_at")); err == nil {
			continue
		}
		versions = append(versions, e.Name())
	}
	if len(versions) == 0 {
		return Plugin{}, false
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })
	newest := versions[len(versions)-1]
	versionPath := filepath.Join(pluginPath, newest)

	p := Plugin{Name: dirName, Version: newest}
	if data, err := os.ReadFile(filepath.Join(versionPath, ".claude-plugin", "plugin.json")); err == nil {
		var m pluginManifest
		if json.Unmarshal(data, &m) == nil {
			if m.Name != "" {
				p.Name = m.Name
			}
			if m.Version != "" {
				p.Version = m.Version
			}
		}
	}

	p.Skills = scanSkillDirs(filepath.Join(versionPath, "skills"))
	p.Commands = ScanCommands(filepath.Join(versionPath, "commands"))
	if len(p.Skills) == 0 && len(p.Commands) == 0 {
		return Plugin{}, false
	}
	return p, true
}

// versionLess orders plugin version directory names. Valid semver
// versions compare numerically; anything else falls back to
// lexicographic ordering, and valid semver sorts after invalid.
func versionLess(a, b string) bool {
	va, vb := "v"+a, "v"+b
	aOK, bOK := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case aOK && bOK:
		return semver.Compare(va, vb) < 0
	case aOK != bOK:
		return bOK
	default:
		return a < b
	}
}

func scanSkillDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var skills []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		md := filepath.Join(dir, e.Name(), "SKILL.md")
		if _, err := os.Stat(md); err != nil {
			continue
		}
		if name := FrontmatterName(md); name != "" {
			skills = append(skills, name)
		} else {
			skills = append(skills, e.Name())
		}
	}
	return skills
}

// ScanStandalone scans a skills directory for SKILL.md files, including
// one level of public/ nesting used by shared project skills.
func ScanStandalone(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var skills []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		md := filepath.Join(dir, e.Name(), "SKILL.md")
		if _, err := os.Stat(md); err == nil {
			if name := FrontmatterName(md); name != "" {
				skills = append(skills, name)
			} else {
				skills = append(skills, e.Name())
			}
		}
		nested := filepath.Join(dir, e.Name(), "public")
		nestedEntries, err := os.ReadDir(nested)
		if err != nil {
			continue
		}
		for _, sub := range nestedEntries {
			if !sub.IsDir() {
				continue
			}
			subMD := filepath.Join(nested, sub.Name(), "SKILL.md")
			if _, err := os.Stat(subMD); err != nil {
				continue
			}
			if name := FrontmatterName(subMD); name != "" {
				skills = append(skills, name)
			} else {
				skills = append(skills, sub.Name())
			}
		}
	}
	return skills
}

// ScanCommands lists the command names (.md files without extension) in
// a commands directory.
func ScanCommands(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var commands []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		commands = append(commands, strings.TrimSuffix(e.Name(), ".md"))
	}
	return commands
}
