// Package paths centralizes the file locations used by the skill bus:
// config files in both scopes, the hidden state directory, and the
// telemetry log.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Directory and file constants
const (
	ClaudeDir         = ".claude"
	ConfigFileName    = "skill-bus.json"
	StateDirName      = ".skill-bus"
	LogsDirName       = "logs"
	NudgeMarkerName   = ".skill-bus-nudged"
	TelemetryFileName = "skill-bus-telemetry.jsonl"
)

// GlobalConfigEnvVar overrides the global config location. Primarily for
// tests, but also useful for machines with relocated home directories.
const GlobalConfigEnvVar = "SKILL_BUS_GLOBAL_CONFIG"

// GlobalConfigPath returns the path of the user-scoped config file,
// honoring GlobalConfigEnvVar when set.
func GlobalConfigPath() string {
	if p := os.Getenv(GlobalConfigEnvVar); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ClaudeDir, ConfigFileName)
}

// ProjectConfigPath returns the path of the project-scoped config file
// under the given working directory.
func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, ClaudeDir, ConfigFileName)
}

// StateDir returns the hidden per-project state directory.
func StateDir(cwd string) string {
	return filepath.Join(cwd, ClaudeDir, StateDirName)
}

// LogsDir returns the directory for debug log files.
func LogsDir(cwd string) string {
	return filepath.Join(StateDir(cwd), LogsDirName)
}

// NudgeMarkerPath returns the marker file that records that the first-run
// nudge has already been shown for this project.
func NudgeMarkerPath(cwd string) string {
	return filepath.Join(cwd, ClaudeDir, NudgeMarkerName)
}

// DefaultTelemetryPath returns the telemetry log location used when the
// settings do not override it.
func DefaultTelemetryPath(cwd string) string {
	return filepath.Join(cwd, ClaudeDir, TelemetryFileName)
}

// ResolveTelemetryPath resolves the telemetry log path from a settings
// override. An empty override selects the default; a relative override is
// joined to cwd.
func ResolveTelemetryPath(cwd, override string) string {
	if override == "" {
		return DefaultTelemetryPath(cwd)
	}
	p := ExpandHome(override)
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	return p
}

// ExpandHome replaces a leading "~" or "~/" with the user home directory.
// Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// PluginCacheDir returns the host's plugin cache root.
func PluginCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ClaudeDir, "plugins", "cache")
}

// StandaloneSkillsDir returns the project-local skills directory.
func StandaloneSkillsDir(cwd string) string {
	return filepath.Join(cwd, ClaudeDir, "skills")
}
