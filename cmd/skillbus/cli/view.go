package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// loadScopes reads both config files and merges them, accumulating the
// warnings from every stage.
func loadScopes(cwd string) (global, project *config.File, view *config.View, warnings []string) {
	global, gw := config.Load(paths.GlobalConfigPath())
	project, pw := config.Load(paths.ProjectConfigPath(cwd))
	view, mw := config.Merge(global, project)
	warnings = append(warnings, gw...)
	warnings = append(warnings, pw...)
	warnings = append(warnings, mw...)
	return global, project, view, warnings
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintln(w, warning)
	}
}

// resolveCWD returns the --cwd flag value, falling back to the process
// working directory.
func resolveCWD(flag string) string {
	if flag != "" {
		return flag
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// scopeState describes one config file for status displays.
func scopeState(f *config.File) string {
	if f == nil {
		return "no config"
	}
	if v, ok := f.Settings["enabled"].(bool); ok && !v {
		return "disabled"
	}
	return "enabled"
}
