package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/skills"
)

func newSkillsCmd() *cobra.Command {
	var (
		cwdFlag  string
		cacheDir string
	)

	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List dispatchable skills and commands",
		Long:  "Enumerate installed plugin skills, standalone skills, and slash commands that subscriptions can match",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cacheDir == "" {
				cacheDir = paths.PluginCacheDir()
			}
			return runSkills(cmd.OutOrStdout(), resolveCWD(cwdFlag), cacheDir)
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Plugin cache directory override")

	return cmd
}

func runSkills(w io.Writer, cwd, cacheDir string) error {
	fmt.Fprintln(w, "Available skills and commands:")
	fmt.Fprintln(w)

	for _, plugin := range skills.ScanPluginCache(cacheDir) {
		verStr := ""
		if plugin.Version != "" {
			verStr = fmt.Sprintf(" (v%s)", plugin.Version)
		}
		fmt.Fprintf(w, "  Plugin: %s%s\n", plugin.Name, verStr)
		if len(plugin.Skills) > 0 {
			fmt.Fprintf(w, "    Skills: %s\n", strings.Join(plugin.Skills, ", "))
		}
		if len(plugin.Commands) > 0 {
			fmt.Fprintf(w, "    Commands: %s\n", strings.Join(plugin.Commands, ", "))
		}
		fmt.Fprintln(w)
	}

	if home, err := os.UserHomeDir(); err == nil {
		if userSkills := skills.ScanStandalone(filepath.Join(home, paths.ClaudeDir, "skills")); len(userSkills) > 0 {
			fmt.Fprintln(w, "  User skills (global):")
			fmt.Fprintf(w, "    %s\n", strings.Join(userSkills, ", "))
			fmt.Fprintln(w)
		}
		if userCmds := skills.ScanCommands(filepath.Join(home, paths.ClaudeDir, "commands")); len(userCmds) > 0 {
			fmt.Fprintln(w, "  User commands (global):")
			fmt.Fprintf(w, "    %s\n", strings.Join(userCmds, ", "))
			fmt.Fprintln(w)
		}
	}

	if projectSkills := skills.ScanStandalone(paths.StandaloneSkillsDir(cwd)); len(projectSkills) > 0 {
		fmt.Fprintln(w, "  Project skills:")
		fmt.Fprintf(w, "    %s\n", strings.Join(projectSkills, ", "))
		fmt.Fprintln(w)
	}

	if projectCmds := skills.ScanCommands(filepath.Join(cwd, paths.ClaudeDir, "commands")); len(projectCmds) > 0 {
		fmt.Fprintln(w, "  Project commands:")
		fmt.Fprintf(w, "    %s\n", strings.Join(projectCmds, ", "))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, `  Or enter a glob pattern (e.g. "superpowers:*")`)
	return nil
}
