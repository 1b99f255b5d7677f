package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/jsonutil"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
	"github.com/skillbus/cli/cmd/skillbus/cli/skills"
)

// knowledgeFile is one discovered source of project context.
type knowledgeFile struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type scanResult struct {
	Knowledge      []knowledgeFile
	Plugins        []skills.Plugin
	ExistingSubs   int
	ExistingConfig bool
	GitRemote      string
}

func newScanCmd() *cobra.Command {
	var (
		cwdFlag  string
		jsonMode bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover project knowledge files",
		Long:  "Scan the project for context sources worth wiring into inserts: CLAUDE.md, docs, README, build files, git identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolveCWD(cwdFlag), jsonMode)
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Emit machine-readable JSON")

	return cmd
}

func runScan(w, errW io.Writer, cwd string, jsonMode bool) error {
	result, warnings := scanKnowledge(cwd)

	if jsonMode {
		skillCount := 0
		for _, p := range result.Plugins {
			skillCount += len(p.Skills) + len(p.Commands)
		}
		out := map[string]any{
			"knowledge":       result.Knowledge,
			"skills_count":    skillCount,
			"plugins_count":   len(result.Plugins),
			"existing_subs":   result.ExistingSubs,
			"existing_config": result.ExistingConfig,
			"git_remote":      result.GitRemote,
		}
		data, err := jsonutil.MarshalIndentWithNewline(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding scan result: %w", err)
		}
		_, _ = w.Write(data)
		return nil
	}

	fmt.Fprintln(w, "Skill Bus Project Scan")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintln(w)

	if len(result.Knowledge) > 0 {
		fmt.Fprintln(w, "Knowledge files found:")
		for _, k := range result.Knowledge {
			fmt.Fprintf(w, "  - %s — %s\n", k.Path, k.Description)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "No knowledge files found.")
		fmt.Fprintln(w, "  Tip: Create docs/decisions/ to start capturing project context.")
		fmt.Fprintln(w)
	}

	totalSkills, totalCommands := 0, 0
	for _, p := range result.Plugins {
		totalSkills += len(p.Skills)
		totalCommands += len(p.Commands)
	}
	fmt.Fprintf(w, "Installed: %d plugins, %d skills, %d commands\n", len(result.Plugins), totalSkills, totalCommands)
	fmt.Fprintln(w)

	if result.ExistingConfig {
		fmt.Fprintf(w, "Existing config: %d existing subscription(s)\n", result.ExistingSubs)
	} else {
		fmt.Fprintln(w, "No existing config found.")
	}

	printWarnings(errW, warnings)
	return nil
}

func scanKnowledge(cwd string) (scanResult, []string) {
	var result scanResult

	if fileIsRegular(filepath.Join(cwd, paths.ClaudeDir, "CLAUDE.md")) {
		result.Knowledge = append(result.Knowledge, knowledgeFile{
			Path:        ".claude/CLAUDE.md",
			Type:        "project-context",
			Description: "Project context and conventions",
		})
	}

	if k, ok := scanDocsDir(filepath.Join(cwd, "docs")); ok {
		result.Knowledge = append(result.Knowledge, k)
	}

	if fileIsRegular(filepath.Join(cwd, "README.md")) {
		result.Knowledge = append(result.Knowledge, knowledgeFile{
			Path:        "README.md",
			Type:        "project-context",
			Description: "Project README",
		})
	}

	buildFiles := []struct{ name, desc string }{
		{"package.json", "Node.js project config"},
		{"tsconfig.json", "TypeScript config"},
		{"pyproject.toml", "Python project config"},
		{"Cargo.toml", "Rust project config"},
		{"go.mod", "Go module config"},
		{"Makefile", "Build automation"},
	}
	for _, bf := range buildFiles {
		if fileIsRegular(filepath.Join(cwd, bf.name)) {
			result.Knowledge = append(result.Knowledge, knowledgeFile{
				Path:        bf.name,
				Type:        "build-tooling",
				Description: bf.desc,
			})
		}
	}

	if remote := gitRemote(cwd); remote != "" {
		result.GitRemote = remote
		result.Knowledge = append(result.Knowledge, knowledgeFile{
			Path:        ".git/config",
			Type:        "git-identity",
			Description: fmt.Sprintf("Git remote: %s", remote),
		})
	}

	global, project, view, warnings := loadScopes(cwd)
	subs, _ := config.DropLegacy(view.Subscriptions)
	result.ExistingSubs = len(subs)
	result.ExistingConfig = global != nil || project != nil

	result.Plugins = skills.ScanPluginCache(paths.PluginCacheDir())

	return result, warnings
}

func scanDocsDir(docsDir string) (knowledgeFile, bool) {
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		return knowledgeFile{}, false
	}

	docCount := 0
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subEntries, err := os.ReadDir(filepath.Join(docsDir, e.Name()))
			if err != nil {
				continue
			}
			subCount := 0
			for _, se := range subEntries {
				if !se.IsDir() {
					subCount++
				}
			}
			if subCount > 0 {
				subdirs = append(subdirs, fmt.Sprintf("docs/%s/ (%d files)", e.Name(), subCount))
				docCount += subCount
			}
		} else {
			docCount++
		}
	}

	detail := fmt.Sprintf("%d files", docCount)
	if len(subdirs) > 0 {
		detail = strings.Join(subdirs, ", ")
	}
	return knowledgeFile{
		Path:        "docs/",
		Type:        "documentation",
		Description: fmt.Sprintf("Documentation directory — %s", detail),
	}, true
}

// gitRemote reads the origin remote URL, shortened to owner/repo form for
// the common github layouts.
func gitRemote(cwd string) string {
	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		remotes, err := repo.Remotes()
		if err != nil || len(remotes) == 0 {
			return ""
		}
		remote = remotes[0]
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	url := urls[0]
	for _, prefix := range []string{"https://github.com/", "git@github.com:"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimSuffix(url[len(prefix):], ".git")
		}
	}
	return url
}

func fileIsRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
