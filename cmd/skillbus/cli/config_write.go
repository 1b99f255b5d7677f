package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillbus/cli/cmd/skillbus/cli/jsonutil"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// loadRawConfig reads one config file as a raw map so unknown keys
// survive a read-modify-write cycle. A missing file returns (nil, nil);
// malformed JSON is an error because writing over it would destroy
// whatever the user was editing.
func loadRawConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s has invalid JSON (%w). Fix the JSON syntax before modifying config.", path, err)
	}
	return cfg, nil
}

func saveRawConfig(path string, cfg map[string]any) error {
	data, err := jsonutil.MarshalIndentWithNewline(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// scopeConfigPath resolves which file a write targets.
func scopeConfigPath(scope, cwd string) string {
	if scope == "global" {
		return paths.ExpandHome(paths.GlobalConfigPath())
	}
	return paths.ProjectConfigPath(cwd)
}
