package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var booleanSettings = map[string]bool{
	"enabled": true, "showConsoleEcho": true, "disableGlobal": true,
	"monitorSlashCommands": true, "showConditionSkips": true,
	"telemetry": true, "observeUnmatched": true, "completionHooks": true,
}

var integerSettings = map[string]int{
	"maxMatchesPerSkill": 1,
	"maxLogSizeKB":       0,
}

var stringSettings = map[string]bool{
	"telemetryPath": true,
}

func newSetCmd() *cobra.Command {
	var (
		cwdFlag string
		scope   string
	)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration setting",
		Long:  "Write one settings key into the global or project config file, preserving everything else in the file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope != "global" && scope != "project" {
				return fmt.Errorf("invalid --scope value %q: use global or project", scope)
			}
			return runSet(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], args[1], scope, resolveCWD(cwdFlag))
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&scope, "scope", "project", "Scope to write: global or project")

	return cmd
}

func runSet(w, errW io.Writer, key, valueStr, scope, cwd string) error {
	if !booleanSettings[key] && !stringSettings[key] {
		if _, ok := integerSettings[key]; !ok {
			return fmt.Errorf("unknown setting: '%s'\nValid settings: %s", key, strings.Join(validSettingNames(), ", "))
		}
	}

	value, err := parseSettingValue(key, valueStr)
	if err != nil {
		return err
	}

	configPath := scopeConfigPath(scope, cwd)
	cfg, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{"inserts": map[string]any{}, "subscriptions": []any{}}
	}

	settings, ok := cfg["settings"].(map[string]any)
	if !ok {
		settings = map[string]any{}
		cfg["settings"] = settings
	}
	settings[key] = value

	if err := saveRawConfig(configPath, cfg); err != nil {
		return err
	}

	encoded, _ := json.Marshal(value)
	fmt.Fprintf(w, "Set %s = %s in %s config\n", key, encoded, scope)

	if key == "observeUnmatched" && value == true {
		if enabled, _ := settings["telemetry"].(bool); !enabled {
			fmt.Fprintln(errW, "  Note: observeUnmatched requires telemetry to be enabled")
		}
	}
	return nil
}

func parseSettingValue(key, valueStr string) (any, error) {
	if booleanSettings[key] {
		switch strings.ToLower(valueStr) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("boolean setting '%s' requires true/false, got '%s'", key, valueStr)
	}
	if minimum, ok := integerSettings[key]; ok {
		n, err := strconv.Atoi(valueStr)
		if err != nil {
			return nil, fmt.Errorf("integer setting '%s' requires a number, got '%s'", key, valueStr)
		}
		if n < minimum {
			return nil, fmt.Errorf("integer setting '%s' must be >= %d, got %d", key, minimum, n)
		}
		return n, nil
	}
	return valueStr, nil
}

func validSettingNames() []string {
	names := make([]string, 0, len(booleanSettings)+len(integerSettings)+len(stringSettings))
	for name := range booleanSettings {
		names = append(names, name)
	}
	for name := range integerSettings {
		names = append(names, name)
	}
	for name := range stringSettings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
