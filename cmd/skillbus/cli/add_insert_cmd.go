package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newAddInsertCmd() *cobra.Command {
	var (
		cwdFlag    string
		scope      string
		text       string
		textSet    bool
		on         string
		when       string
		conditions string
		dynamic    string
	)

	cmd := &cobra.Command{
		Use:   "add-insert <name>",
		Short: "Create or update an insert and its subscription",
		Long:  "Add an insert definition to a config file and subscribe it to a skill pattern. Reuses the existing insert text when --text is omitted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if scope != "global" && scope != "project" {
				return fmt.Errorf("invalid --scope value %q: use global or project", scope)
			}
			if when != "pre" && when != "post" && when != "complete" {
				return fmt.Errorf("invalid --on value %q: use pre, post, or complete", when)
			}
			textSet = cmd.Flags().Changed("text")
			req := addInsertRequest{
				Name:       args[0],
				Text:       text,
				TextSet:    textSet,
				On:         on,
				When:       when,
				Conditions: conditions,
				Dynamic:    dynamic,
				Scope:      scope,
				CWD:        resolveCWD(cwdFlag),
			}
			return runAddInsert(cmd.OutOrStdout(), cmd.ErrOrStderr(), req)
		},
	}

	cmd.Flags().StringVar(&cwdFlag, "cwd", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVar(&scope, "scope", "project", "Scope to write: global or project")
	cmd.Flags().StringVar(&text, "text", "", "Insert text (required when creating a new insert)")
	cmd.Flags().StringVar(&on, "skill", "*", "Skill pattern the subscription matches")
	cmd.Flags().StringVar(&when, "on", "pre", "Subscription timing: pre, post, or complete")
	cmd.Flags().StringVar(&conditions, "conditions", "", "Conditions as a JSON array")
	cmd.Flags().StringVar(&dynamic, "dynamic", "", "Dynamic handler name backing this insert")

	return cmd
}

type addInsertRequest struct {
	Name       string
	Text       string
	TextSet    bool
	On         string
	When       string
	Conditions string
	Dynamic    string
	Scope      string
	CWD        string
}

func runAddInsert(w, errW io.Writer, req addInsertRequest) error {
	configPath := scopeConfigPath(req.Scope, req.CWD)
	cfg, err := loadRawConfig(configPath)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}

	inserts, ok := cfg["inserts"].(map[string]any)
	if !ok {
		inserts = map[string]any{}
		cfg["inserts"] = inserts
	}
	subsRaw, ok := cfg["subscriptions"].([]any)
	if !ok {
		subsRaw = []any{}
	}

	// Reuse or update the insert. An update keeps existing conditions and
	// dynamic handler unless --conditions or --dynamic replace them.
	var insertDef map[string]any
	existing, exists := inserts[req.Name].(map[string]any)
	switch {
	case !req.TextSet && exists:
		insertDef = existing
	case !req.TextSet:
		return fmt.Errorf("--text is required when creating a new insert '%s'", req.Name)
	case exists:
		insertDef = map[string]any{}
		for k, v := range existing {
			insertDef[k] = v
		}
		insertDef["text"] = req.Text
	default:
		insertDef = map[string]any{"text": req.Text}
	}

	if req.Conditions != "" {
		var conds []any
		if err := json.Unmarshal([]byte(req.Conditions), &conds); err != nil {
			return fmt.Errorf("invalid conditions JSON: %w", err)
		}
		if len(conds) > 0 {
			insertDef["conditions"] = conds
		}
	}
	if req.Dynamic != "" {
		insertDef["dynamic"] = req.Dynamic
	}

	for _, raw := range subsRaw {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		when, _ := sub["when"].(string)
		if when == "" {
			when = "pre"
		}
		if sub["insert"] == req.Name && sub["on"] == req.On && when == req.When {
			fmt.Fprintf(errW, "Subscription already exists: %s -> %s [%s]\n", req.Name, req.On, req.When)
			return nil
		}
	}

	inserts[req.Name] = insertDef
	cfg["subscriptions"] = append(subsRaw, map[string]any{
		"insert": req.Name,
		"on":     req.On,
		"when":   req.When,
	})

	if err := saveRawConfig(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Created: %s -> %s [%s] (%s)\n", req.Name, req.On, req.When, req.Scope)
	return nil
}
