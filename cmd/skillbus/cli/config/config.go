// Package config loads and merges the layered skill-bus configuration.
//
// Two files participate: the global config under the user's home claude
// directory and the project config under the working directory. Merging is
// a pure function from the two decoded files to one effective view, so
// tests can drive it with literal inputs. All schema drift degrades to
// warnings, never errors.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skillbus/cli/cmd/skillbus/cli/condition"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// Settings is the merged settings block. Defaults overlaid by global then
// project, field by field, with per-field type validation.
type Settings struct {
	Enabled              bool
	MaxMatchesPerSkill   int
	ShowConsoleEcho      bool
	DisableGlobal        bool
	MonitorSlashCommands bool
	CompletionHooks      bool
	ShowConditionSkips   bool
	Telemetry            bool
	ObserveUnmatched     bool
	TelemetryPath        string
	MaxLogSizeKB         int
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:              true,
		MaxMatchesPerSkill:   3,
		ShowConsoleEcho:      true,
		DisableGlobal:        false,
		MonitorSlashCommands: false,
		CompletionHooks:      false,
		ShowConditionSkips:   false,
		Telemetry:            false,
		ObserveUnmatched:     false,
		TelemetryPath:        "",
		MaxLogSizeKB:         512,
	}
}

// Insert is a named block of context text, optionally gated by its own
// conditions and optionally backed by a dynamic handler.
type Insert struct {
	Text        string                `json:"text"`
	Description string                `json:"description,omitempty"`
	Dynamic     string                `json:"dynamic,omitempty"`
	Conditions  []condition.Condition `json:"conditions,omitempty"`
}

// Subscription routes an insert onto a skill pattern at a timing.
type Subscription struct {
	Insert            string                `json:"insert,omitempty"`
	ID                string                `json:"id,omitempty"`
	On                string                `json:"on"`
	When              string                `json:"when,omitempty"`
	Enabled           *bool                 `json:"enabled,omitempty"`
	Conditions        []condition.Condition `json:"conditions,omitempty"`
	InheritConditions *bool                 `json:"inheritConditions,omitempty"`
	Inject            string                `json:"inject,omitempty"`

	// Scope records which file the subscription came from ("global" or
	// "project"). Set during merge, never serialized.
	Scope string `json:"-"`
}

// Timing returns the subscription's timing, defaulting to "pre".
func (s Subscription) Timing() string {
	if s.When == "" {
		return "pre"
	}
	return s.When
}

// IsEnabled reports whether the subscription is active. Absent means true.
func (s Subscription) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Inherits reports whether the subscription inherits its insert's
// conditions. Absent means true.
func (s Subscription) Inherits() bool {
	return s.InheritConditions == nil || *s.InheritConditions
}

// IsLegacy reports whether the subscription uses the retired inline
// 'inject' format without an insert reference.
func (s Subscription) IsLegacy() bool {
	return s.Inject != "" && s.Insert == ""
}

// identity is the dedup key: insert name (or id fallback), pattern, timing.
func (s Subscription) identity() [3]string {
	name := s.Insert
	if name == "" {
		name = s.ID
	}
	return [3]string{name, s.On, s.Timing()}
}

// File is one decoded configuration file. Inserts and subscriptions stay
// raw so a single malformed entry never poisons the rest of the file.
type File struct {
	Settings      map[string]any             `json:"settings"`
	Inserts       map[string]json.RawMessage `json:"inserts"`
	Subscriptions []json.RawMessage          `json:"subscriptions"`
}

// Load reads and decodes one config file. A missing file returns (nil, nil).
// Malformed JSON, or a top-level value that is not an object, returns nil
// with a warning so the other scope can still be processed.
func Load(path string) (*File, []string) {
	expanded := paths.ExpandHome(path)
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []string{fmt.Sprintf("[skill-bus] WARNING - %s has invalid JSON (%v). Fix to restore subscriptions.", path, err)}
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, []string{fmt.Sprintf("[skill-bus] WARNING - %s has invalid JSON (%v). Fix to restore subscriptions.", path, err)}
	}
	return &f, nil
}

// View is the effective configuration after merging both scopes.
type View struct {
	Settings      Settings
	Inserts       map[string]Insert
	Subscriptions []Subscription
}

// Merge produces the effective view from up to two decoded files. Either
// argument may be nil. The returned warnings cover type drift, insert
// collisions, and duplicate subscriptions.
func Merge(global, project *File) (*View, []string) {
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	settings := DefaultSettings()
	if global != nil {
		settings.apply(global.Settings, warnf)
	}
	if project != nil {
		settings.apply(project.Settings, warnf)
	}

	inserts := mergeInserts(global, project, warnf)

	view := &View{Settings: settings, Inserts: inserts}
	if !settings.Enabled {
		return view, warnings
	}

	var globalSubs, projectSubs []Subscription
	if global != nil && !settings.DisableGlobal {
		globalSubs = decodeSubscriptions(global.Subscriptions, "global")
	}
	if project != nil {
		projectSubs = decodeSubscriptions(project.Subscriptions, "project")
	}

	// Separate project subs into override directives vs active subs.
	var overridesSpecific [][3]string
	overridesInsert := map[string]bool{}
	var activeProject []Subscription
	for _, sub := range projectSubs {
		if sub.Enabled != nil && !*sub.Enabled {
			if sub.Insert != "" {
				if sub.On != "" && sub.When != "" {
					overridesSpecific = append(overridesSpecific, [3]string{sub.Insert, sub.On, sub.When})
				} else {
					overridesInsert[sub.Insert] = true
				}
			}
			// Self-disabled subscription without insert: skip silently.
			continue
		}
		activeProject = append(activeProject, sub)
	}

	var filteredGlobal []Subscription
	for _, s := range globalSubs {
		if !s.IsEnabled() {
			continue
		}
		if overridesInsert[s.Insert] {
			continue
		}
		tuple := [3]string{s.Insert, s.On, s.Timing()}
		if containsTuple(overridesSpecific, tuple) {
			continue
		}
		filteredGlobal = append(filteredGlobal, s)
	}

	allSubs := append(filteredGlobal, activeProject...)

	// Deduplicate by identity tuple, walking in reverse so the later
	// (project) occurrence wins, then restore original order.
	seen := map[[3]string]string{}
	var deduped []Subscription
	for i := len(allSubs) - 1; i >= 0; i-- {
		s := allSubs[i]
		key := s.identity()
		winnerScope, dup := seen[key]
		if !dup {
			seen[key] = s.Scope
			deduped = append(deduped, s)
			continue
		}
		if winnerScope == s.Scope {
			warnf("[skill-bus] WARNING: duplicate subscription (%s -> %s [%s]) in %s scope — deduplicating", key[0], key[1], key[2], s.Scope)
		} else {
			warnf("[skill-bus] WARNING: duplicate subscription (%s -> %s [%s]) — using %s version", key[0], key[1], key[2], winnerScope)
		}
	}
	for i, j := 0, len(deduped)-1; i < j; i, j = i+1, j-1 {
		deduped[i], deduped[j] = deduped[j], deduped[i]
	}

	view.Subscriptions = deduped
	return view, warnings
}

// OverriddenGlobals returns the enabled global subscriptions that project
// override directives filter out of the merged view. Merge drops them;
// the list command still shows them as "disabled in project".
func OverriddenGlobals(global, project *File) []Subscription {
	if global == nil || project == nil {
		return nil
	}

	var specific [][3]string
	broad := map[string]bool{}
	for _, sub := range decodeSubscriptions(project.Subscriptions, "project") {
		if sub.Enabled == nil || *sub.Enabled || sub.Insert == "" {
			continue
		}
		if sub.On != "" && sub.When != "" {
			specific = append(specific, [3]string{sub.Insert, sub.On, sub.When})
		} else {
			broad[sub.Insert] = true
		}
	}

	var overridden []Subscription
	for _, s := range decodeSubscriptions(global.Subscriptions, "global") {
		if !s.IsEnabled() {
			continue
		}
		if broad[s.Insert] || containsTuple(specific, [3]string{s.Insert, s.On, s.Timing()}) {
			overridden = append(overridden, s)
		}
	}
	return overridden
}

// DropLegacy removes subscriptions using the retired 'inject' format. The
// returned warning is empty when nothing was dropped.
func DropLegacy(subs []Subscription) ([]Subscription, string) {
	kept := subs[:0:0]
	dropped := 0
	for _, s := range subs {
		if s.IsLegacy() {
			dropped++
			continue
		}
		kept = append(kept, s)
	}
	if dropped == 0 {
		return subs, ""
	}
	return kept, fmt.Sprintf("[skill-bus] ERROR: %d subscription(s) use old 'inject' format — skipped. Migrate: extract inject text into an insert, replace 'inject' with 'insert' reference.", dropped)
}

func mergeInserts(global, project *File, warnf func(string, ...any)) map[string]Insert {
	merged := map[string]Insert{}
	globalNames := map[string]bool{}

	if global != nil {
		for name, raw := range global.Inserts {
			ins, ok := decodeInsert(name, raw, warnf)
			if !ok {
				continue
			}
			merged[name] = ins
			globalNames[name] = true
		}
	}
	if project != nil {
		for name, raw := range project.Inserts {
			ins, ok := decodeInsert(name, raw, warnf)
			if !ok {
				continue
			}
			if globalNames[name] {
				warnf("[skill-bus] INFO: insert '%s' defined in both scopes — using project version", name)
			}
			merged[name] = ins
		}
	}
	return merged
}

func decodeInsert(name string, raw json.RawMessage, warnf func(string, ...any)) (Insert, bool) {
	var ins Insert
	if err := json.Unmarshal(raw, &ins); err != nil {
		warnf("[skill-bus] WARNING: insert '%s' has invalid shape — ignoring", name)
		return Insert{}, false
	}
	return ins, true
}

func decodeSubscriptions(raws []json.RawMessage, scope string) []Subscription {
	var subs []Subscription
	for _, raw := range raws {
		var s Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			// Non-object or wrong-shaped entry, skip.
			continue
		}
		s.Scope = scope
		subs = append(subs, s)
	}
	return subs
}

func containsTuple(tuples [][3]string, t [3]string) bool {
	for _, candidate := range tuples {
		if candidate == t {
			return true
		}
	}
	return false
}

// apply overlays one raw settings block onto s. Each field is typed
// independently; a wrong-typed value keeps the current value and warns.
func (s *Settings) apply(raw map[string]any, warnf func(string, ...any)) {
	if raw == nil {
		return
	}
	applyBool(raw, "enabled", &s.Enabled, warnf)
	applyInt(raw, "maxMatchesPerSkill", &s.MaxMatchesPerSkill, 1, warnf)
	applyBool(raw, "showConsoleEcho", &s.ShowConsoleEcho, warnf)
	applyBool(raw, "disableGlobal", &s.DisableGlobal, warnf)
	applyBool(raw, "monitorSlashCommands", &s.MonitorSlashCommands, warnf)
	applyBool(raw, "completionHooks", &s.CompletionHooks, warnf)
	applyBool(raw, "showConditionSkips", &s.ShowConditionSkips, warnf)
	applyBool(raw, "telemetry", &s.Telemetry, warnf)
	applyBool(raw, "observeUnmatched", &s.ObserveUnmatched, warnf)
	applyString(raw, "telemetryPath", &s.TelemetryPath, warnf)
	applyInt(raw, "maxLogSizeKB", &s.MaxLogSizeKB, 0, warnf)
}

func applyBool(raw map[string]any, name string, dst *bool, warnf func(string, ...any)) {
	v, present := raw[name]
	if !present {
		return
	}
	b, ok := v.(bool)
	if !ok {
		warnf("[skill-bus] WARNING: setting '%s' must be a boolean, got %T — using default", name, v)
		return
	}
	*dst = b
}

func applyInt(raw map[string]any, name string, dst *int, minimum int, warnf func(string, ...any)) {
	v, present := raw[name]
	if !present {
		return
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		warnf("[skill-bus] WARNING: setting '%s' must be an integer, got %v — using default", name, v)
		return
	}
	n := int(f)
	if n < minimum {
		warnf("[skill-bus] WARNING: setting '%s' must be at least %d, got %d — using default", name, minimum, n)
		return
	}
	*dst = n
}

func applyString(raw map[string]any, name string, dst *string, warnf func(string, ...any)) {
	v, present := raw[name]
	if !present {
		return
	}
	str, ok := v.(string)
	if !ok {
		warnf("[skill-bus] WARNING: setting '%s' must be a string, got %T — using default", name, v)
		return
	}
	*dst = str
}
