package logging

import (
	"context"
)

// Context keys for logging values.
// Using private types to avoid key collisions.
type contextKey int

const (
	componentKey contextKey = iota
	skillKey
	timingKey
)

// WithComponent adds a component name to the context.
// Component names identify the subsystem generating logs (e.g., "dispatch",
// "merge", "telemetry").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithSkill adds the skill name being dispatched to the context.
func WithSkill(ctx context.Context, skill string) context.Context {
	return context.WithValue(ctx, skillKey, skill)
}

// WithTiming adds the dispatch timing (pre, post, complete) to the context.
func WithTiming(ctx context.Context, timing string) context.Context {
	return context.WithValue(ctx, timingKey, timing)
}

// ComponentFromContext extracts the component name from the context.
// Returns empty string if not set.
func ComponentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SkillFromContext extracts the skill name from the context.
// Returns empty string if not set.
func SkillFromContext(ctx context.Context) string {
	if v := ctx.Value(skillKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
