// Package analytics reports anonymous CLI usage. Reporting is opt-in
// via SKILL_BUS_ANALYTICS and never covers the hidden hook subtree, so
// the hot dispatch path stays free of network calls.
package analytics

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// posthogKey is set at build time for release builds.
	posthogKey = "phc_skillbus_dev"
	// posthogHost is set at build time for release builds.
	posthogHost = "https://us.i.posthog.com"
)

// OptInEnvVar enables usage reporting when set to a non-empty value.
const OptInEnvVar = "SKILL_BUS_ANALYTICS"

// networkDeadline bounds every network stage of a report. The CLI must
// exit on the user's schedule, not the collector's.
const networkDeadline = 150 * time.Millisecond

// Reporter records which collaborator commands get used.
type Reporter interface {
	Command(cmd *cobra.Command)
	Close()
}

// disabledReporter is returned when the user has not opted in.
type disabledReporter struct{}

func (disabledReporter) Command(_ *cobra.Command) {}
func (disabledReporter) Close()                   {}

// quietLogger drops PostHog's own logging; timeouts are routine here.
type quietLogger struct{}

func (quietLogger) Logf(_ string, _ ...interface{})   {}
func (quietLogger) Debugf(_ string, _ ...interface{}) {}
func (quietLogger) Warnf(_ string, _ ...interface{})  {}
func (quietLogger) Errorf(_ string, _ ...interface{}) {}

// usageReporter ships command events to PostHog.
type usageReporter struct {
	ph         posthog.Client
	distinctID string
}

// NewReporter builds the usage reporter for this invocation. Any failure
// to set one up silently disables reporting; analytics must never cost
// the user an error message.
//
//nolint:ireturn // reporter choice depends on the opt-in env var
func NewReporter(version string) Reporter {
	if os.Getenv(OptInEnvVar) == "" {
		return disabledReporter{}
	}

	id, err := machineid.ProtectedID("skillbus")
	if err != nil {
		return disabledReporter{}
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: networkDeadline}).DialContext,
		TLSHandshakeTimeout:   networkDeadline,
		ResponseHeaderTimeout: networkDeadline,
	}
	ph, err := posthog.NewWithConfig(posthogKey, posthog.Config{
		Endpoint:           posthogHost,
		ShutdownTimeout:    networkDeadline,
		BatchUploadTimeout: networkDeadline,
		Transport:          transport,
		Logger:             quietLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("platform", runtime.GOOS+"/"+runtime.GOARCH),
	})
	if err != nil {
		return disabledReporter{}
	}

	return &usageReporter{ph: ph, distinctID: id}
}

// Command reports one collaborator command run. The event carries the
// command name, the flag names used (never values), and the config scope
// when one was chosen, so we can see which scope people actually edit.
func (r *usageReporter) Command(cmd *cobra.Command) {
	if r.ph == nil {
		return
	}
	name, ok := reportableName(cmd)
	if !ok {
		return
	}

	var flagNames []string
	scope := ""
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flagNames = append(flagNames, f.Name)
		if f.Name == "scope" {
			scope = f.Value.String()
		}
	})

	props := posthog.NewProperties().Set("command", name)
	if len(flagNames) > 0 {
		props.Set("flags", strings.Join(flagNames, ","))
	}
	if scope != "" {
		props.Set("scope", scope)
	}

	//nolint:errcheck // best-effort; a dropped event is fine
	_ = r.ph.Enqueue(posthog.Capture{
		DistinctId: r.distinctID,
		Event:      "skillbus_command",
		Properties: props,
	})
}

// Close flushes whatever fits inside the network deadline.
func (r *usageReporter) Close() {
	if r.ph != nil {
		_ = r.ph.Close()
	}
}

// reportableName returns the command's name relative to the root, or
// false for the hidden hook subtree (host-driven, not a user action).
func reportableName(cmd *cobra.Command) (string, bool) {
	if cmd == nil {
		return "", false
	}
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		if c.Hidden {
			return "", false
		}
		if c.HasParent() {
			parts = append([]string{c.Name()}, parts...)
		}
	}
	if len(parts) == 0 {
		return "root", true
	}
	return strings.Join(parts, " "), true
}
