package analytics

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestNewReporterDisabledByDefault(t *testing.T) {
	t.Setenv(OptInEnvVar, "")

	r := NewReporter("1.0.0")

	if _, ok := r.(disabledReporter); !ok {
		t.Error("reporting should be disabled unless opted in")
	}
}

func TestDisabledReporterMethods(_ *testing.T) {
	r := disabledReporter{}

	// Should not panic
	r.Command(nil)
	r.Command(&cobra.Command{Use: "test"})
	r.Close()
}

func TestReportableName(t *testing.T) {
	root := &cobra.Command{Use: "skillbus"}
	list := &cobra.Command{Use: "list"}
	root.AddCommand(list)

	name, ok := reportableName(list)
	if !ok || name != "list" {
		t.Errorf("got (%q, %v), want (\"list\", true)", name, ok)
	}

	name, ok = reportableName(root)
	if !ok || name != "root" {
		t.Errorf("got (%q, %v), want (\"root\", true)", name, ok)
	}

	if _, ok := reportableName(nil); ok {
		t.Error("nil command should not be reportable")
	}
}

func TestReportableNameSkipsHiddenSubtree(t *testing.T) {
	root := &cobra.Command{Use: "skillbus"}
	hooks := &cobra.Command{Use: "hooks", Hidden: true}
	leaf := &cobra.Command{Use: "pre-tool"}
	root.AddCommand(hooks)
	hooks.AddCommand(leaf)

	if _, ok := reportableName(hooks); ok {
		t.Error("hidden command should not be reportable")
	}
	if _, ok := reportableName(leaf); ok {
		t.Error("descendant of a hidden command should not be reportable")
	}
}

func TestUsageReporterNilInnerClient(_ *testing.T) {
	r := &usageReporter{distinctID: "test-id"}

	// nil posthog client: both methods are no-ops
	r.Command(&cobra.Command{Use: "list"})
	r.Close()
}
