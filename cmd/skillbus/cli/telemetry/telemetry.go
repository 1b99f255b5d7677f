// Package telemetry appends dispatch events to a project-scoped JSONL log
// and reads them back for the stats command and the session-stats dynamic
// insert.
//
// The sink is strictly best-effort: every error is swallowed so a full
// disk or an unwritable directory can never break skill dispatch. The log
// is the only persistent state the dispatch path mutates.
package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillbus/cli/cmd/skillbus/cli/config"
	"github.com/skillbus/cli/cmd/skillbus/cli/jsonutil"
	"github.com/skillbus/cli/cmd/skillbus/cli/paths"
)

// sessionID groups events from one dispatch process. Each completion-chain
// link is its own process and therefore its own session.
var sessionID = newSessionID()

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// SessionID returns the per-process session identifier.
func SessionID() string {
	return sessionID
}

// tsLayout matches ISO-8601 with a numeric zone offset, e.g.
// 2026-08-06T14:03:11+0200.
const tsLayout = "2006-01-02T15:04:05-0700"

// Event is one telemetry record. Kind-specific fields are omitted when
// empty so the JSONL stays compact.
type Event struct {
	TS        string `json:"ts"`
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`

	Skill          string `json:"skill,omitempty"`
	Insert         string `json:"insert,omitempty"`
	Pattern        string `json:"pattern,omitempty"`
	Timing         string `json:"timing,omitempty"`
	Source         string `json:"source,omitempty"`
	List           string `json:"list,omitempty"`
	ConditionIndex *int   `json:"conditionIndex,omitempty"`
	Depth          int    `json:"depth,omitempty"`
}

// Sink writes events for one dispatch. A nil or disabled Sink is safe to
// call; every method becomes a no-op.
type Sink struct {
	path             string
	maxLogKB         int
	enabled          bool
	observeUnmatched bool
}

// NewSink builds a sink from the merged settings. When the telemetry
// setting is off the sink never writes.
func NewSink(cwd string, settings config.Settings) *Sink {
	return &Sink{
		path:             paths.ResolveTelemetryPath(cwd, settings.TelemetryPath),
		maxLogKB:         settings.MaxLogSizeKB,
		enabled:          settings.Telemetry,
		observeUnmatched: settings.ObserveUnmatched,
	}
}

// Match records a subscription firing.
func (s *Sink) Match(skill, insert, timing, source string) {
	s.write(Event{Event: "match", Skill: skill, Insert: insert, Timing: timing, Source: source})
}

// ConditionSkip records a pattern match whose conditions failed. list names
// which condition list failed ("insert" or "sub") and index the failing
// position within it; index -1 means the skip had no evaluable condition
// (missing CWD) and is recorded without an index.
func (s *Sink) ConditionSkip(skill, insert, pattern, source, list string, index int) {
	ev := Event{Event: "condition_skip", Skill: skill, Insert: insert, Pattern: pattern, Source: source, List: list}
	if index >= 0 {
		ev.ConditionIndex = &index
	}
	s.write(ev)
}

// NoMatch records a dispatch with no coverage. Requires both the telemetry
// and observeUnmatched settings.
func (s *Sink) NoMatch(skill, timing, source string) {
	if s == nil || !s.observeUnmatched {
		return
	}
	s.write(Event{Event: "no_match", Skill: skill, Timing: timing, Source: source})
}

// SkillComplete records a completion-signal dispatch.
func (s *Sink) SkillComplete(skill string, depth int) {
	s.write(Event{Event: "skill_complete", Skill: skill, Timing: "complete", Depth: depth})
}

func (s *Sink) write(ev Event) {
	if s == nil || !s.enabled {
		return
	}

	parent := dirOf(s.path)
	if parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return
		}
	}
	if s.maxLogKB > 0 {
		rotate(s.path, s.maxLogKB)
	}

	ev.TS = time.Now().Format(tsLayout)
	ev.SessionID = sessionID

	line, err := jsonutil.MarshalCompact(ev)
	if err != nil {
		return
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, os.PathSeparator)
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

// rotate truncates the log to its newest half once it exceeds maxKB. A
// single line larger than the threshold is kept as is. The
// read-then-rewrite is not atomic; concurrent rotations in the same
// project may lose events, which the reader tolerates.
func rotate(path string, maxKB int) {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= int64(maxKB)*1024 {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	lines := strings.SplitAfter(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	keep := lines[len(lines)/2:]
	if len(keep) == len(lines) {
		return
	}
	_ = os.WriteFile(path, []byte(strings.Join(keep, "")), 0o600)
}

// ReadOptions filter the events returned by Read.
type ReadOptions struct {
	// Session keeps only events with this session ID.
	Session string
	// Days keeps only events from the last N days. Zero disables the
	// filter. Events with unparseable timestamps are kept.
	Days int
}

// zoneColonRe normalizes a %z-style offset (+0000) so both colon and
// colonless forms parse.
var zoneColonRe = regexp.MustCompile(`([+-])(\d{2}):(\d{2})$`)

// Read parses the telemetry log at path. Malformed lines, including a
// truncated final line from a killed dispatch, are skipped. Unknown event
// kinds are returned untouched so future writers stay compatible.
func Read(path string, opts ReadOptions) []Event {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var cutoff time.Time
	if opts.Days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -opts.Days)
	}

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if opts.Session != "" && ev.SessionID != opts.Session {
			continue
		}
		if !cutoff.IsZero() && !keepByCutoff(ev.TS, cutoff) {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func keepByCutoff(ts string, cutoff time.Time) bool {
	parsed, err := time.Parse(tsLayout, ts)
	if err != nil {
		normalized := zoneColonRe.ReplaceAllString(ts, "$1$2$3")
		parsed, err = time.Parse(tsLayout, normalized)
	}
	if err != nil {
		return true
	}
	return !parsed.Before(cutoff)
}
