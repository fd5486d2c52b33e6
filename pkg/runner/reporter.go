package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/muesli/termenv"
)

// Reporter presents a run as it happens.
type Reporter interface {
	// Event is called for every executor event, possibly concurrently.
	Event(ctx context.Context, e domain.Event)
	// Finish is called once with the final run state.
	Finish(ctx context.Context, s *domain.FlowRunState) error
}

// ContentRenderer transforms markdown before it is printed (glamour in the
// CLI). Rendering failures fall back to the raw text.
type ContentRenderer func(string) (string, error)

// TextReporter prints one line per event, coloured when w is a terminal,
// and a markdown summary at the end.
type TextReporter struct {
	mu       sync.Mutex
	out      *termenv.Output
	renderer ContentRenderer
	verbose  bool
}

// TextReporterOption configures a TextReporter.
type TextReporterOption func(*TextReporter)

// WithRenderer renders the final summary.
func WithRenderer(r ContentRenderer) TextReporterOption {
	return func(t *TextReporter) {
		t.renderer = r
	}
}

// WithVerbose also prints step starts and mesh rounds.
func WithVerbose(v bool) TextReporterOption {
	return func(t *TextReporter) {
		t.verbose = v
	}
}

// NewTextReporter creates a reporter writing to w.
func NewTextReporter(w io.Writer, opts ...TextReporterOption) *TextReporter {
	t := &TextReporter{out: termenv.NewOutput(w)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TextReporter) color(s, c string) string {
	return t.out.String(s).Foreground(t.out.Color(c)).String()
}

func name(e domain.Event) string {
	if e.Label != "" {
		return e.Label
	}
	return e.NodeID
}

func (t *TextReporter) Event(_ context.Context, e domain.Event) {
	var line string
	switch e.Type {
	case domain.EventRunStart:
		line = t.color("▶ run "+e.RunID, "12")
	case domain.EventStepStart:
		if !t.verbose {
			return
		}
		line = fmt.Sprintf("  … %s [%s]", name(e), e.Kind)
	case domain.EventStepProgress:
		if !t.verbose {
			return
		}
		line = fmt.Sprintf("  ↻ %s round %d: %s", name(e), e.Round, e.Preview)
	case domain.EventStepComplete:
		line = fmt.Sprintf("  %s %s %s", t.color("✓", "2"), name(e), t.color(fmt.Sprintf("(%dms)", e.DurationMs), "8"))
		if e.Preview != "" {
			line += " " + oneLine(e.Preview)
		}
	case domain.EventStepError:
		line = fmt.Sprintf("  %s %s: %s", t.color("✗", "1"), name(e), e.Error)
	case domain.EventRunPaused:
		if e.NodeID != "" {
			line = t.color("⏸ paused before "+name(e), "3")
		} else {
			line = t.color("⏸ paused", "3")
		}
	case domain.EventRunResumed:
		line = t.color("▶ resumed", "12")
	case domain.EventRunAborted:
		line = t.color("■ run aborted", "1")
	case domain.EventRunComplete:
		line = t.color("■ run complete", "12")
	default:
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

func (t *TextReporter) Finish(_ context.Context, s *domain.FlowRunState) error {
	if s == nil {
		return nil
	}
	summary := Summary(s)
	if t.renderer != nil {
		if rendered, err := t.renderer(summary); err == nil {
			summary = rendered
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, strings.TrimRight(summary, "\n"))
	return err
}

// Summary renders a run as markdown: status line, then a table of nodes in
// completion order followed by nodes that never finished.
func Summary(s *domain.FlowRunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Run %s: %s\n\n", s.RunID, s.Status)
	if s.Aborted {
		b.WriteString("Aborted by request.\n\n")
	}
	if !s.StartedAt.IsZero() && !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}

	b.WriteString("| Node | Status | Duration | Output |\n|---|---|---|---|\n")
	seen := make(map[string]bool)
	for _, entry := range s.OutputLog {
		seen[entry.NodeID] = true
		label := entry.Label
		if label == "" {
			label = entry.NodeID
		}
		fmt.Fprintf(&b, "| %s | %s | %dms | %s |\n", cell(label), entry.Status, entry.DurationMs, cell(domain.Preview(entry.Output)))
	}
	var rest []string
	for id := range s.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		fmt.Fprintf(&b, "| %s | %s | | |\n", cell(id), s.Nodes[id].Status)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", `\|`)
}

// JSONReporter writes NDJSON: one object per event, then the final state
// as {"type":"run-state","state":{...}}.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONReporter creates a reporter writing to w.
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w)}
}

func (j *JSONReporter) Event(_ context.Context, e domain.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(e)
}

func (j *JSONReporter) Finish(_ context.Context, s *domain.FlowRunState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(struct {
		Type  string               `json:"type"`
		State *domain.FlowRunState `json:"state"`
	}{Type: "run-state", State: s})
}
