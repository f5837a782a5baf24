package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/testide/internal/status"
	"github.com/leapstack-labs/testide/pkg/core"
)

// RunEvent is one JSON line of run progress.
type RunEvent struct {
	Event     string        `json:"event"`
	RunID     string        `json:"run_id"`
	Kind      core.RunKind  `json:"kind,omitempty"`
	Phase     core.RunPhase `json:"phase,omitempty"`
	Targets   []string      `json:"targets,omitempty"`
	VersionID string        `json:"version_id,omitempty"`
	Status    core.Status   `json:"status,omitempty"`
	ElapsedMS *int64        `json:"elapsed_ms,omitempty"`
	Error     string        `json:"error,omitempty"`
	Passed    int           `json:"passed,omitempty"`
	Failed    int           `json:"failed,omitempty"`
	Total     int           `json:"total,omitempty"`
}

// FormatElapsed renders an aggregate time, "none" when nothing was measured.
func FormatElapsed(ms *int64) string {
	if ms == nil {
		return "none"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

// StatusLine writes one status-prefixed line.
func (r *Renderer) StatusLine(name string, st core.Status, detail string) {
	label := r.styles.Status(st).Render(fmt.Sprintf("%s %-9s", statusSymbol(st), st))
	if detail != "" {
		detail = "  " + r.styles.Muted.Render(detail)
	}
	r.Printf("%s %s%s\n", label, name, detail)
}

// Report renders an aggregated run as a file/test/version tree followed by
// its counts.
func (r *Renderer) Report(rep status.Report) error {
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(rep)
	}

	r.Header(1, fmt.Sprintf("%s run %s", rep.Kind, rep.RunID))
	if rep.Error != "" {
		r.Error(rep.Error)
		r.Printf("Phase: %s\n", rep.Phase)
		return nil
	}

	for _, f := range rep.Files {
		r.StatusLine(f.Name, f.Status, FormatElapsed(f.ElapsedMS))
		for _, t := range f.Tests {
			r.StatusLine("  "+t.Name, t.Status, FormatElapsed(t.ElapsedMS))
			for _, v := range t.Versions {
				r.StatusLine("    "+v.Name, v.Unit.Status, unitDetail(v.Unit))
			}
		}
	}

	r.Println("")
	summary := fmt.Sprintf("%d passed, %d failed, %d stopped, %d total (%s)",
		rep.Counts.Passed, rep.Counts.Failed, rep.Counts.Stopped, rep.Counts.Total, FormatElapsed(rep.ElapsedMS))
	switch rep.Status {
	case core.StatusSuccess:
		r.Success(summary)
	case core.StatusError:
		r.Println(r.styles.Error.Render("✗ " + summary))
	default:
		r.Println(summary)
	}
	if rep.CanRerunFailed {
		r.Muted("Use --failed-only to rerun the failed versions")
	}
	return nil
}

func unitDetail(u core.RunUnit) string {
	var parts []string
	if u.TimeTakenMS != nil {
		parts = append(parts, FormatElapsed(u.TimeTakenMS))
	}
	if u.Error != "" {
		parts = append(parts, firstLine(u.Error))
	}
	return strings.Join(parts, "  ")
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// History renders persisted runs, newest first.
func (r *Renderer) History(runs []*core.Run) error {
	if r.EffectiveMode() == ModeJSON {
		if runs == nil {
			runs = []*core.Run{}
		}
		return r.JSON(runs)
	}
	if len(runs) == 0 {
		r.Muted("No runs recorded")
		return nil
	}

	titleCaser := cases.Title(language.English)
	rows := make([]table.Row, 0, len(runs))
	for _, run := range runs {
		var passed, failed int
		for _, u := range run.Units {
			switch u.Status {
			case core.StatusSuccess:
				passed++
			case core.StatusError:
				failed++
			}
		}
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, table.Row{
			run.ID, titleCaser.String(humanize(string(run.Kind))), titleCaser.String(string(run.Phase)), run.StartedAt.Local().Format(time.DateTime),
			duration, passed, failed, len(run.Targets), firstLine(run.Error),
		})
	}
	r.Table(table.Row{"Run", "Kind", "Phase", "Started", "Duration", "Passed", "Failed", "Targets", "Error"}, rows)
	return nil
}
