package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"dayplan/internal/schedule"
)

var ErrNoSchedule = errors.New("report: nil schedule")

// Options controls the terminal view.
type Options struct {
	// Color forces ANSI colors on or off regardless of the terminal.
	Color bool
	// ShowEmpty prints every hour instead of collapsing free runs into gaps.
	ShowEmpty bool
}

type palette struct {
	header, hour, done, required, overdue, conflict, muted func(a ...any) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		if !enabled {
			return fmt.Sprint
		}
		c := color.New(attrs...)
		c.EnableColor()
		return c.SprintFunc()
	}
	return palette{
		header:   mk(color.FgCyan, color.Bold),
		hour:     mk(color.Bold),
		done:     mk(color.FgGreen),
		required: mk(color.FgYellow),
		overdue:  mk(color.FgRed, color.Bold),
		conflict: mk(color.FgRed),
		muted:    mk(color.FgHiBlack),
	}
}

// Text writes a human view of ds: busy hours with their tasks, free gaps,
// warnings and a one-line summary.
func Text(w io.Writer, ds *schedule.DaySchedule, opts Options) error {
	if ds == nil {
		return ErrNoSchedule
	}
	p := newPalette(opts.Color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", p.header("Schedule for "+longDate(ds.Date)))

	gapAt := map[int]schedule.Gap{}
	for _, g := range ds.Gaps {
		gapAt[g.StartHour] = g
	}
	for h := 0; h < len(ds.Slots); h++ {
		slot := ds.Slots[h]
		if len(slot.Tasks) == 0 && !opts.ShowEmpty {
			if g, ok := gapAt[h]; ok {
				fmt.Fprintf(&b, "  %s\n", p.muted(fmt.Sprintf("%s - %s  free (%s)",
					schedule.HourLabel(g.StartHour), schedule.HourLabel(g.EndHour), plural(g.Duration, "hour"))))
				h = g.EndHour
			}
			continue
		}
		util := fmt.Sprintf("%3.0f%%", slot.UtilizationPercent)
		if slot.HasConflict {
			util = p.conflict(util + " !")
		}
		fmt.Fprintf(&b, "  %s  %s  %s\n", p.hour(fmt.Sprintf("%5s", schedule.HourLabel(slot.Hour))), util, placements(slot.Tasks, p))
	}

	if warns := Warnings(ds); len(warns) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.header("Warnings"))
		for _, line := range warns {
			fmt.Fprintf(&b, "  - %s\n", p.overdue(line))
		}
	}

	fmt.Fprintf(&b, "\n%s\n", Summary(ds.Stats))
	_, err := io.WriteString(w, b.String())
	return err
}

func placements(ps []schedule.Placement, p palette) string {
	parts := make([]string, 0, len(ps))
	for _, pl := range ps {
		s := fmt.Sprintf("%s (%s - %s)", pl.Name, pl.StartTime, pl.EndTime)
		switch {
		case pl.Completed:
			s = p.done(s + " done")
		case pl.Overdue:
			s = p.overdue(s + " overdue")
		case pl.Required:
			s = p.required(s + " *")
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Summary is the one-line stats footer.
func Summary(st schedule.Stats) string {
	return fmt.Sprintf("%s, %d done (%.1f%%), %d required, %d overdue; busy %s, free %s, %s over capacity",
		plural(st.TotalTasks, "task"), st.CompletedTasks, st.CompletionRate, st.RequiredTasks, st.OverdueCount,
		plural(st.BusyHours, "hour"), plural(st.FreeHours, "hour"), plural(st.ConflictHours, "hour"))
}

// Warnings returns the user-facing problems of the day: overlapping hours
// and required tasks moved by catch-up.
func Warnings(ds *schedule.DaySchedule) []string {
	if ds == nil {
		return nil
	}
	out := make([]string, 0, len(ds.Conflicts)+ds.Stats.OverdueCount)
	for _, c := range ds.Conflicts {
		out = append(out, ConflictLine(c))
	}
	for _, in := range ds.Instances {
		if in.Overdue {
			out = append(out, OverdueLine(in))
		}
	}
	return out
}

func ConflictLine(c schedule.Conflict) string {
	return fmt.Sprintf("%d tasks overlap at %s", len(c.Tasks), schedule.HourLabel(c.Hour))
}

func OverdueLine(in schedule.Instance) string {
	return fmt.Sprintf("%s is overdue: planned %s, moved to %s", in.Name, in.OriginalTime, in.StartTime)
}

// UpcomingLine announces an instance that starts soon, relative to now.
func UpcomingLine(in schedule.Instance, start, now time.Time) string {
	return fmt.Sprintf("%s starts %s (%s)", in.Name, humanize.RelTime(start, now, "ago", "from now"), in.StartTime)
}

// Digest is a compact plain-text rendering for chat messages.
func Digest(ds *schedule.DaySchedule) string {
	if ds == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %s\n", longDate(ds.Date))
	if len(ds.Instances) == 0 {
		b.WriteString("Nothing scheduled.\n")
	}
	for _, in := range ds.Instances {
		mark := "-"
		switch {
		case in.Completed:
			mark = "✓"
		case in.Required:
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s %s (%d min)\n", mark, in.StartTime, in.Name, in.Duration)
	}
	for _, line := range Warnings(ds) {
		fmt.Fprintf(&b, "! %s\n", line)
	}
	b.WriteString(Summary(ds.Stats))
	return b.String()
}

// JSON writes v indented. DaySchedule marshals deterministically, so the
// output is stable for identical inputs.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func longDate(key string) string {
	d, err := schedule.ParseDateKey(key, time.UTC)
	if err != nil {
		return key
	}
	return d.Format("Monday, January 2 2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(int64(n)) + " " + unit + "s"
}
