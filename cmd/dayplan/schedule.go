package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dayplan/internal/report"
	"dayplan/internal/schedule"
)

func (c *cli) scheduleCmd() *cobra.Command {
	var (
		date, at  string
		days      int
		asJSON    bool
		useColor  bool
		showEmpty bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the hourly plan for a day",
		Long: `Compute the schedule for --date (today by default) and print busy hours,
free gaps, overlaps and overdue required tasks.

--at pretends the current time is the given clock time on that date, which
changes what counts as overdue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			loc := a.Location()
			now := a.Now().In(loc)
			from := now
			if date != "" {
				if from, err = schedule.ParseDateKey(date, loc); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			if at != "" {
				tod, err := schedule.ParseClock(at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				y, m, d := from.Date()
				now = time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc)
			}

			out, err := a.Schedule(cmd.Context(), from, now, days)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				if len(out) == 1 {
					return report.JSON(w, out[0])
				}
				return report.JSON(w, out)
			}
			for i, ds := range out {
				if i > 0 {
					fmt.Fprintln(w)
				}
				if err := report.Text(w, ds, report.Options{Color: useColor, ShowEmpty: showEmpty}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to plan, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&at, "at", "", `treat this clock time as now, e.g. "10:30 AM"`)
	cmd.Flags().IntVar(&days, "days", 1, "number of consecutive days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&useColor, "color", !color.NoColor, "colorize output")
	cmd.Flags().BoolVar(&showEmpty, "all", false, "print every hour instead of collapsing free time")
	return cmd
}
