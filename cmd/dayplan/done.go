package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dayplan/internal/schedule"
)

func (c *cli) doneCmd() *cobra.Command {
	var (
		date string
		undo bool
	)
	cmd := &cobra.Command{
		Use:   "done <task>",
		Short: "Mark a task done for a day",
		Long: `Mark a task (by id or name) done for --date, today by default.
Completion is per day; a daily task has to be marked again tomorrow.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			day := a.Now().In(a.Location())
			if date != "" {
				if day, err = schedule.ParseDateKey(date, a.Location()); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}
			t, changed, err := a.MarkDone(cmd.Context(), args[0], day, !undo)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			key := schedule.DateKey(day)
			switch {
			case !changed && undo:
				fmt.Fprintf(w, "%s was not done on %s\n", t.Name, key)
			case !changed:
				fmt.Fprintf(w, "%s already done on %s\n", t.Name, key)
			case undo:
				fmt.Fprintf(w, "%s %s reopened for %s\n", color.YellowString("↺"), t.Name, key)
			default:
				fmt.Fprintf(w, "%s %s done for %s\n", color.GreenString("✓"), t.Name, key)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the mark instead")
	return cmd
}
