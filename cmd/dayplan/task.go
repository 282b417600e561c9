package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dayplan/internal/report"
	"dayplan/internal/schedule"
)

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage recurring tasks",
	}
	cmd.AddCommand(c.taskAddCmd(), c.taskListCmd(), c.taskRemoveCmd(), c.taskImportCmd())
	return cmd
}

func (c *cli) taskAddCmd() *cobra.Command {
	var (
		t       schedule.Task
		every   string
		weekday string
		monthly string
		after   string
		buffer  int
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a task",
		Long: `Add a recurring task.

Examples:
  $ dayplan task add Gym --at "6:30 AM" --duration 60 --every weekly --weekday mon --required
  $ dayplan task add Shower --duration 15 --after Gym --buffer 0
  $ dayplan task add Rent --at 10:00 --every monthly --monthly 3-fri`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			t.Name = strings.Join(args, " ")
			t.Frequency = schedule.Frequency(strings.ToLower(every))
			if weekday != "" {
				wd, err := parseWeekday(weekday)
				if err != nil {
					return err
				}
				t.Weekday = schedule.IntPtr(int(wd))
			}
			if monthly != "" {
				p, err := parseMonthly(monthly)
				if err != nil {
					return err
				}
				t.MonthlyPattern = &p
			}
			if cmd.Flags().Changed("buffer") {
				t.BufferTime = schedule.IntPtr(buffer)
			}
			if after != "" {
				parent, err := a.FindTask(cmd.Context(), after)
				if err != nil {
					return fmt.Errorf("--after: %w", err)
				}
				t.DependsOn = parent.ID
			}

			created, err := a.AddTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Added %s (%s, %s)\n", color.GreenString("✓"), created.Name, created.ID, report.DescribeRecurrence(created))
			return nil
		},
	}
	cmd.Flags().StringVar(&t.Time, "at", "9:00 AM", `anchor time, "9:00 AM" or "21:30"`)
	cmd.Flags().IntVar(&t.Duration, "duration", 30, "minutes")
	cmd.Flags().StringVar(&every, "every", "daily", "once, daily, weekly or monthly")
	cmd.Flags().BoolVar(&t.Required, "required", false, "move to now when missed")
	cmd.Flags().StringVar(&t.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&weekday, "weekday", "", "weekly: day of week (mon, tuesday, 0-6)")
	cmd.Flags().StringVar(&monthly, "monthly", "", `monthly: "first", "last", day 1-31 or "<n>-<weekday>"`)
	cmd.Flags().StringVar(&after, "after", "", "start after this task (id or name)")
	cmd.Flags().IntVar(&buffer, "buffer", 0, "minutes between the parent's end and this task")
	return cmd
}

func (c *cli) taskListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ts, err := a.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return report.JSON(cmd.OutOrStdout(), ts)
			}
			if len(ts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			names := make(map[string]string, len(ts))
			for _, t := range ts {
				names[t.ID] = t.Name
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTIME\tMIN\tREPEATS\tAFTER")
			for _, t := range ts {
				name := t.Name
				if t.Required {
					name += " *"
				}
				at := t.Time
				parent := "-"
				if t.DependsOn != "" {
					at = "-"
					parent = names[t.DependsOn]
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", t.ID, name, at, t.Duration, report.DescribeRecurrence(t), parent)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a task; tasks that ran after it fall back to their own time",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			removed, released, err := a.RemoveTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s Removed %s\n", color.GreenString("✓"), removed.Name)
			for _, t := range released {
				fmt.Fprintf(w, "  %s now starts at %s\n", t.Name, t.Time)
			}
			return nil
		},
	}
}

func (c *cli) taskImportCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			added, err := a.ImportFile(cmd.Context(), args[0], replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %d tasks\n", color.GreenString("✓"), len(added))
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "make the file the whole task set")
	return cmd
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	if len(s) >= 3 {
		if wd, ok := weekdays[s[:3]]; ok {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// parseMonthly reads "first", "last", a day of month, or "<n>-<weekday>".
func parseMonthly(s string) (schedule.MonthlyPattern, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "first":
		return schedule.MonthlyPattern{Type: schedule.PatternFirst}, nil
	case "last":
		return schedule.MonthlyPattern{Type: schedule.PatternLast}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return schedule.MonthlyPattern{Type: schedule.PatternDate, Date: n}, nil
	}
	if occ, day, ok := strings.Cut(s, "-"); ok {
		n, err := strconv.Atoi(occ)
		if err != nil {
			return schedule.MonthlyPattern{}, fmt.Errorf("invalid monthly pattern %q", s)
		}
		wd, err := parseWeekday(day)
		if err != nil {
			return schedule.MonthlyPattern{}, err
		}
		return schedule.MonthlyPattern{Type: schedule.PatternWeekday, Weekday: int(wd), Occurrence: n}, nil
	}
	return schedule.MonthlyPattern{}, fmt.Errorf("invalid monthly pattern %q", s)
}
