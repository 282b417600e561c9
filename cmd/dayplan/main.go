package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dayplan/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(time.Now).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

type cli struct {
	cfgPath string
	now     func() time.Time
}

func newRootCmd(now func() time.Time) *cobra.Command {
	c := &cli{now: now}
	root := &cobra.Command{
		Use:   "dayplan",
		Short: "Plan the day from recurring tasks",
		Long: `dayplan expands recurring tasks into a concrete day: it resolves
dependency chains, moves missed required tasks to now, and reports hourly
load, conflicts and free time.

Example:
  $ dayplan task add Gym --at "7:00 AM" --duration 45 --every daily --required
  $ dayplan schedule
  $ dayplan done Gym`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defCfg := os.Getenv("DAYPLAN_CONFIG")
	if defCfg == "" {
		defCfg = "./dayplan.yaml"
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", defCfg, "path to config file (YAML or JSON)")

	root.AddCommand(
		c.scheduleCmd(),
		c.taskCmd(),
		c.doneCmd(),
		c.pruneCmd(),
		c.watchCmd(),
	)
	return root
}

// open builds the app for one command; the caller closes it.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), c.cfgPath, app.WithClock(c.now))
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.YellowString("Warning:"), err)
	}
}
