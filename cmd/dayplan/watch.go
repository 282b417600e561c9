package main

import (
	"github.com/spf13/cobra"

	"dayplan/pkg/systemd"
)

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the reminder daemon",
		Long: `Recompute today's schedule on the watch.refresh cron, send overlap,
overdue and upcoming reminders through the notifier, and a morning digest on
watch.digest. Reloads on changes to the config file, the task store and
watch.tasks_file. Under systemd it reports readiness and feeds the watchdog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return a.Watch(cmd.Context(), systemd.New())
		},
	}
}
