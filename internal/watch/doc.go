// Package watch is the long-running side of dayplan. It recomputes today's
// schedule on a cron spec and whenever watched files change, publishes the
// result on the event bus, and turns new problems (hours over capacity,
// overdue required tasks, tasks about to start) into notifications.
package watch
