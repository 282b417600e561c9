// Package systemd reports service state to systemd through sd_notify.
// Outside a systemd unit (no $NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type Notifier struct {
	send     func(state string) (bool, error)
	interval func() (time.Duration, error)
}

func New() *Notifier {
	return &Notifier{
		send:     func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
	}
}

// Ready reports whether systemd received READY=1.
func (n *Notifier) Ready() (bool, error) { return n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() (bool, error) { return n.send(daemon.SdNotifyReloading) }

// Status sets the one-line status shown by systemctl status.
func (n *Notifier) Status(msg string) (bool, error) {
	msg = strings.ReplaceAll(strings.TrimSpace(msg), "\n", " ")
	return n.send("STATUS=" + msg)
}

// RunWatchdog pings the watchdog at half the configured interval until ctx
// ends. healthy is consulted before each ping; a false result skips it so
// systemd restarts a wedged daemon. Without WatchdogSec it returns at once.
func (n *Notifier) RunWatchdog(ctx context.Context, healthy func() bool) error {
	every, err := n.interval()
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := n.send(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
