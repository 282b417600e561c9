package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

type chanSink chan string

func (c chanSink) Alert(_ context.Context, text string) error {
	c <- text
	return nil
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","caller":"a.go:1","message":"dependency cycle","task_id":"t1","task":"Gym"}` + "\n")
	got := formatAlert(line)
	want := "[WARN] dependency cycle\n- task=Gym\n- task_id=t1"
	if got != want {
		t.Fatalf("formatAlert() = %q, want %q", got, want)
	}

	if got := formatAlert([]byte("not json\n")); got != "not json" {
		t.Fatalf("formatAlert(raw) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.With(String("k", "v")).Error("dropped")
}

func TestJSONLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewJSON(&buf, "info").With(String("task_id", "t1"))
	l.Debug("hidden")
	l.Warn("shown", Int("hour", 9), Err(nil))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record written at info level: %s", out)
	}
	for _, want := range []string{`"task_id":"t1"`, `"hour":9`, `"message":"shown"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
	if strings.Contains(out, `"err"`) {
		t.Fatalf("nil error should be omitted: %s", out)
	}
}

func TestAlertsForwardWarnings(t *testing.T) {
	t.Parallel()
	sink := make(chanSink, 8)
	svc, log := New(Config{
		Level:  "debug",
		Alerts: AlertConfig{Enabled: true, MinLevel: "warn", RatePerSec: 1},
	}, sink)
	defer svc.Close()

	log.Info("not forwarded")
	log.Warn("overlap", String("hour", "9 AM"))
	log.Warn("rate limited")

	select {
	case got := <-sink:
		if !strings.HasPrefix(got, "[WARN] overlap") {
			t.Fatalf("alert = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
	select {
	case got := <-sink:
		t.Fatalf("unexpected second alert %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}
