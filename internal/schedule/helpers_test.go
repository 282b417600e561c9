package schedule

import (
	"bytes"
	"sync"
	"time"

	logx "dayplan/pkg/logx"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clockAt(date time.Time, h, m, s int) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, s, 0, time.UTC)
}

func newTestEngine() *Engine {
	return New(Config{Location: time.UTC}, logx.Nop())
}

// syncBuffer lets concurrent computations share one captured log.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newCapturingEngine() (*Engine, *syncBuffer) {
	buf := &syncBuffer{}
	return New(Config{Location: time.UTC}, logx.NewJSON(buf, "debug")), buf
}

func task(id, name, at string, dur int) Task {
	return Task{ID: id, Name: name, Time: at, Duration: dur, Frequency: FrequencyDaily}
}

func snapshotOf(tasks ...Task) *Snapshot {
	return &Snapshot{Tasks: tasks}
}
