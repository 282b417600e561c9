package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/schedule"
	logx "dayplan/pkg/logx"
)

type fakeSource struct {
	healthy bool
	ds      *schedule.DaySchedule
	at      time.Time
}

func (f *fakeSource) Healthy() bool { return f.healthy }
func (f *fakeSource) Current() (*schedule.DaySchedule, time.Time, bool) {
	return f.ds, f.at, f.ds != nil
}

func computed(t *testing.T) *fakeSource {
	t.Helper()
	eng := schedule.New(schedule.Config{Location: time.UTC}, logx.Nop())
	now := time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)
	ds, err := eng.CalculateDaySchedule(&schedule.Snapshot{Tasks: []schedule.Task{
		{ID: "gym", Name: "Gym", Time: "7:00 AM", Duration: 45, Frequency: schedule.FrequencyDaily, Required: true},
	}}, now, now)
	require.NoError(t, err)
	return &fakeSource{healthy: true, ds: ds, at: now}
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	h := New(Config{}, src, logx.Nop()).Handler(Config{})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	src.healthy = true
	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestScheduleEndpoint(t *testing.T) {
	t.Parallel()
	h := New(Config{}, &fakeSource{}, logx.Nop()).Handler(Config{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/schedule").Code)

	h = New(Config{}, computed(t), logx.Nop()).Handler(Config{})
	rec := get(t, h, "/schedule")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ComputedAt time.Time            `json:"computedAt"`
		Schedule   schedule.DaySchedule `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-10-19", body.Schedule.Date)
	require.Len(t, body.Schedule.Instances, 1)
	assert.True(t, body.Schedule.Instances[0].Overdue)

	rec = get(t, h, "/schedule?format=text")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Gym is overdue")
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	cfg := Config{Token: "s3cret"}
	h := New(cfg, computed(t), logx.Nop()).Handler(cfg)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/healthz?token=nope").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz?token=s3cret").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", "Authorization", "Bearer s3cret").Code)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	src := computed(t)
	assert.Equal(t, http.StatusNotFound, get(t, New(Config{}, src, logx.Nop()).Handler(Config{}), "/debug/pprof/").Code)
	assert.Equal(t, http.StatusOK, get(t, New(Config{}, src, logx.Nop()).Handler(Config{Pprof: true}), "/debug/pprof/").Code)
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:7070": true,
		"localhost:80":   true,
		"[::1]:7070":     true,
		":7070":          false,
		"0.0.0.0:7070":   false,
		"10.0.0.2:7070":  false,
		"garbage":        false,
	} {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, computed(t), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	var addr string
	require.Eventually(t, func() bool {
		addr = svc.Addr()
		return addr != ""
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)
	assert.Empty(t, svc.Addr())

	svc.Reconfigure(stopCtx, Config{Enabled: false})
	assert.Empty(t, svc.Addr())
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, computed(t), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, svc.Addr())
	svc.Stop(ctx)
}
