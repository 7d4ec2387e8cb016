package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
)

func TestRunNowPassesClockTimeInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	fixed := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	hookLogger, hook := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())

	scheduler := New(loc, logrus.NewEntry(hookLogger), WithClock(func() time.Time { return fixed }), WithMetrics(m))

	var got time.Time
	task, err := scheduler.Add("refresh", "0 0 * * *", func(_ context.Context, now time.Time) error {
		got = now
		return nil
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := task.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow returned error: %v", err)
	}

	if !got.Equal(fixed) || got.Location() != loc {
		t.Fatalf("expected %v in %s, got %v", fixed, loc, got)
	}
	if value := testutil.ToFloat64(m.JobRuns.WithLabelValues("refresh", metrics.ResultSuccess)); value != 1 {
		t.Fatalf("expected one successful run, got %v", value)
	}

	entry := findLogEvent(hook.AllEntries(), "task_finished")
	if entry == nil {
		t.Fatalf("expected task_finished log entry")
	}
	if entry.Data["task"] != "refresh" || entry.Data["trigger"] != "manual" {
		t.Fatalf("unexpected task_finished fields %v", entry.Data)
	}
	if runID, _ := entry.Data["run_id"].(string); len(runID) != 36 {
		t.Fatalf("expected uuid run_id, got %v", entry.Data["run_id"])
	}
}

func TestRunNowReportsFailures(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	scheduler := New(time.UTC, logrus.NewEntry(hookLogger), WithMetrics(m))

	task, err := scheduler.Add("notify", "0 12 * * *", func(context.Context, time.Time) error {
		return errors.New("mongo unavailable")
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := task.RunNow(context.Background()); err == nil || !strings.Contains(err.Error(), "mongo unavailable") {
		t.Fatalf("expected run error, got %v", err)
	}
	if value := testutil.ToFloat64(m.JobRuns.WithLabelValues("notify", metrics.ResultFailure)); value != 1 {
		t.Fatalf("expected one failed run, got %v", value)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["event"] != "task_finished" {
		t.Fatalf("expected task_finished error entry, got %+v", entry)
	}
}

func TestPanickingRunIsReportedAsFailure(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	scheduler := New(time.UTC, logrus.NewEntry(hookLogger))

	task, err := scheduler.Add("panicky", "0 0 * * *", func(context.Context, time.Time) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	err = task.RunNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected manual run to return the panic as error, got %v", err)
	}

	// Run through the same wrapper chain the cron engine applies.
	job := cron.NewChain(cron.Recover(logging.NewCronLogger(logrus.NewEntry(hookLogger)))).Then(task)
	job.Run()

	failures := 0
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "task_finished" && entry.Level == logrus.ErrorLevel {
			failures++
			if entry.Data["task"] != "panicky" {
				t.Fatalf("expected task field panicky, got %v", entry.Data["task"])
			}
		}
	}
	if failures != 2 {
		t.Fatalf("expected both runs logged as failures, got %d", failures)
	}
}

func TestAddValidatesInput(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	scheduler := New(nil, logrus.NewEntry(hookLogger))
	noop := func(context.Context, time.Time) error { return nil }

	if _, err := scheduler.Add("bad", "not a spec", noop); err == nil || !strings.Contains(err.Error(), "schedule bad") {
		t.Fatalf("expected spec parse error, got %v", err)
	}
	if _, err := scheduler.Add("", "0 0 * * *", noop); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := scheduler.Add("nil", "0 0 * * *", nil); err == nil {
		t.Fatalf("expected error for nil run func")
	}

	var nilScheduler *Scheduler
	if _, err := nilScheduler.Add("x", "0 0 * * *", noop); err == nil {
		t.Fatalf("expected error for nil scheduler")
	}
}

func TestStartArmsTasksAndStopCancelsRunContext(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	scheduler := New(time.UTC, logrus.NewEntry(hookLogger))

	task, err := scheduler.Add("refresh", "0 0 * * *", func(context.Context, time.Time) error { return nil })
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if !task.Next().IsZero() {
		t.Fatalf("expected no next run before Start")
	}

	scheduler.Start(context.Background())
	next := task.Next()
	if next.IsZero() || next.Hour() != 0 || next.Minute() != 0 {
		t.Fatalf("expected next run at midnight, got %v", next)
	}
	if findLogEvent(hook.AllEntries(), "task_next_run") == nil {
		t.Fatalf("expected task_next_run log entry")
	}

	runCtx := scheduler.runContext()
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if runCtx.Err() == nil {
		t.Fatalf("expected run context to be cancelled after Stop")
	}
}

func findLogEvent(entries []*logrus.Entry, event string) *logrus.Entry {
	for _, entry := range entries {
		if entry.Data["event"] == event {
			return entry
		}
	}
	return nil
}
