package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/osa/runtime/internal/taskqueue"
	"github.com/osa/runtime/pkg/models"
)

func writeSessionLog(t *testing.T, dir, sessionID string, lines []string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, sessionID+".jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write session log: %v", err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

func TestStaleSessionScannerFlagsOldLogs(t *testing.T) {
	dir := t.TempDir()
	writeSessionLog(t, dir, "old", []string{`{"role":"user","content":"hi"}`}, time.Now().Add(-3*time.Hour))
	writeSessionLog(t, dir, "fresh", []string{`{"role":"user","content":"hi"}`}, time.Now())

	scanner := StaleSessionScanner(dir, 2*time.Hour)
	alerts, err := scanner(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Metadata["session_id"] != "old" {
		t.Fatalf("expected exactly the old session flagged, got %+v", alerts)
	}
}

func TestUnansweredQuestionScannerFlagsTrailingQuestion(t *testing.T) {
	dir := t.TempDir()
	writeSessionLog(t, dir, "pending", []string{
		`{"role":"assistant","content":"here's the summary"}`,
		`{"role":"user","content":"does that look right?"}`,
	}, time.Now())
	writeSessionLog(t, dir, "answered", []string{
		`{"role":"user","content":"does that look right?"}`,
		`{"role":"assistant","content":"yes"}`,
	}, time.Now())

	scanner := UnansweredQuestionScanner(dir)
	alerts, err := scanner(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Metadata["session_id"] != "pending" {
		t.Fatalf("expected only the pending session flagged, got %+v", alerts)
	}
}

func TestFollowUpScannerMatchesReminderPhrase(t *testing.T) {
	dir := t.TempDir()
	writeSessionLog(t, dir, "s1", []string{`{"role":"assistant","content":"I'll follow up tomorrow with the results."}`}, time.Now())
	writeSessionLog(t, dir, "s2", []string{`{"role":"assistant","content":"all done here"}`}, time.Now())

	scanner := FollowUpScanner(dir, nil)
	alerts, err := scanner(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Metadata["session_id"] != "s1" {
		t.Fatalf("expected only s1 flagged, got %+v", alerts)
	}
}

func TestFailedTaskScannerSurfacesTerminalFailures(t *testing.T) {
	store, err := taskqueue.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "t1", "agent-a", nil, taskqueue.EnqueueOptions{MaxAttempts: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok, err := store.Lease(ctx, "agent-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lease: ok=%v err=%v", ok, err)
	}
	if err := store.Fail(ctx, task.TaskID, "provider unavailable"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	scanner := FailedTaskScanner(store)
	alerts, err := scanner(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Metadata["task_id"] != "t1" {
		t.Fatalf("expected the failed task flagged, got %+v", alerts)
	}
}

func TestMonitorIsolatesScannerFailures(t *testing.T) {
	failing := NamedScanner{Name: "broken", Scanner: func(ctx context.Context) ([]models.Alert, error) {
		return nil, errors.New("boom")
	}}
	working := NamedScanner{Name: "ok", Scanner: func(ctx context.Context) ([]models.Alert, error) {
		return []models.Alert{{Type: models.AlertSystemHealth, Message: "fine"}}, nil
	}}

	m := New(Config{Scanners: []NamedScanner{failing, working}})
	alerts := m.ScanNow(context.Background())
	if len(alerts) != 1 || alerts[0].Message != "fine" {
		t.Fatalf("expected only the working scanner's alert, got %+v", alerts)
	}
}

func TestMonitorEvictsOldestOnOverflow(t *testing.T) {
	callCount := 0
	scanner := NamedScanner{Name: "counter", Scanner: func(ctx context.Context) ([]models.Alert, error) {
		callCount++
		return []models.Alert{{Type: models.AlertSystemHealth, Message: "alert", Metadata: map[string]any{"n": callCount}}}, nil
	}}

	m := New(Config{Scanners: []NamedScanner{scanner}, MaxAlerts: 2})
	m.ScanNow(context.Background())
	m.ScanNow(context.Background())
	m.ScanNow(context.Background())

	alerts := m.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("expected ring buffer capped at 2, got %d", len(alerts))
	}
	if alerts[0].Metadata["n"] != 2 || alerts[1].Metadata["n"] != 3 {
		t.Fatalf("expected oldest evicted, got %+v", alerts)
	}
}

func TestMonitorPanicInScannerDoesNotAbortPass(t *testing.T) {
	panicking := NamedScanner{Name: "panics", Scanner: func(ctx context.Context) ([]models.Alert, error) {
		panic("scanner exploded")
	}}
	working := NamedScanner{Name: "ok", Scanner: func(ctx context.Context) ([]models.Alert, error) {
		return []models.Alert{{Type: models.AlertSystemHealth, Message: "fine"}}, nil
	}}

	m := New(Config{Scanners: []NamedScanner{panicking, working}})
	alerts := m.ScanNow(context.Background())
	if len(alerts) != 1 || alerts[0].Message != "fine" {
		t.Fatalf("expected the panic isolated and the working scanner's alert retained, got %+v", alerts)
	}
}
