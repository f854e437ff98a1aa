package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/osa/runtime/internal/taskqueue"
	"github.com/osa/runtime/pkg/models"
)

// DefaultStaleThreshold is how long a session log may sit untouched
// before it is flagged stale.
const DefaultStaleThreshold = 2 * time.Hour

// StaleSessionScanner flags session logs whose file mtime exceeds
// threshold.
func StaleSessionScanner(sessionsDir string, threshold time.Duration) Scanner {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return func(ctx context.Context) ([]models.Alert, error) {
		entries, err := os.ReadDir(sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read sessions dir: %w", err)
		}

		now := time.Now()
		var alerts []models.Alert
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			age := now.Sub(info.ModTime())
			if age < threshold {
				continue
			}
			sessionID := strings.TrimSuffix(entry.Name(), ".jsonl")
			alerts = append(alerts, models.Alert{
				Type: models.AlertStaleSession,
				Severity: models.SeverityWarning,
				Message: fmt.Sprintf("session %s idle for %s", sessionID, age.Round(time.Minute)),
				DetectedAt: now,
				Metadata: map[string]any{"session_id": sessionID, "idle_seconds": int(age.Seconds())},
			})
		}
		return alerts, nil
	}
}

// sessionLine is the minimal shape of one newline-delimited JSON record
// in a `{session_id}.jsonl` log, sufficient to detect trailing questions.
type sessionLine struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnansweredQuestionScanner flags sessions whose last line is a user
// message ending in `?` with no assistant follow-up.
func UnansweredQuestionScanner(sessionsDir string) Scanner {
	return func(ctx context.Context) ([]models.Alert, error) {
		entries, err := os.ReadDir(sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read sessions dir: %w", err)
		}

		var alerts []models.Alert
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			last, ok, err := lastSessionLine(filepath.Join(sessionsDir, entry.Name()))
			if err != nil || !ok {
				continue
			}
			trimmed := strings.TrimSpace(last.Content)
			if last.Role != string(models.RoleUser) || !strings.HasSuffix(trimmed, "?") {
				continue
			}
			sessionID := strings.TrimSuffix(entry.Name(), ".jsonl")
			alerts = append(alerts, models.Alert{
				Type: models.AlertUnansweredQuestion,
				Severity: models.SeverityInfo,
				Message: fmt.Sprintf("session %s has an unanswered question", sessionID),
				DetectedAt: time.Now(),
				Metadata: map[string]any{"session_id": sessionID},
			})
		}
		return alerts, nil
	}
}

func lastSessionLine(path string) (sessionLine, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return sessionLine{}, false, err
	}
	defer f.Close()

	var last sessionLine
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var parsed sessionLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			continue
		}
		last = parsed
		found = true
	}
	return last, found, scanner.Err()
}

// FailedTaskScanner surfaces tasks that reached their terminal failed
// state, sourced from the Durable Task Queue (C9).
func FailedTaskScanner(store taskqueue.Store) Scanner {
	return func(ctx context.Context) ([]models.Alert, error) {
		tasks, err := store.List(ctx, taskqueue.ListFilter{Status: models.TaskFailed})
		if err != nil {
			return nil, fmt.Errorf("list failed tasks: %w", err)
		}
		alerts := make([]models.Alert, 0, len(tasks))
		for _, task := range tasks {
			alerts = append(alerts, models.Alert{
				Type: models.AlertFailedTask,
				Severity: models.SeverityCritical,
				Message: fmt.Sprintf("task %s failed after %d attempts: %s", task.TaskID, task.Attempts, task.Error),
				DetectedAt: time.Now(),
				Metadata: map[string]any{"task_id": task.TaskID, "agent_id": task.AgentID, "attempts": task.Attempts},
			})
		}
		return alerts, nil
	}
}

// DefaultDiskUsageThreshold flags a volume once it crosses this fraction
// used.
const DefaultDiskUsageThreshold = 0.90

// SystemHealthScanner checks disk usage of path via statfs, the
// equivalent of shelling out to `df`.
func SystemHealthScanner(path string, threshold float64) Scanner {
	if threshold <= 0 {
		threshold = DefaultDiskUsageThreshold
	}
	return func(ctx context.Context) ([]models.Alert, error) {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return nil, fmt.Errorf("statfs %s: %w", path, err)
		}
		total := stat.Blocks * uint64(stat.Bsize)
		free := stat.Bavail * uint64(stat.Bsize)
		if total == 0 {
			return nil, nil
		}
		used := float64(total-free) / float64(total)
		if used < threshold {
			return nil, nil
		}
		return []models.Alert{{
			Type: models.AlertSystemHealth,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf("disk usage at %s is %.1f%% of capacity", path, used*100),
			DetectedAt: time.Now(),
			Metadata: map[string]any{"path": path, "used_fraction": used},
		}}, nil
	}
}

// DefaultFollowUpPatterns are the regexes a scan looks for in session
// logs to detect phrases promising a future check-in.
var DefaultFollowUpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI'?ll (follow up|check back|get back to you|circle back)\b`),
	regexp.MustCompile(`(?i)\bremind (me|you) (to|about)\b`),
	regexp.MustCompile(`(?i)\bwill update you\b`),
}

// FollowUpScanner flags the most recent line of each session log that
// matches a follow-up reminder pattern.
func FollowUpScanner(sessionsDir string, patterns []*regexp.Regexp) Scanner {
	if len(patterns) == 0 {
		patterns = DefaultFollowUpPatterns
	}
	return func(ctx context.Context) ([]models.Alert, error) {
		entries, err := os.ReadDir(sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read sessions dir: %w", err)
		}

		var alerts []models.Alert
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				continue
			}
			last, ok, err := lastSessionLine(filepath.Join(sessionsDir, entry.Name()))
			if err != nil || !ok {
				continue
			}
			for _, pattern := range patterns {
				if !pattern.MatchString(last.Content) {
					continue
				}
				sessionID := strings.TrimSuffix(entry.Name(), ".jsonl")
				alerts = append(alerts, models.Alert{
					Type: models.AlertFollowUp,
					Severity: models.SeverityInfo,
					Message: fmt.Sprintf("session %s contains an outstanding follow-up commitment", sessionID),
					DetectedAt: time.Now(),
					Metadata: map[string]any{"session_id": sessionID},
				})
				break
			}
		}
		return alerts, nil
	}
}
