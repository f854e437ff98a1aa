package taskqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/osa/runtime/pkg/models"
)

// SQLStore implements Store over database/sql, portable across the
// embedded sqlite backend and the optional Postgres backend. Lease runs in
// one transaction: it selects the oldest pending task id, then updates that
// row only while its status is still pending, so two concurrent leases
// never claim the same task; a call that loses that race returns ok=false.
type SQLStore struct {
	db      *sql.DB
	dialect string  // "sqlite" or "postgres"
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	payload BLOB,
	status TEXT NOT NULL,
	leased_until TIMESTAMP,
	leased_by TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	result BLOB,
	error TEXT,
	created_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_agent_status_created
	ON tasks (agent_id, status, created_at);
`

// Enqueue inserts a new pending task.
func (s *SQLStore) Enqueue(ctx context.Context, taskID, agentID string, payload []byte, opts EnqueueOptions) (models.QueuedTask, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	task := models.QueuedTask{
		TaskID: taskID,
		AgentID: agentID,
		Payload: payload,
		Status: models.TaskPending,
		MaxAttempts: maxAttempts,
		CreatedAt: time.Now().UTC(),
	}
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}

	query := fmt.Sprintf(`
		INSERT INTO tasks (task_id, agent_id, payload, status, attempts, max_attempts, created_at)
		VALUES (%s, %s, %s, %s, 0, %s, %s)
	`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	_, err := s.db.ExecContext(ctx, query, task.TaskID, task.AgentID, task.Payload, string(task.Status), task.MaxAttempts, task.CreatedAt)
	if err != nil {
		return models.QueuedTask{}, fmt.Errorf("enqueue task: %w", err)
	}
	return task, nil
}

// Lease atomically claims the oldest pending task for agentID.
func (s *SQLStore) Lease(ctx context.Context, agentID string, duration time.Duration) (models.QueuedTask, bool, error) {
	leasedUntil := time.Now().UTC().Add(duration)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.QueuedTask{}, false, fmt.Errorf("begin lease tx: %w", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf(`
		SELECT task_id FROM tasks
		WHERE agent_id = %s AND status = %s
		ORDER BY created_at ASC
		LIMIT 1
	`, s.ph(1), s.ph(2))
	var taskID string
	if err := tx.QueryRowContext(ctx, selectQuery, agentID, string(models.TaskPending)).Scan(&taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.QueuedTask{}, false, nil
		}
		return models.QueuedTask{}, false, fmt.Errorf("select pending task: %w", err)
	}

	updateQuery := fmt.Sprintf(`
		UPDATE tasks SET status = %s, leased_until = %s, leased_by = %s
		WHERE task_id = %s AND status = %s
	`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	res, err := tx.ExecContext(ctx, updateQuery, string(models.TaskLeased), leasedUntil, agentID, taskID, string(models.TaskPending))
	if err != nil {
		return models.QueuedTask{}, false, fmt.Errorf("lease task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.QueuedTask{}, false, fmt.Errorf("lease rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to a concurrent lease call for the same agent.
		return models.QueuedTask{}, false, nil
	}

	task, found, err := s.getTx(ctx, tx, taskID)
	if err != nil {
		return models.QueuedTask{}, false, err
	}
	if !found {
		return models.QueuedTask{}, false, nil
	}
	if err := tx.Commit(); err != nil {
		return models.QueuedTask{}, false, fmt.Errorf("commit lease tx: %w", err)
	}
	return task, true, nil
}

// Complete marks taskID completed with result.
func (s *SQLStore) Complete(ctx context.Context, taskID string, result []byte) error {
	query := fmt.Sprintf(`
		UPDATE tasks SET status = %s, result = %s, completed_at = %s
		WHERE task_id = %s
	`, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	_, err := s.db.ExecContext(ctx, query, string(models.TaskCompleted), json.RawMessage(result), time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail increments attempts; if attempts < max_attempts the task reverts to
// pending, else it becomes terminally failed.
func (s *SQLStore) Fail(ctx context.Context, taskID string, errMsg string) error {
	task, found, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("task %s not found", taskID)
	}

	attempts := task.Attempts + 1
	status := models.TaskPending
	if attempts >= task.MaxAttempts {
		status = models.TaskFailed
	}

	query := fmt.Sprintf(`
		UPDATE tasks SET status = %s, attempts = %s, error = %s, leased_until = NULL, leased_by = NULL
		WHERE task_id = %s
	`, s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	_, err = s.db.ExecContext(ctx, query, string(status), attempts, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Get retrieves one task by id.
func (s *SQLStore) Get(ctx context.Context, taskID string) (models.QueuedTask, bool, error) {
	query := fmt.Sprintf(`
		SELECT task_id, agent_id, payload, status, leased_until, leased_by, attempts, max_attempts, result, error, created_at, completed_at
		FROM tasks WHERE task_id = %s
	`, s.ph(1))
	return scanOne(s.db.QueryRowContext(ctx, query, taskID))
}

func (s *SQLStore) getTx(ctx context.Context, tx *sql.Tx, taskID string) (models.QueuedTask, bool, error) {
	query := fmt.Sprintf(`
		SELECT task_id, agent_id, payload, status, leased_until, leased_by, attempts, max_attempts, result, error, created_at, completed_at
		FROM tasks WHERE task_id = %s
	`, s.ph(1))
	return scanOne(tx.QueryRowContext(ctx, query, taskID))
}

func scanOne(row *sql.Row) (models.QueuedTask, bool, error) {
	var (
		task        models.QueuedTask
		status      string
		leasedUntil sql.NullTime
		leasedBy    sql.NullString
		result      []byte
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&task.TaskID, &task.AgentID, &task.Payload, &status, &leasedUntil, &leasedBy,
		&task.Attempts, &task.MaxAttempts, &result, &errMsg, &task.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.QueuedTask{}, false, nil
		}
		return models.QueuedTask{}, false, fmt.Errorf("scan task: %w", err)
	}
	task.Status = models.TaskStatus(status)
	if leasedUntil.Valid {
		t := leasedUntil.Time
		task.LeasedUntil = &t
	}
	task.LeasedBy = leasedBy.String
	if len(result) > 0 {
		task.Result = json.RawMessage(result)
	}
	task.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return task, true, nil
}

// List returns tasks matching filter, oldest first.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]models.QueuedTask, error) {
	query := `
		SELECT task_id, agent_id, payload, status, leased_until, leased_by, attempts, max_attempts, result, error, created_at, completed_at
		FROM tasks WHERE 1=1
	`
	var args []any
	n := 1
	if filter.AgentID != "" {
		query += fmt.Sprintf(" AND agent_id = %s", s.ph(n))
		args = append(args, filter.AgentID)
		n++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = %s", s.ph(n))
		args = append(args, string(filter.Status))
		n++
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.QueuedTask
	for rows.Next() {
		var (
			task        models.QueuedTask
			status      string
			leasedUntil sql.NullTime
			leasedBy    sql.NullString
			result      []byte
			errMsg      sql.NullString
			completedAt sql.NullTime
		)
		if err := rows.Scan(&task.TaskID, &task.AgentID, &task.Payload, &status, &leasedUntil, &leasedBy,
			&task.Attempts, &task.MaxAttempts, &result, &errMsg, &task.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan listed task: %w", err)
		}
		task.Status = models.TaskStatus(status)
		if leasedUntil.Valid {
			t := leasedUntil.Time
			task.LeasedUntil = &t
		}
		task.LeasedBy = leasedBy.String
		if len(result) > 0 {
			task.Result = json.RawMessage(result)
		}
		task.Error = errMsg.String
		if completedAt.Valid {
			t := completedAt.Time
			task.CompletedAt = &t
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ReapExpired reverts every expired lease to pending without touching
// attempts.
func (s *SQLStore) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	query := fmt.Sprintf(`
		UPDATE tasks SET status = %s, leased_until = NULL, leased_by = NULL
		WHERE status = %s AND leased_until < %s
	`, s.ph(1), s.ph(2), s.ph(3))
	res, err := s.db.ExecContext(ctx, query, string(models.TaskPending), string(models.TaskLeased), now)
	if err != nil {
		return 0, fmt.Errorf("reap expired leases: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap rows affected: %w", err)
	}
	return int(affected), nil
}
