package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/util"
)

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts,
	last_error, locked_at, dedupe_key, created_at, updated_at`

// EnqueueJob inserts a new durable job. When dedupeKey is set and a queued or
// running job already carries it, the existing job's ID is returned instead.
func (s *SQLiteStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existing string
		err := s.db.QueryRow(
			`SELECT id FROM jobs WHERE dedupe_key = ? AND status IN ('queued', 'running')`,
			dedupeKey,
		).Scan(&existing)
		if err == nil {
			slog.Debug("SQLiteStore.EnqueueJob: dedupe hit", "kind", kind, "dedupe_key", dedupeKey, "existing", existing)
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("dedupe lookup failed: %w", err)
		}
	}

	id := util.GenerateRandomID("job_", 32)
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts,
			last_error, locked_at, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, 3, NULL, NULL, ?, ?, ?)`,
		id, kind, runAt, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueJob: job enqueued", "id", id, "kind", kind, "run_at", runAt)
	return id, nil
}

// ClaimDueJobs marks up to limit due queued jobs as running and returns them.
// SQLite's single writer makes the select-then-update pair safe.
func (s *SQLiteStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	rows, err := s.db.Query(
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = 'queued' AND run_at <= ?
		 ORDER BY run_at LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim query failed: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range jobs {
		_, err := s.db.Exec(
			`UPDATE jobs SET status = 'running', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, jobs[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("claim update failed: %w", err)
		}
		jobs[i].Status = JobStatusRunning
		jobs[i].LockedAt = &now
	}
	return jobs, nil
}

// CompleteJob marks a job done.
func (s *SQLiteStore) CompleteJob(id string) error {
	return s.setJobStatus(id, JobStatusDone)
}

// CancelJob marks a job canceled.
func (s *SQLiteStore) CancelJob(id string) error {
	return s.setJobStatus(id, JobStatusCanceled)
}

func (s *SQLiteStore) setJobStatus(id string, status JobStatus) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set job status failed: %w", err)
	}
	return nil
}

// FailJob records the failure and either reschedules the job or marks it
// permanently failed once attempts are exhausted.
func (s *SQLiteStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	var attempt, maxAttempts int
	err := s.db.QueryRow(`SELECT attempt, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempt, &maxAttempts)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail job lookup: %w", err)
	}

	attempt++
	now := time.Now()
	if attempt >= maxAttempts {
		_, err = s.db.Exec(
			`UPDATE jobs SET status = 'failed', attempt = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempt, errMsg, now, id,
		)
		if err != nil {
			return fmt.Errorf("fail job update: %w", err)
		}
		slog.Warn("SQLiteStore.FailJob: job permanently failed", "id", id, "attempts", attempt, "error", errMsg)
		return nil
	}

	_, err = s.db.Exec(
		`UPDATE jobs SET status = 'queued', attempt = ?, last_error = ?, run_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		attempt, errMsg, nextRunAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail job requeue: %w", err)
	}
	return nil
}

// RequeueStaleRunningJobs resets running jobs whose lock predates staleBefore.
func (s *SQLiteStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = ?
		 WHERE status = 'running' AND locked_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetJob returns a job by ID, or nil if not found.
func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}
