package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SlotPipe/internal/util"
)

// EnqueueJob inserts a new durable job. When dedupeKey is set and a queued or
// running job already carries it, the existing job's ID is returned instead.
func (s *PostgresStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	if dedupeKey != "" {
		var existing string
		err := s.db.QueryRow(
			`SELECT id FROM jobs WHERE dedupe_key = $1 AND status IN ('queued', 'running')`,
			dedupeKey,
		).Scan(&existing)
		if err == nil {
			slog.Debug("PostgresStore.EnqueueJob: dedupe hit", "kind", kind, "dedupe_key", dedupeKey, "existing", existing)
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
		 VALUES ($1, $2, $3, $4, 'queued', 0, 3, NULL, NULL, $5, $6, $7)`,
		id, kind, runAt, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug("PostgresStore.EnqueueJob: job enqueued", "id", id, "kind", kind, "run_at", runAt)
	return id, nil
}

// ClaimDueJobs atomically claims up to limit due jobs using SKIP LOCKED so
// multiple pollers never double-run a wave.
func (s *PostgresStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	rows, err := s.db.Query(
		`UPDATE jobs SET status = 'running', locked_at = $1, updated_at = $1
		 WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'queued' AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs failed: %w", err)
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
	return jobs, rows.Err()
}

// CompleteJob marks a job done.
func (s *PostgresStore) CompleteJob(id string) error {
	return s.setJobStatus(id, JobStatusDone)
}

// CancelJob marks a job canceled.
func (s *PostgresStore) CancelJob(id string) error {
	return s.setJobStatus(id, JobStatusCanceled)
}

func (s *PostgresStore) setJobStatus(id string, status JobStatus) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = $1, locked_at = NULL, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set job status failed: %w", err)
	}
	return nil
}

// FailJob records the failure and either reschedules the job or marks it
// permanently failed once attempts are exhausted.
func (s *PostgresStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	var attempt, maxAttempts int
	err := s.db.QueryRow(`SELECT attempt, max_attempts FROM jobs WHERE id = $1`, id).Scan(&attempt, &maxAttempts)
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
			`UPDATE jobs SET status = 'failed', attempt = $1, last_error = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
			attempt, errMsg, now, id,
		)
		if err != nil {
			return fmt.Errorf("fail job update: %w", err)
		}
		slog.Warn("PostgresStore.FailJob: job permanently failed", "id", id, "attempts", attempt, "error", errMsg)
		return nil
	}

	_, err = s.db.Exec(
		`UPDATE jobs SET status = 'queued', attempt = $1, last_error = $2, run_at = $3, locked_at = NULL, updated_at = $4 WHERE id = $5`,
		attempt, errMsg, nextRunAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail job requeue: %w", err)
	}
	return nil
}

// RequeueStaleRunningJobs resets running jobs whose lock predates staleBefore.
func (s *PostgresStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = $1
		 WHERE status = 'running' AND locked_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetJob returns a job by ID, or nil if not found.
func (s *PostgresStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}
