package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/utils"
)

// CreateJob inserts a new background job row, defaulting to Running per
// §4.11 (a job is created as it starts work, not beforehand).
func (s *Store) CreateJob(j *models.BackgroundJob) error {
	if j.ID == "" {
		j.ID = utils.GenerateNanoIDWithPrefix("job", 16)
	}
	now := utils.Now()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = string(enum.JobStatusRunning)
	}
	if j.MaxRetries == 0 {
		j.MaxRetries = 3
	}
	result, _ := json.Marshal(j.Result)
	checkpoint, _ := json.Marshal(j.ResumeCheckpoint)

	_, err := s.db.Exec(`
		INSERT INTO background_jobs (
			id, account_email, instruction, status, result, error_msg,
			resumable, resume_checkpoint, retry_count, max_retries, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, j.ID, j.AccountEmail, j.Instruction, j.Status, string(result), j.ErrorMsg,
		j.Resumable, string(checkpoint), j.RetryCount, j.MaxRetries, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cache: create job: %w", err)
	}
	return nil
}

// UpdateJobCheckpoint persists a resumable job's progress so a restart can
// pick up where it left off instead of restarting the whole instruction.
func (s *Store) UpdateJobCheckpoint(id string, checkpoint models.JSONMap) error {
	b, _ := json.Marshal(checkpoint)
	_, err := s.db.Exec(`UPDATE background_jobs SET resume_checkpoint = ?, updated_at = ? WHERE id = ?`,
		string(b), utils.Now(), id)
	return err
}

func (s *Store) CompleteJob(id string, result models.JSONMap) error {
	b, _ := json.Marshal(result)
	now := utils.Now()
	_, err := s.db.Exec(`
		UPDATE background_jobs SET status = ?, result = ?, updated_at = ?, completed_at = ? WHERE id = ?
	`, string(enum.JobStatusCompleted), string(b), now, now, id)
	return err
}

func (s *Store) FailJob(id, errMsg string) error {
	now := utils.Now()
	_, err := s.db.Exec(`
		UPDATE background_jobs SET status = ?, error_msg = ?, updated_at = ?, completed_at = ? WHERE id = ?
	`, string(enum.JobStatusFailed), errMsg, now, now, id)
	return err
}

// CancelJob force-transitions a job to Cancelled regardless of its current
// status, for the MCP cancel_job tool (§4.11 lists Cancelled as a terminal
// state reachable from Running, parallel to FailJob/CompleteJob).
func (s *Store) CancelJob(id string) error {
	now := utils.Now()
	_, err := s.db.Exec(`
		UPDATE background_jobs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ?
	`, string(enum.JobStatusCancelled), now, now, id)
	return err
}

// ReapNonResumableRunningJobs force-transitions any job still marked
// Running to Failed on process start: a Running row surviving to the next
// startup means the process that owned it died mid-job, and only
// Resumable jobs are safe to continue (§4.11 restart-reconciliation rule).
func (s *Store) ReapNonResumableRunningJobs() (int64, error) {
	res, err := s.db.Exec(`
		UPDATE background_jobs SET status = ?, error_msg = ?, updated_at = ?, completed_at = ?
		WHERE status = ? AND resumable = 0
	`, string(enum.JobStatusFailed), "process restarted before job completed", utils.Now(), utils.Now(), string(enum.JobStatusRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReapOldTerminalJobs deletes jobs that reached a terminal state
// (Completed/Failed/Cancelled) more than olderThan ago, per §4.11's "old
// terminal jobs are reaped after N days" rule. Running jobs are never
// touched by this call regardless of age.
func (s *Store) ReapOldTerminalJobs(olderThan time.Duration) (int64, error) {
	cutoff := utils.Now().Add(-olderThan)
	res, err := s.db.Exec(`
		DELETE FROM background_jobs
		WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
	`, string(enum.JobStatusCompleted), string(enum.JobStatusFailed), string(enum.JobStatusCancelled), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResumableRunningJobs lists jobs left Running across a restart that are
// safe for the caller to resume from their checkpoint.
func (s *Store) ResumableRunningJobs() ([]*models.BackgroundJob, error) {
	rows, err := s.db.Query(jobSelect+` WHERE status = ? AND resumable = 1`, string(enum.JobStatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) GetJob(id string) (*models.BackgroundJob, error) {
	row := s.db.QueryRow(jobSelect+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs lists jobs for an account (every account when accountEmail is
// empty), optionally filtered by status, with limit/offset pagination, per
// original_source/src/dashboard/services/jobs.rs's
// status-filter-plus-limit/offset listing.
func (s *Store) ListJobs(accountEmail string, status enum.JobStatus, limit, offset int) ([]*models.BackgroundJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := jobSelect + ` WHERE 1 = 1`
	args := []interface{}{}
	if accountEmail != "" {
		query += ` AND account_email = ?`
		args = append(args, accountEmail)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

const jobSelect = `
SELECT id, account_email, instruction, status, result, error_msg,
       resumable, resume_checkpoint, retry_count, max_retries, created_at, updated_at, completed_at
FROM background_jobs
`

func scanJob(row *sql.Row) (*models.BackgroundJob, error) {
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJobRow(r scannable) (*models.BackgroundJob, error) {
	var j models.BackgroundJob
	var result, checkpoint string
	var completedAt sql.NullTime
	if err := r.Scan(
		&j.ID, &j.AccountEmail, &j.Instruction, &j.Status, &result, &j.ErrorMsg,
		&j.Resumable, &checkpoint, &j.RetryCount, &j.MaxRetries, &j.CreatedAt, &j.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(result), &j.Result)
	_ = json.Unmarshal([]byte(checkpoint), &j.ResumeCheckpoint)
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*models.BackgroundJob, error) {
	var out []*models.BackgroundJob
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
