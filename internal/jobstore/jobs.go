package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a new job. Status defaults to pending and timestamps to now.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("jobstore: nil job")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("jobstore: job id is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.Stage == "" {
		job.Stage = "idle"
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (`+makePlaceholders(23)+`)`,
		job.ID,
		job.UserID,
		job.Source,
		job.SourceLanguage,
		job.TargetLanguage,
		job.Mode,
		string(job.Status),
		job.Stage,
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableString(job.ErrorKind),
		nullableString(job.ErrorStage),
		nullableString(job.ErrorMessage),
		nullableString(job.VideoURL),
		nullableString(job.SubtitleURL),
		nullableString(job.Transcription),
		nullableString(job.Translation),
		nullableString(job.DetectedLanguage),
		nullableString(job.Workspace),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		nullableTime(job.FinishedAt),
		nullableTime(job.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryJobs(ctx, query, args...)
}

// MarkRunning moves a pending job to running and records its workspace.
func (s *Store) MarkRunning(ctx context.Context, id, workspace string) error {
	return s.updateOne(ctx, id,
		`UPDATE jobs SET status = ?, workspace = ?, updated_at = ? WHERE id = ?`,
		string(StatusRunning), nullableString(workspace), formatTime(time.Now()), id,
	)
}

// UpdateProgress records the current stage and percentage. The stored
// percentage never decreases.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, percent float64, message string) error {
	return s.updateOne(ctx, id,
		`UPDATE jobs SET stage = ?, progress_percent = MAX(progress_percent, ?), progress_message = ?, updated_at = ? WHERE id = ?`,
		stage, percent, nullableString(message), formatTime(time.Now()), id,
	)
}

// MarkCompleted stores the job outcome and its artifact expiry.
func (s *Store) MarkCompleted(ctx context.Context, id string, outcome Outcome, expiresAt time.Time) error {
	now := formatTime(time.Now())
	return s.updateOne(ctx, id,
		`UPDATE jobs SET status = ?, stage = 'completed', progress_percent = 100, progress_message = NULL,
			video_url = ?, subtitle_url = ?, transcription = ?, translation = ?, detected_language = ?,
			error_kind = NULL, error_stage = NULL, error_message = NULL,
			updated_at = ?, finished_at = ?, expires_at = ? WHERE id = ?`,
		string(StatusCompleted),
		nullableString(outcome.VideoURL),
		nullableString(outcome.SubtitleURL),
		nullableString(outcome.Transcription),
		nullableString(outcome.Translation),
		nullableString(outcome.DetectedLanguage),
		now, now, formatTime(expiresAt), id,
	)
}

// MarkFailed stores the failure and when the record itself expires.
func (s *Store) MarkFailed(ctx context.Context, id string, failure Failure, expiresAt time.Time) error {
	now := formatTime(time.Now())
	return s.updateOne(ctx, id,
		`UPDATE jobs SET status = ?, stage = 'failed', error_kind = ?, error_stage = ?, error_message = ?,
			updated_at = ?, finished_at = ?, expires_at = ? WHERE id = ?`,
		string(StatusFailed),
		nullableString(failure.Kind),
		nullableString(failure.Stage),
		nullableString(failure.Message),
		now, now, formatTime(expiresAt), id,
	)
}

// Expired returns finished jobs whose expiry is at or before now.
func (s *Store) Expired(ctx context.Context, now time.Time) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
			WHERE status IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ?
			ORDER BY expires_at`,
		string(StatusCompleted), string(StatusFailed), formatTime(now),
	)
}

// Delete removes a job row.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.updateOne(ctx, id, `DELETE FROM jobs WHERE id = ?`, id)
}

// ResetInFlight fails every pending or running job. It runs at daemon start,
// when no worker can still own them.
func (s *Store) ResetInFlight(ctx context.Context, kind string, expiresAt time.Time) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_kind = ?, error_stage = stage, error_message = ?,
			updated_at = ?, finished_at = ?, expires_at = ? WHERE status IN (?, ?)`,
		string(StatusFailed), kind, DaemonStopReason, now, now, formatTime(expiresAt),
		string(StatusPending), string(StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns job counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func (s *Store) updateOne(ctx context.Context, id, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
