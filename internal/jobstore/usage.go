package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordUsage appends one accepted job to the user's usage ledger.
func (s *Store) RecordUsage(ctx context.Context, userID, jobID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO usage (user_id, job_id, recorded_at) VALUES (?, ?, ?)`,
		userID, jobID, formatTime(at),
	); err != nil {
		return fmt.Errorf("record usage for %s: %w", userID, err)
	}
	return nil
}

// UsageSince counts ledger entries for userID recorded at or after since.
func (s *Store) UsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(*) FROM usage WHERE user_id = ? AND recorded_at >= ?`,
		userID, formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage for %s: %w", userID, err)
	}
	return count, nil
}

// OldestUsageSince returns the earliest ledger entry at or after since.
func (s *Store) OldestUsageSince(ctx context.Context, userID string, since time.Time) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT MIN(recorded_at) FROM usage WHERE user_id = ? AND recorded_at >= ?`,
		userID, formatTime(since),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest usage for %s: %w", userID, err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	at, err := parseTimeString(raw.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse usage time %q: %w", raw.String, err)
	}
	return at, true, nil
}

// PruneUsage drops ledger entries recorded before cutoff.
func (s *Store) PruneUsage(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM usage WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}
