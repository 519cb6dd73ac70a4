package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"subforge/internal/config"
)

// Window is the rolling period a daily limit covers.
const Window = 24 * time.Hour

// AnonymousUser is the user id applied when a caller supplies none.
const AnonymousUser = "anonymous"

// Decision is the answer to "may this user start another job".
type Decision struct {
	Allowed         bool       `json:"allowed"`
	Unlimited       bool       `json:"unlimited,omitempty"`
	Limit           int        `json:"limit"`
	Remaining       int        `json:"remaining"`
	NextAvailableAt *time.Time `json:"nextAvailableAt,omitempty"`
}

// Checker answers quota questions before a job is accepted.
type Checker interface {
	CanProcessMore(ctx context.Context, userID string) (Decision, error)
}

// Recorder records a completed job against a user's allowance.
type Recorder interface {
	RecordUsage(ctx context.Context, userID, jobID string) error
}

// Policy is both halves of a quota implementation.
type Policy interface {
	Checker
	Recorder
}

// UsageStore is the persistence a Ledger needs.
type UsageStore interface {
	RecordUsage(ctx context.Context, userID, jobID string, at time.Time) error
	UsageSince(ctx context.Context, userID string, since time.Time) (int, error)
	OldestUsageSince(ctx context.Context, userID string, since time.Time) (time.Time, bool, error)
}

// New returns a Ledger when quota.daily_job_limit is positive, Unlimited otherwise.
func New(cfg *config.Config, store UsageStore) Policy {
	if cfg == nil || cfg.Quota.DailyJobLimit <= 0 || store == nil {
		return Unlimited{}
	}
	return NewLedger(store, cfg.Quota.DailyJobLimit)
}

// NormalizeUser trims userID and substitutes AnonymousUser for blanks.
func NormalizeUser(userID string) string {
	if trimmed := strings.TrimSpace(userID); trimmed != "" {
		return trimmed
	}
	return AnonymousUser
}

// Unlimited allows every request.
type Unlimited struct{}

// CanProcessMore always allows.
func (Unlimited) CanProcessMore(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Unlimited: true}, nil
}

// RecordUsage is a no-op.
func (Unlimited) RecordUsage(context.Context, string, string) error { return nil }

// Ledger enforces a rolling per-user job limit.
type Ledger struct {
	store UsageStore
	limit int
	now   func() time.Time
}

// NewLedger constructs a ledger allowing limit jobs per user per Window.
func NewLedger(store UsageStore, limit int) *Ledger {
	return &Ledger{store: store, limit: limit, now: time.Now}
}

// CanProcessMore counts the user's jobs inside the window.
func (l *Ledger) CanProcessMore(ctx context.Context, userID string) (Decision, error) {
	userID = NormalizeUser(userID)
	since := l.now().Add(-Window)
	used, err := l.store.UsageSince(ctx, userID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("quota check for %s: %w", userID, err)
	}
	remaining := l.limit - used
	if remaining > 0 {
		return Decision{Allowed: true, Limit: l.limit, Remaining: remaining}, nil
	}

	decision := Decision{Allowed: false, Limit: l.limit, Remaining: 0}
	oldest, ok, err := l.store.OldestUsageSince(ctx, userID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("quota check for %s: %w", userID, err)
	}
	if ok {
		next := oldest.Add(Window).UTC()
		decision.NextAvailableAt = &next
	}
	return decision, nil
}

// RecordUsage appends one job to the user's ledger.
func (l *Ledger) RecordUsage(ctx context.Context, userID, jobID string) error {
	return l.store.RecordUsage(ctx, NormalizeUser(userID), jobID, l.now())
}
