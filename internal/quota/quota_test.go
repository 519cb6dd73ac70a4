package quota_test

import (
	"context"
	"testing"
	"time"

	"subforge/internal/quota"
	"subforge/internal/testsupport"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	var policy quota.Policy = quota.Unlimited{}
	decision, err := policy.CanProcessMore(context.Background(), "anyone")
	if err != nil {
		t.Fatalf("CanProcessMore failed: %v", err)
	}
	if !decision.Allowed || !decision.Unlimited {
		t.Fatalf("expected unlimited allow, got %#v", decision)
	}
	if err := policy.RecordUsage(context.Background(), "anyone", "job"); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
}

func TestNewPicksPolicyFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, ok := quota.New(cfg, store).(quota.Unlimited); !ok {
		t.Fatal("expected Unlimited when no daily limit is configured")
	}
	cfg.Quota.DailyJobLimit = 3
	if _, ok := quota.New(cfg, store).(*quota.Ledger); !ok {
		t.Fatal("expected Ledger when a daily limit is configured")
	}
}

func TestLedgerCountsAndDenies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	ledger := quota.NewLedger(store, 2)

	decision, err := ledger.CanProcessMore(ctx, "alice")
	if err != nil {
		t.Fatalf("CanProcessMore failed: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 2 || decision.Limit != 2 {
		t.Fatalf("unexpected fresh decision: %#v", decision)
	}

	for _, job := range []string{"j1", "j2"} {
		if err := ledger.RecordUsage(ctx, "alice", job); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}

	decision, err = ledger.CanProcessMore(ctx, "alice")
	if err != nil {
		t.Fatalf("CanProcessMore failed: %v", err)
	}
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("expected denial after limit, got %#v", decision)
	}
	if decision.NextAvailableAt == nil {
		t.Fatal("expected next available time on denial")
	}
	wait := time.Until(*decision.NextAvailableAt)
	if wait < 23*time.Hour || wait > quota.Window {
		t.Fatalf("unexpected next available wait %v", wait)
	}

	other, err := ledger.CanProcessMore(ctx, "bob")
	if err != nil {
		t.Fatalf("CanProcessMore failed: %v", err)
	}
	if !other.Allowed {
		t.Fatalf("limits must be per user, got %#v", other)
	}
}

func TestLedgerIgnoresUsageOutsideWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := store.RecordUsage(ctx, quota.AnonymousUser, "old", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	decision, err := quota.NewLedger(store, 1).CanProcessMore(ctx, "  ")
	if err != nil {
		t.Fatalf("CanProcessMore failed: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 1 {
		t.Fatalf("expected old usage to be ignored, got %#v", decision)
	}
}

func TestNormalizeUser(t *testing.T) {
	if got := quota.NormalizeUser(""); got != quota.AnonymousUser {
		t.Fatalf("expected anonymous, got %q", got)
	}
	if got := quota.NormalizeUser(" carol "); got != "carol" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
}
