package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"subforge/internal/api"
	"subforge/internal/daemon"
	"subforge/internal/logging"
	"subforge/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected daemon and workflow to report running, got %+v", status)
	}
	if status.Address == "" || status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected status %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestDaemonServesHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + d.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Workflow.Running {
		t.Fatal("health should report the running workflow")
	}
	names := map[string]bool{}
	for _, dep := range body.Dependencies {
		names[dep.Name] = true
	}
	for _, want := range []string{"Staging directory", "FFmpeg", "Artifact storage"} {
		if !names[want] {
			t.Fatalf("missing dependency %q in %+v", want, body.Dependencies)
		}
	}
}
