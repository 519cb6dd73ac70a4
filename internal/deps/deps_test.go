package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail %q", results[2].Detail)
	}
}

func TestPipelineRequirementsUvxOptionality(t *testing.T) {
	for _, tt := range []struct {
		engine   string
		optional bool
	}{
		{engine: "openai", optional: true},
		{engine: "whisperx", optional: false},
	} {
		reqs := PipelineRequirements("ffmpeg", "ffprobe", tt.engine)
		if len(reqs) != 3 {
			t.Fatalf("expected 3 requirements, got %d", len(reqs))
		}
		if reqs[2].Optional != tt.optional {
			t.Errorf("engine %s: uvx optional = %v, want %v", tt.engine, reqs[2].Optional, tt.optional)
		}
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "ffmpeg", Available: false},
		{Name: "uvx", Available: false, Optional: true},
		{Name: "ffprobe", Available: true},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "ffmpeg" {
		t.Fatalf("unexpected missing list %#v", missing)
	}
}
