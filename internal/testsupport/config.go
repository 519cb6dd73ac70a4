package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"subforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Engines default to fake credentials so validation passes without env vars.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Transcription.APIKey = "test-transcription-key"
	cfgVal.Translation.APIKey = "test-translation-key"
	cfgVal.Translation.Model = "test-model"
	cfgVal.Translation.RequestsPerSecond = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTranscriptionEndpoint points the openai transcription engine at url.
func WithTranscriptionEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.Engine = "openai"
		b.cfg.Transcription.BaseURL = url
	}
}

// WithTranslationEndpoint points the llm translation engine at url.
func WithTranslationEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Translation.Engine = "llm"
		b.cfg.Translation.BaseURL = url
	}
}

// WithoutTranslation disables the translation engine.
func WithoutTranslation() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Translation.Engine = "none"
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}
		PrependPath(b.t, binDir)
	}
}

// PrependPath puts dir at the front of PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// WriteScript writes an executable shell script named name into dir.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
