// Package daemonrun hosts the foreground daemon loop shared by subforged and
// "subforge daemon".
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"subforge/internal/config"
	"subforge/internal/daemon"
	"subforge/internal/deps"
	"subforge/internal/logging"
	"subforge/internal/logs"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, receives the daemon after a successful Start.
	Ready func(*daemon.Daemon)
}

// Run starts the subforge daemon and blocks until cmdCtx ends or SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("subforge-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update subforge.log link: %v\n", err)
	}
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "subforged.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon close incomplete", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check server.bind and that no other subforged holds the state directory"),
		)
		return err
	}
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("subforge daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transcription_engine", cfg.Transcription.Engine),
		logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.String("translation_engine", cfg.Translation.Engine),
		logging.Bool("translation_key_present", strings.TrimSpace(cfg.Translation.APIKey) != ""),
		logging.String("storage_backend", cfg.Storage.Backend),
	}
	statuses := deps.CheckBinaries(deps.PipelineRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Transcription.Engine))
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, status := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required binary unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("binary", status.Command),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldErrorHint, "install it or set the binary path in config"),
			logging.String(logging.FieldImpact, "jobs fail at the stage that needs it"),
		)
	}
}
