package toolexec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"subforge/internal/logging"
)

// RunFunc executes name with args. Stage packages accept a RunFunc so tests
// can substitute a fake.
type RunFunc func(ctx context.Context, name string, args ...string) error

// Error describes a failed tool invocation.
type Error struct {
	Command    string
	Stderr     string
	DetailPath string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	if e.DetailPath != "" {
		msg += " (see " + e.DetailPath + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Runner executes commands and records stderr of failures.
type Runner struct {
	logDir string
	env    []string
	logger *slog.Logger
}

// New returns a Runner writing failure logs below logDir. An empty logDir
// disables tool logs.
func New(logDir string, logger *slog.Logger, env ...string) *Runner {
	return &Runner{
		logDir: strings.TrimSpace(logDir),
		env:    append([]string(nil), env...),
		logger: logging.NewComponentLogger(logger, "toolexec"),
	}
}

// Run executes the command, discarding stdout.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	start := time.Now()
	r.logger.Debug("running tool",
		logging.String("command", name+" "+strings.Join(args, " ")),
	)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		raw := strings.TrimSpace(stderr.String())
		return &Error{
			Command:    name,
			Stderr:     raw,
			DetailPath: r.writeToolLog(name, args, raw),
			Err:        err,
		}
	}
	r.logger.Debug("tool finished",
		logging.String("tool", name),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (r *Runner) writeToolLog(name string, args []string, stderr string) string {
	if r.logDir == "" {
		return ""
	}
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		logging.WarnWithContext(r.logger, "failed to create tool log directory; tool stderr not captured", "tool_log_dir_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "ffmpeg failure detail is only in the error message"),
		)
		return ""
	}
	timestamp := time.Now().UTC().Format("20060102T150405.000Z")
	toolName := sanitizeToolName(name)
	if toolName == "" {
		toolName = "tool"
	}
	path := filepath.Join(r.logDir, fmt.Sprintf("%s-%s.log", timestamp, toolName))

	var payload strings.Builder
	payload.WriteString("command: ")
	payload.WriteString(strings.TrimSpace(strings.Join(append([]string{name}, args...), " ")))
	payload.WriteString("\nstderr:\n")
	payload.WriteString(stderr)
	payload.WriteByte('\n')

	if err := os.WriteFile(path, []byte(payload.String()), 0o644); err != nil {
		logging.WarnWithContext(r.logger, "failed to write tool log; stderr detail lost", "tool_log_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
		)
		return ""
	}
	return path
}

func sanitizeToolName(value string) string {
	value = strings.TrimSpace(filepath.Base(value))
	if value == "" || value == "." {
		return ""
	}
	value = strings.ToLower(value)
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	return strings.Trim(replacer.Replace(value), "-")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[idx+1:])
	}
	return s
}
