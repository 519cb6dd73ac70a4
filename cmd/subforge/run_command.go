package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subforge/internal/artifacts"
	"subforge/internal/config"
	"subforge/internal/extract"
	"subforge/internal/fileutil"
	"subforge/internal/jobstore"
	"subforge/internal/language"
	"subforge/internal/logging"
	"subforge/internal/mux"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/workflow"
)

// componentOverrides replaces pipeline components for in-process runs. Tests
// set it to avoid invoking ffmpeg and remote engines.
var componentOverrides func(*pipeline.Components)

const localUser = "local"

type runOptions struct {
	source    string
	target    string
	mode      string
	outputDir string
	json      bool
	verbose   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file|url>",
		Short: "Subtitle one video in this process",
		Long: "Run the full pipeline (extract, transcribe, translate, format, embed) for a local file or\n" +
			"an http(s) URL without a daemon. The job is recorded in the shared job store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			user := ctx.flags.user
			if user == "" {
				user = localUser
			}
			return runLocalJob(cmd, cfg, user, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Source language (default pipeline.default_source_language)")
	cmd.Flags().StringVarP(&opts.target, "target", "t", language.Auto, "Target language (auto keeps the source language)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Embed mode: burn or soft (default pipeline.mode)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Copy the subtitled video and SRT into this directory")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Also write logs to stderr")
	return cmd
}

func runLocalJob(cmd *cobra.Command, cfg *config.Config, user, source string, opts runOptions) error {
	mode, err := mux.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	if strings.TrimSpace(opts.mode) == "" {
		mode = ""
	}
	src := extract.FromURL(source)
	if !isRemote(source) {
		abs, err := filepath.Abs(source)
		if err != nil {
			return fmt.Errorf("resolve source path: %w", err)
		}
		src = extract.FromFile(abs)
	}

	logger, err := cliLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	store, err := jobstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	arts, err := artifacts.New(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	if closer, ok := arts.(io.Closer); ok {
		defer closer.Close()
	}

	runtime := pipeline.NewRuntime(cfg, logger, pipeline.WithComponentOverrides(func(c *pipeline.Components) {
		c.Artifacts = arts
		if componentOverrides != nil {
			componentOverrides(c)
		}
	}))
	defer func() { _ = runtime.Shutdown(context.Background()) }()

	manager, err := workflow.NewManager(cfg, store, runtime, arts, logger)
	if err != nil {
		return err
	}

	var observer pipeline.Observer
	if !opts.json {
		observer = newProgressPrinter(cmd.ErrOrStderr())
	}
	result, err := manager.Process(runCtx, pipeline.Request{
		UserID:         user,
		Source:         src,
		SourceLanguage: opts.source,
		TargetLanguage: opts.target,
		Mode:           mode,
		Observer:       observer,
	})
	if err != nil {
		if opts.json {
			_, body := pipeline.NewErrorResponse(result.JobID, err)
			_ = writeJSON(cmd, body)
		}
		var qerr *workflow.QuotaError
		if errors.As(err, &qerr) && qerr.Decision.NextAvailableAt != nil {
			return fmt.Errorf("%w; next slot at %s", err, qerr.Decision.NextAvailableAt.Local().Format("2006-01-02 15:04"))
		}
		if hint := services.KindOf(err).Hint(); hint != "" {
			return fmt.Errorf("%w (%s)", err, hint)
		}
		return err
	}

	var copied []string
	if dir := strings.TrimSpace(opts.outputDir); dir != "" {
		if copied, err = copyOutputs(dir, result); err != nil {
			return err
		}
	}

	if opts.json {
		return writeJSON(cmd, pipeline.NewResponse(result))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderFields([][2]string{
		{"Job", result.JobID},
		{"Source language", result.SourceLanguage},
		{"Target language", result.TargetLanguage},
		{"Translated", yesNo(result.Translated)},
		{"Segments", fmt.Sprintf("%d", result.SegmentCount)},
		{"Mode", string(result.Mode)},
		{"Video", result.VideoURL},
		{"Subtitles", result.SubtitleURL},
		{"Elapsed", result.Elapsed.Round(time.Millisecond).String()},
	}))
	for _, path := range copied {
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	return nil
}

// copyOutputs copies the retained workspace outputs into dir.
func copyOutputs(dir string, result pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	var written []string
	for _, src := range []string{result.VideoPath, result.SubtitlePath} {
		if src == "" {
			continue
		}
		dst := filepath.Join(dir, result.JobID+"-"+filepath.Base(src))
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return written, fmt.Errorf("copy %s: %w", filepath.Base(src), err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// cliLogger writes to logs/subforge-cli.log, plus stderr when verbose.
func cliLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	path := filepath.Join(cfg.Paths.LogDir, "subforge-cli.log")
	outputs := []string{path}
	if verbose {
		outputs = append(outputs, "stderr")
	}
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: outputs,
	})
}
