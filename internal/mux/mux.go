package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"subforge/internal/config"
	"subforge/internal/language"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/toolexec"
)

const stageName = "muxing"

// Mode selects how subtitles are embedded.
type Mode string

const (
	ModeBurn Mode = "burn"
	ModeSoft Mode = "soft"
)

// ParseMode accepts "burn", "soft", or empty (burn).
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "burn", "hard":
		return ModeBurn, nil
	case "soft":
		return ModeSoft, nil
	default:
		return "", fmt.Errorf("unsupported subtitle mode %q (want burn or soft)", value)
	}
}

// Style is the burn-in appearance passed to libass as force_style.
type Style struct {
	FontName      string
	FontSize      int
	PrimaryColour string
	OutlineColour string
	Outline       int
	MarginV       int
}

// ForceStyle renders the ASS override string.
func (s Style) ForceStyle() string {
	parts := make([]string, 0, 6)
	if s.FontName != "" {
		parts = append(parts, "FontName="+s.FontName)
	}
	if s.FontSize > 0 {
		parts = append(parts, "FontSize="+strconv.Itoa(s.FontSize))
	}
	if s.PrimaryColour != "" {
		parts = append(parts, "PrimaryColour="+s.PrimaryColour)
	}
	if s.OutlineColour != "" {
		parts = append(parts, "OutlineColour="+s.OutlineColour)
	}
	parts = append(parts, "Outline="+strconv.Itoa(s.Outline))
	parts = append(parts, "MarginV="+strconv.Itoa(s.MarginV))
	return strings.Join(parts, ",")
}

// Encoder holds burn-mode re-encode settings.
type Encoder struct {
	VideoCodec   string
	CRF          int
	Preset       string
	AudioCodec   string
	AudioBitrate string
}

// Request describes one embed operation.
type Request struct {
	VideoPath    string
	SubtitlePath string
	OutputPath   string
	Mode         Mode
	// Language tags the soft subtitle stream.
	Language string
}

// Result reports the produced file.
type Result struct {
	OutputPath string
	SizeBytes  int64
	Mode       Mode
	Elapsed    time.Duration
}

// Muxer runs ffmpeg to embed subtitles.
type Muxer struct {
	ffmpeg  string
	style   Style
	encoder Encoder
	run     toolexec.RunFunc
	logger  *slog.Logger
}

// New constructs a Muxer from the burn configuration.
func New(cfg *config.Config, run toolexec.RunFunc, logger *slog.Logger) *Muxer {
	m := &Muxer{
		ffmpeg: "ffmpeg",
		encoder: Encoder{
			VideoCodec: "libx264", CRF: 23, Preset: "veryfast", AudioCodec: "aac", AudioBitrate: "160k",
		},
		run:    run,
		logger: logging.NewComponentLogger(logger, "mux"),
	}
	if cfg != nil {
		m.ffmpeg = cfg.FFmpegBinary()
		m.style = Style{
			FontName:      cfg.Burn.FontName,
			FontSize:      cfg.Burn.FontSize,
			PrimaryColour: cfg.Burn.PrimaryColour,
			OutlineColour: cfg.Burn.OutlineColour,
			Outline:       cfg.Burn.Outline,
			MarginV:       cfg.Burn.MarginV,
		}
		m.encoder = Encoder{
			VideoCodec:   cfg.Burn.VideoCodec,
			CRF:          cfg.Burn.CRF,
			Preset:       cfg.Burn.Preset,
			AudioCodec:   cfg.Burn.AudioCodec,
			AudioBitrate: cfg.Burn.AudioBitrate,
		}
	}
	return m
}

// Embed writes req.OutputPath containing the video with subtitles.
func (m *Muxer) Embed(ctx context.Context, req Request) (Result, error) {
	if m.run == nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "embed", "no command runner configured", nil)
	}
	if strings.TrimSpace(req.VideoPath) == "" || strings.TrimSpace(req.SubtitlePath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return Result{}, services.Fail(services.KindMuxFailed, stageName, "embed", "video, subtitle, and output paths are required", nil)
	}
	if req.Mode == "" {
		req.Mode = ModeBurn
	}
	if _, err := os.Stat(req.SubtitlePath); err != nil {
		return Result{}, services.Fail(services.KindMuxFailed, stageName, "embed", "subtitle file not found", err)
	}

	tmpPath := req.OutputPath + ".tmp"
	var args []string
	switch req.Mode {
	case ModeBurn:
		args = m.burnArgs(req.VideoPath, req.SubtitlePath, tmpPath)
	case ModeSoft:
		args = m.softArgs(req.VideoPath, req.SubtitlePath, tmpPath, req.Language)
	default:
		return Result{}, services.Fail(services.KindMuxFailed, stageName, "embed", fmt.Sprintf("unsupported mode %q", req.Mode), nil)
	}

	logger := logging.WithContext(ctx, m.logger)
	logger.Debug("executing ffmpeg mux",
		logging.String("mode", string(req.Mode)),
		logging.String("video_path", req.VideoPath),
		logging.String("subtitle_path", req.SubtitlePath),
	)
	start := time.Now()
	if err := m.run(ctx, m.ffmpeg, args...); err != nil {
		_ = os.Remove(tmpPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Fail(services.KindMuxFailed, stageName, string(req.Mode), "ffmpeg failed to embed subtitles", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return Result{}, services.Fail(services.KindMuxFailed, stageName, string(req.Mode), "ffmpeg did not produce an output file", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return Result{}, services.Fail(services.KindMuxFailed, stageName, string(req.Mode), "ffmpeg produced an empty output file", nil)
	}
	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, services.Fail(services.KindMuxFailed, stageName, string(req.Mode), "failed to finalize output file", err)
	}

	result := Result{OutputPath: req.OutputPath, SizeBytes: info.Size(), Mode: req.Mode, Elapsed: time.Since(start)}
	logger.Info("subtitles embedded",
		logging.String(logging.FieldEventType, "subtitle_mux_complete"),
		logging.String("mode", string(req.Mode)),
		logging.String("output_path", req.OutputPath),
		logging.Float64("size_mb", float64(result.SizeBytes)/1_048_576),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// BurnFilter returns the -vf value for burning subtitlePath.
func (m *Muxer) BurnFilter(subtitlePath string) string {
	filter := "subtitles=filename=" + EscapeFilterPath(subtitlePath)
	if style := m.style.ForceStyle(); style != "" {
		filter += ":force_style=" + escapeFilterValue(style)
	}
	return filter
}

func (m *Muxer) burnArgs(video, subtitles, output string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-vf", m.BurnFilter(subtitles),
		"-c:v", m.encoder.VideoCodec,
		"-crf", strconv.Itoa(m.encoder.CRF),
		"-preset", m.encoder.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", m.encoder.AudioCodec,
		"-b:a", m.encoder.AudioBitrate,
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

func (m *Muxer) softArgs(video, subtitles, output, lang string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", subtitles,
		"-map", "0:v",
		"-map", "0:a?",
		"-map", "1:0",
		"-c:v", "copy",
		"-c:a", "copy",
		"-c:s", "mov_text",
		"-metadata:s:s:0", "language=" + language.ToISO3(lang),
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}
