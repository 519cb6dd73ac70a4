package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"subforge/internal/config"
	"subforge/internal/fileutil"
	"subforge/internal/logging"
	"subforge/internal/media/ffprobe"
	"subforge/internal/services"
	"subforge/internal/toolexec"
)

const (
	stageName  = "extracting"
	sniffBytes = 8192
)

// ProbeFunc inspects a media file.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Input is the resolved local video file for a job.
type Input struct {
	Path      string
	SizeBytes int64
	MIME      string
	// Owned is true when the file lives in the job workspace and may be deleted.
	Owned bool
	Probe ffprobe.Result
}

// Audio is the extracted speech track.
type Audio struct {
	Path            string
	Format          string
	SampleRate      int
	Channels        int
	SizeBytes       int64
	DurationSeconds float64
}

// Extractor resolves sources and extracts audio with ffmpeg.
type Extractor struct {
	ffmpeg          string
	ffprobe         string
	format          string
	sampleRate      int
	channels        int
	bitrate         string
	maxBytes        int64
	downloadTimeout time.Duration
	client          *http.Client
	run             toolexec.RunFunc
	probe           ProbeFunc
	logger          *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the download client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithProbe overrides the ffprobe invocation.
func WithProbe(probe ProbeFunc) Option {
	return func(e *Extractor) {
		if probe != nil {
			e.probe = probe
		}
	}
}

// New constructs an Extractor from configuration. run executes ffmpeg.
func New(cfg *config.Config, run toolexec.RunFunc, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		ffmpeg:     "ffmpeg",
		ffprobe:    "ffprobe",
		format:     "mp3",
		sampleRate: 16000,
		channels:   1,
		bitrate:    "128k",
		run:        run,
		probe:      ffprobe.Inspect,
		logger:     logging.NewComponentLogger(logger, "extract"),
	}
	if cfg != nil {
		e.ffmpeg = cfg.FFmpegBinary()
		e.ffprobe = cfg.FFprobeBinary()
		e.format = cfg.Extract.AudioFormat
		e.sampleRate = cfg.Extract.SampleRate
		e.channels = cfg.Extract.Channels
		e.bitrate = cfg.Extract.AudioBitrate
		e.maxBytes = cfg.MaxUploadBytes()
		e.downloadTimeout = cfg.DownloadTimeout()
	}
	e.client = &http.Client{Timeout: e.downloadTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve writes or downloads the source into dir when needed, then verifies
// it is a media container with at least one audio stream.
func (e *Extractor) Resolve(ctx context.Context, src Source, dir string) (Input, error) {
	if err := src.Validate(); err != nil {
		return Input{}, err
	}
	logger := logging.WithContext(ctx, e.logger)

	var input Input
	var err error
	switch src.Kind {
	case SourceBytes:
		input, err = e.writeUpload(src.Data, dir)
	case SourceURL:
		input, err = e.download(ctx, src.URL, dir)
	case SourceFile:
		if src.Spooled {
			input, err = e.adoptUpload(src, dir)
		} else {
			input, err = e.localFile(src.Path)
		}
	}
	if err != nil {
		return Input{}, err
	}

	result, err := e.probe(ctx, e.ffprobe, input.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Input{}, ctxErr
		}
		return Input{}, services.Fail(services.KindInvalidSource, stageName, "probe input", "media container could not be read", err)
	}
	if result.AudioStreamCount() == 0 {
		return Input{}, services.Fail(services.KindNoAudioStream, stageName, "probe input", "video has no audio stream", nil)
	}
	input.Probe = result

	logger.Info("video source resolved",
		logging.String(logging.FieldEventType, "source_resolved"),
		logging.String("source", src.Describe()),
		logging.String("mime", input.MIME),
		logging.Int64("size_bytes", input.SizeBytes),
		logging.Float64("duration_seconds", result.DurationSeconds()),
		logging.Int("audio_streams", result.AudioStreamCount()),
	)
	return input, nil
}

// Extract produces the normalized audio track for input inside dir.
func (e *Extractor) Extract(ctx context.Context, input Input, dir string) (Audio, error) {
	if e.run == nil {
		return Audio{}, services.Fail(services.KindInternal, stageName, "extract audio", "no command runner configured", nil)
	}
	logger := logging.WithContext(ctx, e.logger)
	destination := filepath.Join(dir, "audio."+e.format)
	start := time.Now()

	if err := e.run(ctx, e.ffmpeg, e.buildArgs(input.Path, destination)...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Audio{}, ctxErr
		}
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "extract audio", "ffmpeg could not extract the audio track", err)
	}

	info, err := os.Stat(destination)
	if err != nil {
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "verify audio", "ffmpeg produced no audio file", err)
	}
	if info.Size() == 0 {
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "verify audio", "ffmpeg produced an empty audio file", nil)
	}

	audio := Audio{
		Path:       destination,
		Format:     e.format,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
		SizeBytes:  info.Size(),
	}
	probed, err := e.probe(ctx, e.ffprobe, destination)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Audio{}, ctxErr
		}
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "verify audio", "extracted audio could not be probed", err)
	}
	stream, ok := probed.PrimaryAudio()
	if !ok {
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "verify audio", "extracted file has no audio stream", nil)
	}
	if stream.Channels != e.channels || stream.SampleRateHz() != e.sampleRate {
		return Audio{}, services.Fail(services.KindExtractionFailed, stageName, "verify audio",
			fmt.Sprintf("extracted audio is %d ch @ %d Hz, want %d ch @ %d Hz", stream.Channels, stream.SampleRateHz(), e.channels, e.sampleRate), nil)
	}
	audio.DurationSeconds = probed.DurationSeconds()

	logger.Debug("audio extracted",
		logging.String("destination", destination),
		logging.Float64("size_mb", float64(audio.SizeBytes)/1_048_576),
		logging.Duration("elapsed", time.Since(start)),
	)
	return audio, nil
}

func (e *Extractor) buildArgs(source, destination string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(e.channels),
		"-ar", strconv.Itoa(e.sampleRate),
	}
	switch e.format {
	case "wav":
		args = append(args, "-c:a", "pcm_s16le")
	default:
		args = append(args, "-c:a", "libmp3lame", "-b:a", e.bitrate)
	}
	return append(args, destination)
}

func (e *Extractor) writeUpload(data []byte, dir string) (Input, error) {
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return Input{}, services.Fail(services.KindInputTooLarge, stageName, "accept upload",
			fmt.Sprintf("upload is %d bytes, limit is %d", len(data), e.maxBytes), nil)
	}
	mime, ext, err := sniff(data)
	if err != nil {
		return Input{}, err
	}
	path := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Input{}, services.Fail(services.KindInternal, stageName, "write upload", "failed to write upload to workspace", err)
	}
	return Input{Path: path, SizeBytes: int64(len(data)), MIME: mime, Owned: true}, nil
}

// adoptUpload moves a spooled upload into dir. The spool is discarded when
// the upload is rejected.
func (e *Extractor) adoptUpload(src Source, dir string) (Input, error) {
	input, err := e.localFile(src.Path)
	if err == nil && e.maxBytes > 0 && input.SizeBytes > e.maxBytes {
		err = services.Fail(services.KindInputTooLarge, stageName, "accept upload",
			fmt.Sprintf("upload is %d bytes, limit is %d", input.SizeBytes, e.maxBytes), nil)
	}
	if err != nil {
		_ = src.Discard()
		return Input{}, err
	}
	ext := "bin"
	if kind, kerr := filetype.MatchFile(src.Path); kerr == nil && kind.Extension != "" {
		ext = kind.Extension
	}
	path := filepath.Join(dir, "input."+ext)
	if err := os.Rename(src.Path, path); err != nil {
		if err := fileutil.CopyFile(src.Path, path); err != nil {
			_ = src.Discard()
			return Input{}, services.Fail(services.KindInternal, stageName, "accept upload", "failed to move upload into workspace", err)
		}
	}
	_ = src.Discard()
	input.Path = path
	input.Owned = true
	return input, nil
}

func (e *Extractor) localFile(path string) (Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Input{}, services.Fail(services.KindInvalidSource, stageName, "open file", "video file is not readable", err)
	}
	if info.IsDir() {
		return Input{}, services.Fail(services.KindInvalidSource, stageName, "open file", "video path is a directory", nil)
	}
	head, err := readHead(path)
	if err != nil {
		return Input{}, services.Fail(services.KindInvalidSource, stageName, "open file", "video file is not readable", err)
	}
	mime, _, err := sniff(head)
	if err != nil {
		return Input{}, err
	}
	return Input{Path: path, SizeBytes: info.Size(), MIME: mime}, nil
}

func (e *Extractor) download(ctx context.Context, location, dir string) (Input, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return Input{}, services.Fail(services.KindInvalidSource, stageName, "download", "video url is not valid", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Input{}, ctxErr
		}
		return Input{}, services.Fail(services.KindDownloadFailed, stageName, "download", "could not reach video url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Input{}, services.Fail(services.KindDownloadFailed, stageName, "download",
			fmt.Sprintf("video url returned %s", resp.Status), nil)
	}
	if e.maxBytes > 0 && resp.ContentLength > e.maxBytes {
		return Input{}, services.Fail(services.KindInputTooLarge, stageName, "download",
			fmt.Sprintf("remote video is %d bytes, limit is %d", resp.ContentLength, e.maxBytes), nil)
	}

	partial := filepath.Join(dir, "input.download")
	file, err := os.Create(partial)
	if err != nil {
		return Input{}, services.Fail(services.KindInternal, stageName, "download", "failed to create download file", err)
	}
	var body io.Reader = resp.Body
	if e.maxBytes > 0 {
		body = io.LimitReader(resp.Body, e.maxBytes+1)
	}
	written, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(partial)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Input{}, ctxErr
		}
		return Input{}, services.Fail(services.KindDownloadFailed, stageName, "download", "download interrupted", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(partial)
		return Input{}, services.Fail(services.KindInternal, stageName, "download", "failed to flush download file", closeErr)
	}
	if e.maxBytes > 0 && written > e.maxBytes {
		_ = os.Remove(partial)
		return Input{}, services.Fail(services.KindInputTooLarge, stageName, "download",
			fmt.Sprintf("remote video exceeds %d bytes", e.maxBytes), nil)
	}
	if written == 0 {
		_ = os.Remove(partial)
		return Input{}, services.Fail(services.KindDownloadFailed, stageName, "download", "video url returned an empty body", nil)
	}

	head, err := readHead(partial)
	if err != nil {
		_ = os.Remove(partial)
		return Input{}, services.Fail(services.KindInternal, stageName, "download", "failed to read download", err)
	}
	mime, ext, err := sniff(head)
	if err != nil {
		_ = os.Remove(partial)
		return Input{}, err
	}
	final := filepath.Join(dir, "input."+ext)
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return Input{}, services.Fail(services.KindInternal, stageName, "download", "failed to finalize download", err)
	}
	return Input{Path: final, SizeBytes: written, MIME: mime, Owned: true}, nil
}

func readHead(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// sniff accepts video and audio containers and returns the MIME type and a
// file extension for the workspace copy.
func sniff(head []byte) (string, string, error) {
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", "", services.Fail(services.KindInvalidSource, stageName, "sniff", "unrecognized media format", err)
	}
	if kind.MIME.Type != "video" && kind.MIME.Type != "audio" {
		return "", "", services.Fail(services.KindInvalidSource, stageName, "sniff",
			fmt.Sprintf("unsupported format %s", kind.MIME.Value), nil)
	}
	ext := strings.TrimSpace(kind.Extension)
	if ext == "" {
		ext = "bin"
	}
	return kind.MIME.Value, ext, nil
}
