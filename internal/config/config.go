package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
}

// Server contains HTTP API settings for the daemon.
type Server struct {
	Bind           string   `toml:"bind"`
	Token          string   `toml:"token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Pipeline contains job-level limits and lifecycle timing.
type Pipeline struct {
	Mode                   string `toml:"mode"`
	DefaultSourceLanguage  string `toml:"default_source_language"`
	JobTimeoutSeconds      int    `toml:"job_timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
	RetentionHours         int    `toml:"retention_hours"`
	SweepIntervalMinutes   int    `toml:"sweep_interval_minutes"`
	ReapIntervalSeconds    int    `toml:"reap_interval_seconds"`
	MaxUploadMB            int    `toml:"max_upload_mb"`
	MaxConcurrentJobs      int    `toml:"max_concurrent_jobs"`
	RetainIntermediates    bool   `toml:"retain_intermediates"`
}

// Extract contains audio extraction settings.
type Extract struct {
	AudioFormat  string `toml:"audio_format"`
	SampleRate   int    `toml:"sample_rate"`
	Channels     int    `toml:"channels"`
	AudioBitrate string `toml:"audio_bitrate"`
}

// Transcription contains speech-to-text engine settings.
type Transcription struct {
	Engine         string `toml:"engine"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxInputMB     int    `toml:"max_input_mb"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	WhisperXModel  string `toml:"whisperx_model"`
	WhisperXDevice string `toml:"whisperx_device"`
}

// Translation contains machine translation settings.
type Translation struct {
	Engine            string  `toml:"engine"`
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Referer           string  `toml:"referer"`
	Title             string  `toml:"title"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Burn contains encoder and subtitle style settings for burned-in output.
type Burn struct {
	VideoCodec    string `toml:"video_codec"`
	CRF           int    `toml:"crf"`
	Preset        string `toml:"preset"`
	AudioCodec    string `toml:"audio_codec"`
	AudioBitrate  string `toml:"audio_bitrate"`
	FontName      string `toml:"font_name"`
	FontSize      int    `toml:"font_size"`
	PrimaryColour string `toml:"primary_colour"`
	OutlineColour string `toml:"outline_colour"`
	Outline       int    `toml:"outline"`
	MarginV       int    `toml:"margin_v"`
}

// Storage contains artifact publication settings.
type Storage struct {
	Backend          string `toml:"backend"`
	PublicBaseURL    string `toml:"public_base_url"`
	Bucket           string `toml:"bucket"`
	Prefix           string `toml:"prefix"`
	SignedURLMinutes int    `toml:"signed_url_minutes"`
	MinioEndpoint    string `toml:"minio_endpoint"`
	MinioAccessKey   string `toml:"minio_access_key"`
	MinioSecretKey   string `toml:"minio_secret_key"`
	MinioRegion      string `toml:"minio_region"`
	MinioUseSSL      bool   `toml:"minio_use_ssl"`
}

// Quota contains per-user job allowance settings.
type Quota struct {
	DailyJobLimit int `toml:"daily_job_limit"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Telemetry contains OpenTelemetry export settings.
type Telemetry struct {
	Enabled               bool   `toml:"enabled"`
	Exporter              string `toml:"exporter"`
	ProjectID             string `toml:"project_id"`
	ServiceName           string `toml:"service_name"`
	MetricIntervalSeconds int    `toml:"metric_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for subforge.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, and state directories
//   - Server: HTTP API bind address, token, and CORS origins
//   - Pipeline: mode, timeouts, retention, and upload limits
//   - Extract: audio format handed to the transcription engine
//   - Transcription: speech-to-text engine selection and credentials
//   - Translation: translation engine selection, credentials, and pacing
//   - Burn: encoder quality and subtitle style
//   - Storage: where finished artifacts are published
//   - Quota: per-user rolling job limit
//   - Notifications: ntfy push notifications for finished jobs
//   - Telemetry: trace and metric export
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Extract       Extract       `toml:"extract"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Burn          Burn          `toml:"burn"`
	Storage       Storage       `toml:"storage"`
	Quota         Quota         `toml:"quota"`
	Notifications Notifications `toml:"notifications"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files next to the config and in the working directory.
// Variables already present in the environment win.
func loadDotEnv(configDir string) error {
	candidates := []string{filepath.Join(configDir, ".env")}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".env"))
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load env file %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("SUBFORGE_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// DatabasePath returns the job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "subforged.lock")
}

// ToolLogDir returns the directory that receives raw external tool output.
func (c *Config) ToolLogDir() string {
	return filepath.Join(c.Paths.LogDir, "tool")
}

// JobTimeout is the whole-job deadline.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second
}

// DownloadTimeout bounds remote source downloads.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Pipeline.DownloadTimeoutSeconds) * time.Second
}

// Retention is how long completed job artifacts are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Pipeline.RetentionHours) * time.Hour
}

// SweepInterval is the staging sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Pipeline.SweepIntervalMinutes) * time.Minute
}

// ReapInterval is how often expired jobs are purged.
func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Pipeline.ReapIntervalSeconds) * time.Second
}

// MaxUploadBytes caps uploaded and downloaded sources.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Pipeline.MaxUploadMB) * 1024 * 1024
}

// TranscriptionMaxBytes is the engine input ceiling; zero means unlimited.
func (c *Config) TranscriptionMaxBytes() int64 {
	return int64(c.Transcription.MaxInputMB) * 1024 * 1024
}

// SignedURLTTL is the lifetime of published artifact URLs.
func (c *Config) SignedURLTTL() time.Duration {
	if c.Storage.SignedURLMinutes > 0 {
		return time.Duration(c.Storage.SignedURLMinutes) * time.Minute
	}
	return c.Retention()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	redacted.Server.Token = redact(redacted.Server.Token)
	redacted.Transcription.APIKey = redact(redacted.Transcription.APIKey)
	redacted.Translation.APIKey = redact(redacted.Translation.APIKey)
	redacted.Storage.MinioSecretKey = redact(redacted.Storage.MinioSecretKey)
	return toml.Marshal(redacted)
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
