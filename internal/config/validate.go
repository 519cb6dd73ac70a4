package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateExtract(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateBurn(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Mode {
	case "burn", "soft":
	default:
		return fmt.Errorf("pipeline.mode must be burn or soft, got %q", c.Pipeline.Mode)
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.job_timeout_seconds":      c.Pipeline.JobTimeoutSeconds,
		"pipeline.download_timeout_seconds": c.Pipeline.DownloadTimeoutSeconds,
		"pipeline.retention_hours":          c.Pipeline.RetentionHours,
		"pipeline.sweep_interval_minutes":   c.Pipeline.SweepIntervalMinutes,
		"pipeline.reap_interval_seconds":    c.Pipeline.ReapIntervalSeconds,
		"pipeline.max_upload_mb":            c.Pipeline.MaxUploadMB,
		"pipeline.max_concurrent_jobs":      c.Pipeline.MaxConcurrentJobs,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExtract() error {
	switch c.Extract.AudioFormat {
	case "mp3", "wav":
	default:
		return fmt.Errorf("extract.audio_format must be mp3 or wav, got %q", c.Extract.AudioFormat)
	}
	if c.Extract.SampleRate <= 0 {
		return errors.New("extract.sample_rate must be positive")
	}
	if c.Extract.Channels <= 0 {
		return errors.New("extract.channels must be positive")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Engine {
	case "openai":
		if c.Transcription.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/subforge/config.toml"
			}
			return fmt.Errorf("transcription.api_key is required for the openai engine. Set OPENAI_API_KEY env var or edit %s (create with 'subforge config init')", defaultPath)
		}
	case "whisperx":
	default:
		return fmt.Errorf("transcription.engine must be openai or whisperx, got %q", c.Transcription.Engine)
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	switch c.Translation.Engine {
	case "none":
		return nil
	case "llm", "gemini":
	default:
		return fmt.Errorf("translation.engine must be llm, gemini, or none, got %q", c.Translation.Engine)
	}
	if c.Translation.APIKey == "" {
		return fmt.Errorf("translation.api_key must be set when translation.engine is %s", c.Translation.Engine)
	}
	if c.Translation.TimeoutSeconds <= 0 {
		return errors.New("translation.timeout_seconds must be positive")
	}
	if c.Translation.RequestsPerSecond < 0 {
		return errors.New("translation.requests_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateBurn() error {
	if strings.TrimSpace(c.Burn.VideoCodec) == "" {
		return errors.New("burn.video_codec must be set")
	}
	if c.Burn.CRF < 0 || c.Burn.CRF > 51 {
		return errors.New("burn.crf must be between 0 and 51")
	}
	if c.Burn.FontSize <= 0 {
		return errors.New("burn.font_size must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
		return nil
	case "gcs":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is gcs")
		}
	case "minio":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is minio")
		}
		if c.Storage.MinioEndpoint == "" {
			return errors.New("storage.minio_endpoint must be set when storage.backend is minio")
		}
		if c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
			return errors.New("storage.minio_access_key and storage.minio_secret_key must be set when storage.backend is minio")
		}
	default:
		return fmt.Errorf("storage.backend must be local, gcs, or minio, got %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if !c.Telemetry.Enabled {
		return nil
	}
	switch c.Telemetry.Exporter {
	case "none":
	case "gcp":
		if c.Telemetry.ProjectID == "" {
			return errors.New("telemetry.project_id must be set when telemetry.exporter is gcp")
		}
	default:
		return fmt.Errorf("telemetry.exporter must be none or gcp, got %q", c.Telemetry.Exporter)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
