package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizePipeline()
	c.normalizeExtract()
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeTelemetry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultAPIBind
	}
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if c.Server.Token == "" {
		c.Server.Token = envValue("SUBFORGE_API_TOKEN")
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	if c.Pipeline.Mode == "" {
		c.Pipeline.Mode = defaultMode
	}
	c.Pipeline.DefaultSourceLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultSourceLanguage))
	if c.Pipeline.DefaultSourceLanguage == "" {
		c.Pipeline.DefaultSourceLanguage = defaultSourceLanguage
	}
}

func (c *Config) normalizeExtract() {
	c.Extract.AudioFormat = strings.ToLower(strings.TrimSpace(c.Extract.AudioFormat))
	if c.Extract.AudioFormat == "" {
		c.Extract.AudioFormat = defaultAudioFormat
	}
	c.Extract.AudioBitrate = strings.TrimSpace(c.Extract.AudioBitrate)
	if c.Extract.AudioBitrate == "" {
		c.Extract.AudioBitrate = defaultAudioBitrate
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Engine = strings.ToLower(strings.TrimSpace(c.Transcription.Engine))
	if c.Transcription.Engine == "" {
		c.Transcription.Engine = defaultTranscriptionEngine
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = envValue("OPENAI_API_KEY")
	}
	if c.Transcription.MaxInputMB < 0 {
		c.Transcription.MaxInputMB = 0
	}
	c.Transcription.WhisperXModel = strings.TrimSpace(c.Transcription.WhisperXModel)
	if c.Transcription.WhisperXModel == "" {
		c.Transcription.WhisperXModel = defaultWhisperXModel
	}
	c.Transcription.WhisperXDevice = strings.ToLower(strings.TrimSpace(c.Transcription.WhisperXDevice))
	if c.Transcription.WhisperXDevice == "" {
		c.Transcription.WhisperXDevice = defaultWhisperXDevice
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.Engine = strings.ToLower(strings.TrimSpace(c.Translation.Engine))
	if c.Translation.Engine == "" {
		c.Translation.Engine = defaultTranslationEngine
	}
	c.Translation.Model = strings.TrimSpace(c.Translation.Model)
	c.Translation.APIKey = strings.TrimSpace(c.Translation.APIKey)
	switch c.Translation.Engine {
	case "gemini":
		if c.Translation.Model == "" {
			c.Translation.Model = defaultGeminiModel
		}
		if c.Translation.APIKey == "" {
			c.Translation.APIKey = envValue("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	case "llm":
		if c.Translation.Model == "" {
			c.Translation.Model = defaultTranslationModel
		}
		if c.Translation.APIKey == "" {
			c.Translation.APIKey = envValue("OPENROUTER_API_KEY")
		}
	}
	c.Translation.BaseURL = strings.TrimSpace(c.Translation.BaseURL)
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = defaultTranslationBaseURL
	}
	c.Translation.Referer = strings.TrimSpace(c.Translation.Referer)
	if c.Translation.Referer == "" {
		c.Translation.Referer = defaultTranslationReferer
	}
	c.Translation.Title = strings.TrimSpace(c.Translation.Title)
	if c.Translation.Title == "" {
		c.Translation.Title = defaultTranslationTitle
	}
	if c.Translation.Burst <= 0 {
		c.Translation.Burst = defaultTranslationBurst
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = "http://" + c.Server.Bind
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.MinioEndpoint = strings.TrimSpace(c.Storage.MinioEndpoint)
	if c.Storage.MinioEndpoint == "" {
		c.Storage.MinioEndpoint = envValue("MINIO_ENDPOINT")
	}
	if c.Storage.MinioAccessKey == "" {
		c.Storage.MinioAccessKey = envValue("MINIO_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	}
	if c.Storage.MinioSecretKey == "" {
		c.Storage.MinioSecretKey = envValue("MINIO_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = envValue("SUBFORGE_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaultTelemetryExporter
	}
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultTelemetryServiceName
	}
	c.Telemetry.ProjectID = strings.TrimSpace(c.Telemetry.ProjectID)
	if c.Telemetry.ProjectID == "" {
		c.Telemetry.ProjectID = envValue("GOOGLE_CLOUD_PROJECT")
	}
	if c.Telemetry.MetricIntervalSeconds <= 0 {
		c.Telemetry.MetricIntervalSeconds = defaultMetricIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// envValue returns the first non-empty environment variable among keys.
func envValue(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
