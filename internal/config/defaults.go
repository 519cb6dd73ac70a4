package config

const (
	defaultStagingDir            = "~/.local/share/subforge/staging"
	defaultLogDir                = "~/.local/share/subforge/logs"
	defaultStateDir              = "~/.local/share/subforge/state"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultPublicBaseURL         = "http://127.0.0.1:7488"
	defaultMode                  = "burn"
	defaultSourceLanguage        = "auto"
	defaultJobTimeoutSeconds     = 1800
	defaultDownloadTimeout       = 300
	defaultRetentionHours        = 6
	defaultSweepIntervalMinutes  = 15
	defaultReapIntervalSeconds   = 60
	defaultMaxUploadMB           = 500
	defaultMaxConcurrentJobs     = 2
	defaultAudioFormat           = "mp3"
	defaultAudioSampleRate       = 16000
	defaultAudioChannels         = 1
	defaultAudioBitrate          = "128k"
	defaultTranscriptionEngine   = "openai"
	defaultTranscriptionBaseURL  = "https://api.openai.com/v1"
	defaultTranscriptionModel    = "whisper-1"
	defaultTranscriptionMaxMB    = 25
	defaultTranscriptionTimeout  = 600
	defaultWhisperXModel         = "large-v3-turbo"
	defaultWhisperXDevice        = "cpu"
	defaultTranslationEngine     = "llm"
	defaultTranslationBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultTranslationModel      = "google/gemini-3-flash-preview"
	defaultGeminiModel           = "gemini-2.5-flash"
	defaultTranslationReferer    = "https://github.com/subforge/subforge"
	defaultTranslationTitle      = "Subforge Translator"
	defaultTranslationTimeout    = 60
	defaultTranslationRPS        = 2.0
	defaultTranslationBurst      = 1
	defaultVideoCodec            = "libx264"
	defaultCRF                   = 23
	defaultPreset                = "veryfast"
	defaultBurnAudioCodec        = "aac"
	defaultBurnAudioBitrate      = "160k"
	defaultFontName              = "Arial"
	defaultFontSize              = 24
	defaultPrimaryColour         = "&H00FFFFFF"
	defaultOutlineColour         = "&H00000000"
	defaultOutline               = 2
	defaultMarginV               = 30
	defaultStorageBackend        = "local"
	defaultNtfyRequestTimeout    = 10
	defaultTelemetryExporter     = "none"
	defaultTelemetryServiceName  = "subforge"
	defaultMetricIntervalSeconds = 60
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Server: Server{
			Bind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			Mode:                   defaultMode,
			DefaultSourceLanguage:  defaultSourceLanguage,
			JobTimeoutSeconds:      defaultJobTimeoutSeconds,
			DownloadTimeoutSeconds: defaultDownloadTimeout,
			RetentionHours:         defaultRetentionHours,
			SweepIntervalMinutes:   defaultSweepIntervalMinutes,
			ReapIntervalSeconds:    defaultReapIntervalSeconds,
			MaxUploadMB:            defaultMaxUploadMB,
			MaxConcurrentJobs:      defaultMaxConcurrentJobs,
		},
		Extract: Extract{
			AudioFormat:  defaultAudioFormat,
			SampleRate:   defaultAudioSampleRate,
			Channels:     defaultAudioChannels,
			AudioBitrate: defaultAudioBitrate,
		},
		Transcription: Transcription{
			Engine:         defaultTranscriptionEngine,
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			MaxInputMB:     defaultTranscriptionMaxMB,
			TimeoutSeconds: defaultTranscriptionTimeout,
			WhisperXModel:  defaultWhisperXModel,
			WhisperXDevice: defaultWhisperXDevice,
		},
		Translation: Translation{
			Engine:            defaultTranslationEngine,
			BaseURL:           defaultTranslationBaseURL,
			Referer:           defaultTranslationReferer,
			Title:             defaultTranslationTitle,
			TimeoutSeconds:    defaultTranslationTimeout,
			RequestsPerSecond: defaultTranslationRPS,
			Burst:             defaultTranslationBurst,
		},
		Burn: Burn{
			VideoCodec:    defaultVideoCodec,
			CRF:           defaultCRF,
			Preset:        defaultPreset,
			AudioCodec:    defaultBurnAudioCodec,
			AudioBitrate:  defaultBurnAudioBitrate,
			FontName:      defaultFontName,
			FontSize:      defaultFontSize,
			PrimaryColour: defaultPrimaryColour,
			OutlineColour: defaultOutlineColour,
			Outline:       defaultOutline,
			MarginV:       defaultMarginV,
		},
		Storage: Storage{
			Backend:       defaultStorageBackend,
			PublicBaseURL: defaultPublicBaseURL,
			MinioUseSSL:   true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Telemetry: Telemetry{
			Exporter:              defaultTelemetryExporter,
			ServiceName:           defaultTelemetryServiceName,
			MetricIntervalSeconds: defaultMetricIntervalSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
