package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"subforge/internal/config"
	"subforge/internal/deps"
	"subforge/internal/services/llm"
)

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.Translation) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries the pipeline runs. Both the
// daemon and the CLI doctor command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.PipelineRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary(), cfg.Transcription.Engine))
}

// CheckCredentials reports whether the selected engines have the keys they need.
func CheckCredentials(cfg *config.Config) []Result {
	var results []Result

	transcription := Result{Name: "Transcription engine"}
	switch cfg.Transcription.Engine {
	case "openai":
		transcription = keyResult(transcription.Name, "openai", cfg.Transcription.APIKey)
	default:
		transcription.Passed = true
		transcription.Detail = cfg.Transcription.Engine + " (local)"
	}
	results = append(results, transcription)

	translation := Result{Name: "Translation engine"}
	switch cfg.Translation.Engine {
	case "llm", "gemini":
		translation = keyResult(translation.Name, cfg.Translation.Engine, cfg.Translation.APIKey)
	default:
		translation.Passed = true
		translation.Optional = true
		translation.Detail = "disabled (subtitles keep the source language)"
	}
	results = append(results, translation)
	return results
}

func keyResult(name, engine, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: engine + " (error: API key missing)"}
	}
	return Result{Name: name, Passed: true, Detail: engine + " (API key set)"}
}

// CheckStorage verifies the artifact backend has the settings it needs.
func CheckStorage(cfg *config.Config) Result {
	const name = "Artifact storage"
	s := cfg.Storage
	switch s.Backend {
	case "", "local":
		if strings.TrimSpace(s.PublicBaseURL) == "" {
			return Result{Name: name, Passed: true, Detail: "local (served by the daemon)"}
		}
		return Result{Name: name, Passed: true, Detail: "local (" + s.PublicBaseURL + ")"}
	case "gcs":
		if strings.TrimSpace(s.Bucket) == "" {
			return Result{Name: name, Detail: "gcs (error: bucket not configured)"}
		}
		return Result{Name: name, Passed: true, Detail: "gcs://" + s.Bucket}
	case "minio":
		var missing []string
		if strings.TrimSpace(s.Bucket) == "" {
			missing = append(missing, "bucket")
		}
		if strings.TrimSpace(s.MinioEndpoint) == "" {
			missing = append(missing, "endpoint")
		}
		if strings.TrimSpace(s.MinioAccessKey) == "" || strings.TrimSpace(s.MinioSecretKey) == "" {
			missing = append(missing, "credentials")
		}
		if len(missing) > 0 {
			return Result{Name: name, Detail: "minio (error: missing " + strings.Join(missing, ", ") + ")"}
		}
		return Result{Name: name, Passed: true, Detail: "minio " + s.MinioEndpoint + "/" + s.Bucket}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unsupported backend %q", s.Backend)}
	}
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
