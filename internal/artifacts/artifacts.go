package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"subforge/internal/config"
	"subforge/internal/services"
)

// StageName labels publish failures.
const StageName = "publishing"

// Store publishes job artifacts and removes them again.
type Store interface {
	// Name identifies the backend.
	Name() string
	// Publish makes localPath available as name under jobID and returns its URL.
	Publish(ctx context.Context, jobID, localPath, name, contentType string) (string, error)
	// Remove deletes everything published for jobID.
	Remove(ctx context.Context, jobID string) error
}

// New selects the backend configured in storage.backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("artifacts: nil config: %w", services.ErrConfiguration)
	}
	switch cfg.Storage.Backend {
	case "", "local":
		return NewLocal(cfg.Paths.StagingDir, cfg.Storage.PublicBaseURL), nil
	case "gcs":
		return NewGCS(ctx, GCSConfig{
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
			SignedTTL: cfg.SignedURLTTL(),
		}, logger)
	case "minio":
		return NewMinio(ctx, MinioConfig{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			Region:    cfg.Storage.MinioRegion,
			UseSSL:    cfg.Storage.MinioUseSSL,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
			SignedTTL: cfg.SignedURLTTL(),
		}, logger)
	default:
		return nil, fmt.Errorf("artifacts: unknown storage backend %q: %w", cfg.Storage.Backend, services.ErrConfiguration)
	}
}

// ContentTypeFor returns the MIME type used when publishing name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".srt":
		return "application/x-subrip"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ValidName reports whether name is a single safe path element.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// ObjectKey builds the remote key for a job artifact.
func ObjectKey(prefix, jobID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(prefix, jobID, name)
}

// jobPrefix is the listing prefix that covers every object of one job.
func jobPrefix(prefix, jobID string) string {
	return ObjectKey(prefix, jobID, "") + "/"
}

func checkArgs(jobID, name string) error {
	if !ValidName(jobID) {
		return services.Fail(services.KindPublishFailed, StageName, "validate", fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	if !ValidName(name) {
		return services.Fail(services.KindPublishFailed, StageName, "validate", fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	return nil
}

func publishFailed(operation, message string, err error) error {
	return services.Fail(services.KindPublishFailed, StageName, operation, message, err)
}
