package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"subforge/internal/logging"
	"subforge/internal/services"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket    string
	Prefix    string
	SignedTTL time.Duration
}

// GCS publishes artifacts to a Cloud Storage bucket and returns V4 signed URLs.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
	logger *slog.Logger
}

// NewGCS creates a client using application default credentials.
func NewGCS(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket is required: %w", services.ErrConfiguration)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs store: create client: %w", err)
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = time.Hour
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GCS{client: client, cfg: cfg, logger: logging.NewComponentLogger(logger, "artifacts-gcs")}, nil
}

// Name implements Store.
func (g *GCS) Name() string { return "gcs" }

// Publish uploads localPath and returns a signed GET URL.
func (g *GCS) Publish(ctx context.Context, jobID, localPath, name, contentType string) (string, error) {
	if err := checkArgs(jobID, name); err != nil {
		return "", err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return "", publishFailed("open", "artifact missing", err)
	}
	defer file.Close()

	key := ObjectKey(g.cfg.Prefix, jobID, name)
	writer := g.client.Bucket(g.cfg.Bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	writer.ContentType = contentType
	written, err := io.Copy(writer, file)
	if err != nil {
		_ = writer.Close()
		return "", publishFailed("upload", fmt.Sprintf("copy to gs://%s/%s after %d bytes", g.cfg.Bucket, key, written), err)
	}
	if err := writer.Close(); err != nil {
		return "", publishFailed("upload", fmt.Sprintf("finalize gs://%s/%s", g.cfg.Bucket, key), err)
	}

	signed, err := g.client.Bucket(g.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.cfg.SignedTTL),
	})
	if err != nil {
		return "", publishFailed("sign", fmt.Sprintf("sign gs://%s/%s", g.cfg.Bucket, key), err)
	}
	g.logger.Debug("artifact uploaded",
		logging.String(logging.FieldJobID, jobID),
		logging.String("object", key),
		logging.Int64("bytes", written),
	)
	return signed, nil
}

// Remove deletes every object under the job prefix.
func (g *GCS) Remove(ctx context.Context, jobID string) error {
	if !ValidName(jobID) {
		return nil
	}
	bucket := g.client.Bucket(g.cfg.Bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: jobPrefix(g.cfg.Prefix, jobID)})
	var errs []error
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("list gcs objects for %s: %w", jobID, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("delete gs://%s/%s: %w", g.cfg.Bucket, attrs.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
