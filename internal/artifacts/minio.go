package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"subforge/internal/logging"
	"subforge/internal/services"
)

// MinioConfig configures the S3-compatible backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
	SignedTTL time.Duration
}

// Minio publishes artifacts to an S3-compatible bucket and returns presigned URLs.
type Minio struct {
	client *minio.Client
	cfg    MinioConfig
	logger *slog.Logger
}

// NewMinio connects to the endpoint and ensures the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, logger *slog.Logger) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio store: endpoint and bucket are required: %w", services.ErrConfiguration)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio store: create client: %w", err)
	}
	if cfg.SignedTTL <= 0 {
		cfg.SignedTTL = time.Hour
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	store := &Minio{client: client, cfg: cfg, logger: logging.NewComponentLogger(logger, "artifacts-minio")}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *Minio) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("minio store: check bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		exists, existsErr := m.client.BucketExists(ctx, m.cfg.Bucket)
		if existsErr == nil && exists {
			return nil
		}
		return fmt.Errorf("minio store: create bucket %s: %w", m.cfg.Bucket, err)
	}
	m.logger.Info("created artifact bucket",
		logging.String("bucket", m.cfg.Bucket),
		logging.String(logging.FieldEventType, "bucket_created"),
	)
	return nil
}

// Name implements Store.
func (m *Minio) Name() string { return "minio" }

// Publish uploads localPath and returns a presigned GET URL.
func (m *Minio) Publish(ctx context.Context, jobID, localPath, name, contentType string) (string, error) {
	if err := checkArgs(jobID, name); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	key := ObjectKey(m.cfg.Prefix, jobID, name)
	info, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", publishFailed("upload", fmt.Sprintf("upload %s/%s", m.cfg.Bucket, key), err)
	}
	presigned, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, m.cfg.SignedTTL, url.Values{})
	if err != nil {
		return "", publishFailed("sign", fmt.Sprintf("presign %s/%s", m.cfg.Bucket, key), err)
	}
	m.logger.Debug("artifact uploaded",
		logging.String(logging.FieldJobID, jobID),
		logging.String("object", key),
		logging.Int64("bytes", info.Size),
	)
	return presigned.String(), nil
}

// Remove deletes every object under the job prefix.
func (m *Minio) Remove(ctx context.Context, jobID string) error {
	if !ValidName(jobID) {
		return nil
	}
	var errs []error
	for object := range m.client.ListObjects(ctx, m.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    jobPrefix(m.cfg.Prefix, jobID),
		Recursive: true,
	}) {
		if object.Err != nil {
			return fmt.Errorf("list minio objects for %s: %w", jobID, object.Err)
		}
		if err := m.client.RemoveObject(ctx, m.cfg.Bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("delete %s/%s: %w", m.cfg.Bucket, object.Key, err))
		}
	}
	return errors.Join(errs...)
}
