package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ObjectStore is the minimal S3 surface the uploader needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// UploadConfig configures mirroring of output files to a bucket.
type UploadConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether uploads are configured.
func (c UploadConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// S3Store implements ObjectStore on minio-go.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store creates an S3/MinIO client. Endpoint may be a host:port or a URL;
// an https URL turns TLS on.
func NewS3Store(cfg UploadConfig) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("upload endpoint is required")
	}

	host := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		host = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &S3Store{client: client, region: cfg.Region}, nil
}

// EnsureBucket creates bucket when it does not exist.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutObject uploads data under key, replacing any existing object.
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Uploader copies written files into a bucket under a fixed prefix, so a
// rerun overwrites the same objects.
type Uploader struct {
	store  ObjectStore
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewUploader creates an uploader for bucket.
func NewUploader(store ObjectStore, bucket, prefix string) *Uploader {
	return &Uploader{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log.With().Str("component", "sink").Str("bucket", bucket).Logger(),
	}
}

// Prepare makes sure the bucket exists.
func (u *Uploader) Prepare(ctx context.Context) error {
	return u.store.EnsureBucket(ctx, u.bucket)
}

// Upload copies the local file and returns its s3:// location.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	key := path.Join(u.prefix, filepath.Base(localPath))
	if err := u.store.PutObject(ctx, u.bucket, key, data, contentType(localPath)); err != nil {
		return "", err
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info().Str("path", localPath).Str("object", location).Msg("Uploaded output file")
	return location, nil
}

func contentType(p string) string {
	switch filepath.Ext(p) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
