package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// DefaultLinkTTL is how long a presigned link stays valid. S3 caps
// presigned URLs at seven days.
const DefaultLinkTTL = 7 * 24 * time.Hour

// MinIOConfig configures an S3-compatible archive.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	LinkTTL   time.Duration
}

// minioAPI is the subset of *minio.Client the archive uses.
type minioAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// MinIO archives files in an S3-compatible bucket and links to them with
// presigned GET URLs.
type MinIO struct {
	client minioAPI
	bucket string
	region string
	ttl    time.Duration

	mu    sync.Mutex
	ready bool
}

// NewMinIO creates a MinIO client from cfg. The bucket is created on
// first use when missing.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return newMinIO(client, cfg), nil
}

func newMinIO(client minioAPI, cfg MinIOConfig) *MinIO {
	ttl := cfg.LinkTTL
	if ttl <= 0 || ttl > DefaultLinkTTL {
		ttl = DefaultLinkTTL
	}
	return &MinIO{client: client, bucket: cfg.Bucket, region: cfg.Region, ttl: ttl}
}

// Put implements Archive.
func (m *MinIO) Put(ctx context.Context, key string, src pending.Source) (string, error) {
	if len(src.Bytes) == 0 {
		return "", ErrNoContent
	}
	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}

	opts := minio.PutObjectOptions{ContentType: contentType(src)}
	if _, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(src.Bytes), int64(len(src.Bytes)), opts); err != nil {
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("bucket", m.bucket).Str("object", key).Msg("Invoice file archived")
	return u.String(), nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", m.bucket, err)
		}
	}
	m.ready = true
	return nil
}

var _ Archive = (*MinIO)(nil)
