package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// objectWriter opens a writer for a new object in the bucket.
type objectWriter func(ctx context.Context, object, contentType string) io.WriteCloser

// objectReader opens an existing object of any bucket.
type objectReader func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// GCS archives files in a Google Cloud Storage bucket. It assumes
// Application Default Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
	writer objectWriter
	reader objectReader
}

// NewGCS creates a storage client for bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	bkt := client.Bucket(bucket)
	g := newGCS(bucket, func(ctx context.Context, object, contentType string) io.WriteCloser {
		w := bkt.Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	})
	g.client = client
	g.reader = func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		return client.Bucket(bucket).Object(object).NewReader(ctx)
	}
	return g, nil
}

func newGCS(bucket string, writer objectWriter) *GCS {
	return &GCS{bucket: bucket, writer: writer}
}

// Close closes the storage client.
func (g *GCS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Put implements Archive. The link points at the authenticated console
// download URL of the object.
func (g *GCS) Put(ctx context.Context, key string, src pending.Source) (string, error) {
	if len(src.Bytes) == 0 {
		return "", ErrNoContent
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := g.writer(ctx, key, contentType(src))
	if _, err := io.Copy(w, bytes.NewReader(src.Bytes)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy file to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload of %s: %w", key, err)
	}

	link := (&url.URL{Scheme: "https", Host: "storage.cloud.google.com", Path: "/" + g.bucket + "/" + key}).String()
	log := logger.FromContext(ctx)
	log.Info().Str("bucket", g.bucket).Str("object", key).Msg("Invoice file archived")
	return link, nil
}

var _ Archive = (*GCS)(nil)

// Fetch downloads the object named by a gs://bucket/path URI.
func (g *GCS) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := g.reader(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes of %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// ParseGCSURI splits "gs://bucket/path/to/file.pdf" into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return bucket, object, nil
}
