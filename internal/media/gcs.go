package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GCSStorage stores media in a Google Cloud Storage bucket.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage connects to GCS and checks that bucket is reachable. An empty
// credentialsFile uses application default credentials.
func NewGCSStorage(ctx context.Context, bucket, credentialsFile string) (*GCSStorage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("gcs bucket %s: %w", bucket, err)
	}
	zap.L().Info("connected to gcs", zap.String("bucket", bucket))
	return &GCSStorage{client: client, bucket: bucket}, nil
}

func (g *GCSStorage) Save(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if _, err := CleanKey(key); err != nil {
		return 0, err
	}
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("finalize %s: %w", key, err)
	}
	return n, nil
}

func (g *GCSStorage) Open(ctx context.Context, key string) (Object, error) {
	if _, err := CleanKey(key); err != nil {
		return Object{}, err
	}
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", key, err)
	}
	return Object{Body: rc, ContentType: rc.Attrs.ContentType, Size: rc.Attrs.Size}, nil
}

func (g *GCSStorage) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (g *GCSStorage) URL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
