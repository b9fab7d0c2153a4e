package archive

import (
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	object := path.Join(s.prefix, path.Base(name))

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write archive object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive object: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	bkt := s.client.Bucket(s.bucket)
	query := &storage.Query{Prefix: s.prefix}

	var names []string
	it := bkt.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list archive objects: %w", err)
		}
		names = append(names, path.Base(attrs.Name))
	}

	return names, nil
}
