package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/logs"
)

// StorageGCS is a Google Cloud Storage-based blob store
type StorageGCS struct {
	bucketName string
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	log        logs.Log
}

// NewStorageGCS uses the application default credentials
func NewStorageGCS(ctx context.Context, log logs.Log, bucketName string) (*StorageGCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("Using GCS bucket %v for previews", bucketName)
	return &StorageGCS{
		bucketName: bucketName,
		client:     client,
		bucket:     client.Bucket(bucketName),
		log:        log,
	}, nil
}

func (s *StorageGCS) WriteFile(ctx context.Context, name, contentType string) (io.WriteCloser, error) {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	return w, nil
}

func (s *StorageGCS) ReadFile(ctx context.Context, name string) (*File, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &File{
		Reader:      r,
		ContentType: r.Attrs.ContentType,
		ModifiedAt:  r.Attrs.LastModified,
		Size:        r.Attrs.Size,
	}, nil
}

func (s *StorageGCS) DeleteFile(ctx context.Context, name string) error {
	err := s.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (s *StorageGCS) Close() error {
	return s.client.Close()
}
