package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("Blob not found")

// Storage is a blob store for analysis artifacts (eg annotated previews)
type Storage interface {
	// When finished, you must close the WriteCloser. The blob is only committed by Close.
	WriteFile(ctx context.Context, name, contentType string) (io.WriteCloser, error)

	// When finished, you must close File.Reader.
	// Returns ErrNotFound if the blob does not exist.
	ReadFile(ctx context.Context, name string) (*File, error)

	// Deleting a blob that does not exist is not an error
	DeleteFile(ctx context.Context, name string) error

	Close() error
}

// File is an element in blob storage.
type File struct {
	Reader      io.ReadCloser
	ContentType string
	ModifiedAt  time.Time
	Size        int64
}

func WriteFile(ctx context.Context, s Storage, name, contentType string, content []byte) error {
	f, err := s.WriteFile(ctx, name, contentType)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, bytes.NewReader(content))
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}
