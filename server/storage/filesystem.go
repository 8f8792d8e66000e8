package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
)

// StorageFS is a filesystem-based blob store
type StorageFS struct {
	Root string
	log  logs.Log
}

func NewStorageFS(log logs.Log, root string) (*StorageFS, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create root directory %v (relative path %v): %w", absRoot, root, err)
	}
	return &StorageFS{
		Root: absRoot,
		log:  log,
	}, nil
}

func (fs *StorageFS) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("Invalid file name %v", name)
	}
	return filepath.Join(fs.Root, name), nil
}

func (fs *StorageFS) WriteFile(ctx context.Context, name, contentType string) (io.WriteCloser, error) {
	fullPath, err := fs.path(name)
	if err != nil {
		return nil, err
	}
	fs.log.Debugf("Writing file %v", name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(fullPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
}

func (fs *StorageFS) ReadFile(ctx context.Context, name string) (*File, error) {
	fullPath, err := fs.path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &File{
		Reader:      file,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		ModifiedAt:  st.ModTime(),
		Size:        st.Size(),
	}, nil
}

func (fs *StorageFS) DeleteFile(ctx context.Context, name string) error {
	fullPath, err := fs.path(name)
	if err != nil {
		return err
	}
	fs.log.Infof("Deleting file %v", name)
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (fs *StorageFS) Close() error {
	return nil
}
