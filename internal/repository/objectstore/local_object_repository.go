package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalObjectRepository keeps documents on the local file system; keys are
// file paths.
type LocalObjectRepository struct{}

func NewLocalObjectRepository() LocalObjectRepository {
	return LocalObjectRepository{}
}

func (r *LocalObjectRepository) Upload(ctx context.Context, key string, reader io.Reader, quiet bool) (string, error) {
	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	f, err := os.Create(key)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return key, nil
}

func (r *LocalObjectRepository) Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error) {
	return os.Open(key)
}

func (r *LocalObjectRepository) Delete(ctx context.Context, key string) error {
	if err := os.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (r *LocalObjectRepository) GetBucketName() string {
	return ""
}

func (r *LocalObjectRepository) GetStorageType() string {
	return string(LocalType)
}
