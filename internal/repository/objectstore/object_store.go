// Package objectstore reads and writes the documents the placement tools work
// with (pool topologies and scan reports) on S3, GCS or the local disk.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ObjectRepository defines the interface for object storage operations
type ObjectRepository interface {
	Upload(ctx context.Context, key string, r io.Reader, quiet bool) (string, error)
	Download(ctx context.Context, key string, quiet bool) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	GetBucketName() string
	GetStorageType() string
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type    RepositoryType = "s3"
	GCSType   RepositoryType = "gcs"
	LocalType RepositoryType = "file"
)

// Location is a parsed document address.
type Location struct {
	Type   RepositoryType
	Bucket string
	// Key is the object key, or the file path for local documents.
	Key string
}

func (l Location) String() string {
	switch l.Type {
	case S3Type:
		return "s3://" + l.Bucket + "/" + l.Key
	case GCSType:
		return "gs://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseLocation parses "s3://bucket/key", "gs://bucket/key", "file:///path"
// or a bare path.
func ParseLocation(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Location{}, fmt.Errorf("empty document location")
	}

	if !strings.Contains(uri, "://") {
		return Location{Type: LocalType, Key: uri}, nil
	}

	parts := strings.SplitN(uri, "://", 2)
	scheme := strings.ToLower(strings.TrimSpace(parts[0]))
	rest := strings.TrimSpace(parts[1])

	var repoType RepositoryType
	switch scheme {
	case "s3":
		repoType = S3Type
	case "gs":
		repoType = GCSType
	case "file":
		if rest == "" {
			return Location{}, fmt.Errorf("file location without a path: %s", uri)
		}
		return Location{Type: LocalType, Key: rest}, nil
	default:
		return Location{}, fmt.Errorf("unsupported scheme: %s", scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("bucket name cannot be empty")
	}
	if key == "" {
		return Location{}, fmt.Errorf("object key cannot be empty: %s", uri)
	}
	return Location{Type: repoType, Bucket: bucket, Key: key}, nil
}
