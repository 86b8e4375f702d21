package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
)

// StoredDocument describes where a document lives.
type StoredDocument struct {
	Storage  string `json:"storage"`
	Bucket   string `json:"bucket,omitempty"`
	Location string `json:"location"`
}

// DocumentStore reads and writes whole documents by location.
type DocumentStore struct {
	factory *ObjectRepositoryFactory
	quiet   bool
}

// NewDocumentStore returns a store that shows transfer progress unless quiet.
func NewDocumentStore(factory *ObjectRepositoryFactory, quiet bool) *DocumentStore {
	return &DocumentStore{factory: factory, quiet: quiet}
}

func (s *DocumentStore) open(ctx context.Context, uri string) (ObjectRepository, Location, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, Location{}, err
	}
	repo, err := s.factory.CreateRepository(ctx, loc)
	if err != nil {
		return nil, Location{}, err
	}
	return repo, loc, nil
}

func describe(repo ObjectRepository, where string) StoredDocument {
	return StoredDocument{
		Storage:  repo.GetStorageType(),
		Bucket:   repo.GetBucketName(),
		Location: where,
	}
}

// Locate resolves uri to the repository that would hold it without
// touching the document.
func (s *DocumentStore) Locate(ctx context.Context, uri string) (StoredDocument, error) {
	repo, loc, err := s.open(ctx, uri)
	if err != nil {
		return StoredDocument{}, err
	}
	return describe(repo, loc.String()), nil
}

// Fetch reads the document at uri.
func (s *DocumentStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	repo, loc, err := s.open(ctx, uri)
	if err != nil {
		return nil, err
	}

	rc, err := repo.Download(ctx, loc.Key, s.quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", loc, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc, err)
	}
	return data, nil
}

// Store writes data to uri.
func (s *DocumentStore) Store(ctx context.Context, uri string, data []byte) (StoredDocument, error) {
	repo, loc, err := s.open(ctx, uri)
	if err != nil {
		return StoredDocument{}, err
	}
	where, err := repo.Upload(ctx, loc.Key, bytes.NewReader(data), s.quiet)
	if err != nil {
		return StoredDocument{}, err
	}
	return describe(repo, where), nil
}

// Delete removes the document at uri. A missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, uri string) error {
	repo, loc, err := s.open(ctx, uri)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, loc.Key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", loc, err)
	}
	log.Debugf("deleted %s from %s", loc, repo.GetStorageType())
	return nil
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
