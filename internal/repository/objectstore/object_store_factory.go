package objectstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientProvider hands out cloud clients on demand.
type ClientProvider interface {
	AWSConfig(ctx context.Context) (aws.Config, error)
	GCSClient(ctx context.Context) (*storage.Client, error)
}

// ObjectRepositoryFactory creates object repository instances
type ObjectRepositoryFactory struct {
	clients ClientProvider
}

// NewObjectRepositoryFactory creates a new factory
func NewObjectRepositoryFactory(clients ClientProvider) *ObjectRepositoryFactory {
	return &ObjectRepositoryFactory{clients: clients}
}

// CreateRepository creates a repository for the bucket of loc. Cloud clients
// are only created when a location on that cloud is used.
func (f *ObjectRepositoryFactory) CreateRepository(ctx context.Context, loc Location) (ObjectRepository, error) {
	switch loc.Type {
	case S3Type:
		awsConfig, err := f.clients.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		repo := NewS3ObjectRepository(s3.NewFromConfig(awsConfig), loc.Bucket)
		return &repo, nil
	case GCSType:
		client, err := f.clients.GCSClient(ctx)
		if err != nil {
			return nil, err
		}
		repo := NewGCSObjectRepository(client, loc.Bucket)
		return &repo, nil
	case LocalType:
		repo := NewLocalObjectRepository()
		return &repo, nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", loc.Type)
	}
}
