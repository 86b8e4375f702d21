package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/objclass"
)

// ItemClient is the part of the DynamoDB API the class repository uses.
type ItemClient interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ClassRepository manages DynamoDB interactions for object classes.
type ClassRepository struct {
	client    ItemClient
	tableName string
}

// NewClassRepository initializes a new ClassRepository.
func NewClassRepository(client ItemClient, tableName string) ClassRepository {
	return ClassRepository{
		client:    client,
		tableName: tableName,
	}
}

func classKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

// PutClass stores a class, replacing any class of the same name.
func (repo *ClassRepository) PutClass(ctx context.Context, attr objclass.Attr) error {
	if err := attr.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(attr)
	if err != nil {
		return fmt.Errorf("failed to marshal class: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      item,
	}
	if _, err := repo.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to store class %s: %w", attr.Name, err)
	}
	return nil
}

// GetClass retrieves a class by name.
func (repo *ClassRepository) GetClass(ctx context.Context, name string) (objclass.Attr, error) {
	result, err := repo.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key:       classKey(name),
	})
	if err != nil {
		return objclass.Attr{}, fmt.Errorf("failed to get class: %w", err)
	}
	if result.Item == nil {
		return objclass.Attr{}, zerrors.NotFoundError("object class", name)
	}

	var attr objclass.Attr
	if err := attributevalue.UnmarshalMap(result.Item, &attr); err != nil {
		return objclass.Attr{}, fmt.Errorf("failed to unmarshal class: %w", err)
	}
	return attr, nil
}

// ListClasses returns every stored class, following scan pagination.
func (repo *ClassRepository) ListClasses(ctx context.Context) ([]objclass.Attr, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(repo.tableName)}

	var out []objclass.Attr
	for {
		result, err := repo.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classes: %w", err)
		}
		var page []objclass.Attr
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal classes: %w", err)
		}
		out = append(out, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// DeleteClass removes a class by name.
func (repo *ClassRepository) DeleteClass(ctx context.Context, name string) error {
	_, err := repo.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(repo.tableName),
		Key:       classKey(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete class: %w", err)
	}
	return nil
}

// LoadInto registers every stored class with reg.
func (repo *ClassRepository) LoadInto(ctx context.Context, reg *objclass.Registry) (int, error) {
	classes, err := repo.ListClasses(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range classes {
		if err := reg.Register(a); err != nil {
			return 0, err
		}
	}
	return len(classes), nil
}
