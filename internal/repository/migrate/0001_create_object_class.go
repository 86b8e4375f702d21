package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	ObjectClassTableName = "object_class"
	ObjectClassVersion   = "20250901000000_object_class_table"
)

// tableWait bounds how long Up waits for the table to become active.
var tableWait = 5 * time.Minute

type CreateObjectClassTable struct {
	// Table overrides ObjectClassTableName when set.
	Table string
}

func (m *CreateObjectClassTable) Version() string {
	return ObjectClassVersion
}

func (m *CreateObjectClassTable) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return ObjectClassTableName
}

func (m *CreateObjectClassTable) Up(ctx context.Context, client TableClient) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("name"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("name"),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
		},
		TableName:   aws.String(m.TableName()),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("PlacementObjectClasses"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.TableName()),
	}, tableWait)
}

func (m *CreateObjectClassTable) Down(ctx context.Context, client TableClient) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(m.TableName()),
	})
	return err
}
