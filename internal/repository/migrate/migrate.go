// Package migrate creates and removes the DynamoDB tables used by zplace.
package migrate

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// TableClient is the part of the DynamoDB API the migrations use.
type TableClient interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Migration creates one table.
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client TableClient) error
	Down(ctx context.Context, client TableClient) error
}

// All returns the migrations in the order they are applied.
func All(classTable string) []Migration {
	return []Migration{
		&CreateObjectClassTable{Table: classTable},
	}
}

// Up applies every migration whose table does not exist yet.
func Up(ctx context.Context, client TableClient, migrations []Migration) error {
	for _, m := range migrations {
		exists, err := tableExists(ctx, client, m.TableName())
		if err != nil {
			return err
		}
		if exists {
			log.Debugf("migration %s: table %s exists", m.Version(), m.TableName())
			continue
		}
		log.Infof("applying migration %s", m.Version())
		if err := m.Up(ctx, client); err != nil {
			return err
		}
	}
	return nil
}

// Down reverts the migrations in reverse order, skipping missing tables.
func Down(ctx context.Context, client TableClient, migrations []Migration) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		exists, err := tableExists(ctx, client, m.TableName())
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		log.Infof("reverting migration %s", m.Version())
		if err := m.Down(ctx, client); err != nil {
			return err
		}
	}
	return nil
}

func tableExists(ctx context.Context, client TableClient, table string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}
