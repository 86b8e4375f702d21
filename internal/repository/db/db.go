package db

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zzenonn/zplace/internal/repository/migrate"
)

type DynamoDb struct {
	Client *dynamodb.Client
	// ClassTable is the table holding registered object classes.
	ClassTable string
}

func NewDatabase(awsConfig aws.Config, classTable string) (*DynamoDb, error) {
	return &DynamoDb{
		Client:     dynamodb.NewFromConfig(awsConfig),
		ClassTable: classTable,
	}, nil
}

// MigrateDb creates every missing table.
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	return migrate.Up(ctx, d.Client, migrate.All(d.ClassTable))
}

// MigrateDown drops the tables created by MigrateDb.
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	return migrate.Down(ctx, d.Client, migrate.All(d.ClassTable))
}
