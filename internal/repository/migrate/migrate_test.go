package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeTables struct {
	tables      map[string]bool
	created     []string
	deleted     []string
	describeErr error
}

func newFakeTables(existing ...string) *fakeTables {
	f := &fakeTables{tables: map[string]bool{}}
	for _, t := range existing {
		f.tables[t] = true
	}
	return f
}

func (f *fakeTables) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.tables[*in.TableName] = true
	f.created = append(f.created, *in.TableName)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeTables) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	delete(f.tables, *in.TableName)
	f.deleted = append(f.deleted, *in.TableName)
	return &dynamodb.DeleteTableOutput{}, nil
}

func (f *fakeTables) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if !f.tables[*in.TableName] {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func TestUp(t *testing.T) {
	tests := []struct {
		name        string
		existing    []string
		describeErr error
		wantCreated []string
		wantErr     bool
	}{
		{name: "creates missing table", wantCreated: []string{"classes"}},
		{name: "skips existing table", existing: []string{"classes"}},
		{name: "describe failure", describeErr: errors.New("throttled"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeTables(tt.existing...)
			client.describeErr = tt.describeErr

			err := Up(context.Background(), client, All("classes"))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCreated, client.created)
			require.True(t, client.tables["classes"])
		})
	}
}

func TestDown(t *testing.T) {
	client := newFakeTables("object_class")
	require.NoError(t, Down(context.Background(), client, All("")))
	require.Equal(t, []string{"object_class"}, client.deleted)

	// Nothing left to revert.
	require.NoError(t, Down(context.Background(), client, All("")))
	require.Len(t, client.deleted, 1)
}
