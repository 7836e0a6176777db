package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

type putItemAPI interface {
	PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error)
}

type kvItem struct {
	Key         string `dynamodbav:"key"`
	Value       string `dynamodbav:"value"`
	ContentType string `dynamodbav:"content_type"`
	UpdatedAt   string `dynamodbav:"updated_at"`
}

// DynamoDB stores each key as one item in a table keyed by the string attribute "key".
type DynamoDB struct {
	client    putItemAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDB opens a session for cfg.Region, pointed at cfg.Endpoint when set.
func NewDynamoDB(cfg config.DynamoDBConfig) (*DynamoDB, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	// DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &DynamoDB{client: dynamodb.New(sess), tableName: cfg.Table, now: time.Now}, nil
}

func (d *DynamoDB) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	item, err := dynamodbattribute.MarshalMap(kvItem{
		Key:         key,
		Value:       string(value),
		ContentType: contentType,
		UpdatedAt:   d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item %s: %w", key, err)
	}
	return nil
}

func (d *DynamoDB) Close() error { return nil }
