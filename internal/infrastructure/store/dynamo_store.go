package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/missing-persons/internal/domain/person"
	"github.com/google/uuid"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore stores records in DynamoDB.
// Changes reach subscribers through DynamoDB Streams -> Kinesis -> the relay
// lambda -> Kafka, so this type only implements Records.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// DynamoItem is the DynamoDB item layout, shared with the stream relay
type DynamoItem struct {
	ID           string `dynamodbav:"id"`
	Name         string `dynamodbav:"name"`
	Age          int    `dynamodbav:"age"`
	LastSeen     string `dynamodbav:"last_seen"`
	Description  string `dynamodbav:"description"`
	Contact      string `dynamodbav:"contact"`
	ImageURL     string `dynamodbav:"image_url"`
	Status       string `dynamodbav:"status"`
	DateReported string `dynamodbav:"date_reported"`
	DateFound    string `dynamodbav:"date_found,omitempty"`
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Query scans the table and orders the result newest report first
func (ds *DynamoStore) Query(ctx context.Context) ([]person.Record, error) {
	records := make([]person.Record, 0)
	var startKey map[string]types.AttributeValue
	for {
		out, err := ds.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(ds.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan records: %w", err)
		}
		for _, item := range out.Items {
			var di DynamoItem
			if err := attributevalue.UnmarshalMap(item, &di); err != nil {
				return nil, fmt.Errorf("failed to unmarshal record: %w", err)
			}
			rec, err := di.Record()
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	person.SortNewestFirst(records)
	return records, nil
}

// Insert writes a new active record. The condition guards against an ID clash.
func (ds *DynamoStore) Insert(ctx context.Context, rec person.Record) (*person.Record, error) {
	created := rec.Clone()
	created.ID = uuid.New().String()
	created.Status = person.StatusActive
	created.DateReported = ds.now().UTC()
	created.DateFound = nil

	av, err := attributevalue.MarshalMap(ItemFromRecord(created))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = ds.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(ds.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put record: %w", err)
	}
	return &created, nil
}

// UpdateStatus applies the found transition with a conditional update
func (ds *DynamoStore) UpdateStatus(ctx context.Context, id string) error {
	_, err := ds.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(ds.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #s = :found, date_found = :now"),
		ConditionExpression: aws.String("attribute_exists(id) AND #s = :active"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":found":  &types.AttributeValueMemberS{Value: string(person.StatusFound)},
			":active": &types.AttributeValueMemberS{Value: string(person.StatusActive)},
			":now":    &types.AttributeValueMemberS{Value: ds.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("failed to update record: %w", err)
	}

	// Condition failed: either missing or already found
	out, err := ds.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(ds.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ProjectionExpression: aws.String("id"),
	})
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	if out.Item == nil {
		return ErrNotFound
	}
	return nil
}

// ItemFromRecord converts a record to its DynamoDB layout
func ItemFromRecord(rec person.Record) DynamoItem {
	di := DynamoItem{
		ID:           rec.ID,
		Name:         rec.Name,
		Age:          rec.Age,
		LastSeen:     rec.LastSeen,
		Description:  rec.Description,
		Contact:      rec.Contact,
		ImageURL:     rec.ImageURL,
		Status:       string(rec.Status),
		DateReported: rec.DateReported.UTC().Format(time.RFC3339Nano),
	}
	if rec.DateFound != nil {
		di.DateFound = rec.DateFound.UTC().Format(time.RFC3339Nano)
	}
	return di
}

// Record converts the DynamoDB layout back to a record
func (di DynamoItem) Record() (person.Record, error) {
	if di.ID == "" {
		return person.Record{}, errors.New("dynamo item without id")
	}
	reported, err := time.Parse(time.RFC3339Nano, di.DateReported)
	if err != nil {
		return person.Record{}, fmt.Errorf("failed to parse date_reported: %w", err)
	}
	rec := person.Record{
		ID:           di.ID,
		Name:         di.Name,
		Age:          di.Age,
		LastSeen:     di.LastSeen,
		Description:  di.Description,
		Contact:      di.Contact,
		ImageURL:     di.ImageURL,
		Status:       person.Status(di.Status),
		DateReported: reported,
	}
	if di.DateFound != "" {
		found, err := time.Parse(time.RFC3339Nano, di.DateFound)
		if err != nil {
			return person.Record{}, fmt.Errorf("failed to parse date_found: %w", err)
		}
		rec.DateFound = &found
	}
	return rec, nil
}
