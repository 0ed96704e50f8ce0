package kinesis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/missing-persons/internal/infrastructure/store"
)

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format) to a store.ChangeEvent.
// DynamoDB Kinesis integration sends records in DynamoDB Streams format.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.ChangeEvent, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}

	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord maps INSERT, MODIFY and REMOVE to inserted,
// updated and deleted. Unknown event names yield nil.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.ChangeEvent, error) {
	switch record.EventName {
	case "INSERT", "MODIFY":
		item, err := convertDynamoDBImage(record.Change.NewImage)
		if err != nil {
			return nil, err
		}
		rec, err := item.Record()
		if err != nil {
			return nil, err
		}
		ev := store.Updated(rec)
		if record.EventName == "INSERT" {
			ev = store.Inserted(rec)
		}
		return &ev, nil

	case "REMOVE":
		image := record.Change.OldImage
		if image == nil {
			image = record.Change.Keys
		}
		v, ok := image["id"]
		if !ok || v.DataType() != events.DataTypeString || v.String() == "" {
			return nil, fmt.Errorf("REMOVE record without id")
		}
		ev := store.Deleted(v.String())
		return &ev, nil
	}
	return nil, nil
}

// convertDynamoDBImage extracts record fields from DynamoDB attribute values.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (store.DynamoItem, error) {
	if image == nil {
		return store.DynamoItem{}, fmt.Errorf("DynamoDB image is nil")
	}

	str := func(key string) string {
		if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	item := store.DynamoItem{
		ID:           str("id"),
		Name:         str("name"),
		LastSeen:     str("last_seen"),
		Description:  str("description"),
		Contact:      str("contact"),
		ImageURL:     str("image_url"),
		Status:       str("status"),
		DateReported: str("date_reported"),
		DateFound:    str("date_found"),
	}
	if v, ok := image["age"]; ok && v.DataType() == events.DataTypeNumber {
		age, err := strconv.Atoi(v.Number())
		if err != nil {
			return store.DynamoItem{}, fmt.Errorf("failed to parse age: %w", err)
		}
		item.Age = age
	}

	// Validate required fields
	if item.ID == "" || item.Status == "" || item.DateReported == "" {
		return store.DynamoItem{}, fmt.Errorf("missing required fields: id=%s, status=%s, date_reported=%s",
			item.ID, item.Status, item.DateReported)
	}

	return item, nil
}

// BatchConvertFromKinesisEvent converts all records from a Kinesis event to change events.
// Returns successfully converted events and any errors encountered.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*store.ChangeEvent, []error) {
	var eventList []*store.ChangeEvent
	var errors []error

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			errors = append(errors, fmt.Errorf("record %s: %w", record.EventID, err))
			continue
		}
		if event != nil {
			eventList = append(eventList, event)
		}
	}

	return eventList, errors
}
