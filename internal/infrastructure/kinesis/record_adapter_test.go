package kinesis

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeImage(id string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":            events.NewStringAttribute(id),
		"name":          events.NewStringAttribute("Anna"),
		"age":           events.NewNumberAttribute("34"),
		"last_seen":     events.NewStringAttribute("station"),
		"description":   events.NewStringAttribute("red coat"),
		"contact":       events.NewStringAttribute("555-0100"),
		"image_url":     events.NewStringAttribute("https://media.example/a.jpg"),
		"status":        events.NewStringAttribute("active"),
		"date_reported": events.NewStringAttribute("2024-01-15T10:30:00.123456789Z"),
	}
}

func TestConvertDynamoDBImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{
			name:    "valid record",
			image:   activeImage("person-123"),
			wantErr: false,
		},
		{
			name:    "nil image",
			image:   nil,
			wantErr: true,
		},
		{
			name: "missing required fields",
			image: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute("person-123"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := convertDynamoDBImage(tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "person-123", item.ID)
			assert.Equal(t, "Anna", item.Name)
			assert.Equal(t, 34, item.Age)
			assert.Equal(t, "active", item.Status)
		})
	}
}

func TestConvertFromDynamoDBStreamRecord(t *testing.T) {
	t.Run("INSERT becomes inserted", func(t *testing.T) {
		record := events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{NewImage: activeImage("person-123")},
		}

		ev, err := ConvertFromDynamoDBStreamRecord(record)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, store.ChangeInserted, ev.Kind)
		assert.Equal(t, "person-123", ev.ID)
		assert.Equal(t, person.StatusActive, ev.Record.Status)
	})

	t.Run("MODIFY becomes updated", func(t *testing.T) {
		image := activeImage("person-123")
		image["status"] = events.NewStringAttribute("found")
		image["date_found"] = events.NewStringAttribute("2024-01-16T08:00:00Z")
		record := events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change:    events.DynamoDBStreamRecord{NewImage: image},
		}

		ev, err := ConvertFromDynamoDBStreamRecord(record)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, store.ChangeUpdated, ev.Kind)
		assert.True(t, ev.Record.IsFound())
		require.NotNil(t, ev.Record.DateFound)
	})

	t.Run("REMOVE becomes deleted", func(t *testing.T) {
		record := events.DynamoDBEventRecord{
			EventName: "REMOVE",
			Change: events.DynamoDBStreamRecord{
				Keys: map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("person-123")},
			},
		}

		ev, err := ConvertFromDynamoDBStreamRecord(record)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, store.ChangeDeleted, ev.Kind)
		assert.Equal(t, "person-123", ev.ID)
	})

	t.Run("REMOVE without id fails", func(t *testing.T) {
		record := events.DynamoDBEventRecord{EventName: "REMOVE"}

		_, err := ConvertFromDynamoDBStreamRecord(record)
		assert.Error(t, err)
	})

	t.Run("unknown event returns nil", func(t *testing.T) {
		ev, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{EventName: "TTL"})
		require.NoError(t, err)
		assert.Nil(t, ev)
	})
}

func TestConvertFromKinesisRecord(t *testing.T) {
	t.Run("valid Kinesis record", func(t *testing.T) {
		dynamoRecord := events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{NewImage: activeImage("person-123")},
		}

		dynamoRecordJSON, err := json.Marshal(dynamoRecord)
		require.NoError(t, err)

		kinesisRecord := events.KinesisEventRecord{
			EventID: "kinesis-event-1",
			Kinesis: events.KinesisRecord{
				Data: dynamoRecordJSON,
			},
		}

		ev, err := ConvertFromKinesisRecord(kinesisRecord)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, "person-123", ev.ID)
	})
}

func TestBatchConvertFromKinesisEvent(t *testing.T) {
	t.Run("batch conversion with mixed results", func(t *testing.T) {
		validRecord := events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{NewImage: activeImage("person-1")},
		}
		validJSON, _ := json.Marshal(validRecord)

		ttlRecord := events.DynamoDBEventRecord{
			EventName: "TTL",
		}
		ttlJSON, _ := json.Marshal(ttlRecord)

		kinesisEvent := events.KinesisEvent{
			Records: []events.KinesisEventRecord{
				{EventID: "1", Kinesis: events.KinesisRecord{Data: validJSON}},
				{EventID: "2", Kinesis: events.KinesisRecord{Data: ttlJSON}},
				{EventID: "3", Kinesis: events.KinesisRecord{Data: []byte("invalid json")}},
			},
		}

		eventList, errors := BatchConvertFromKinesisEvent(kinesisEvent)

		assert.Len(t, eventList, 1)
		assert.Len(t, errors, 1)
		assert.Equal(t, "person-1", eventList[0].ID)
	})
}
