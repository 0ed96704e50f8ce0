package kinesis

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/example/missing-persons/internal/logging"
	"github.com/sirupsen/logrus"
)

var logger = logging.Component("relay")

// Relay forwards DynamoDB stream records arriving through Kinesis to a
// Publisher as change events
type Relay struct {
	publisher store.Publisher
}

func NewRelay(publisher store.Publisher) *Relay {
	return &Relay{publisher: publisher}
}

// Handle reports every record it could not convert or publish as a batch item
// failure so Kinesis retries only those
func (r *Relay) Handle(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	logger.WithField("records", len(kinesisEvent.Records)).Info("[Relay] Received batch")

	var batchItemFailures []events.KinesisBatchItemFailure
	skipped := 0

	for _, record := range kinesisEvent.Records {
		log := logger.WithField("event_id", record.EventID)

		ev, err := ConvertFromKinesisRecord(record)
		if err != nil {
			log.WithError(err).Warn("[Relay] Failed to convert record")
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}
		if ev == nil {
			skipped++
			continue
		}

		// Keyed by record id so one record's changes stay on one partition
		if err := r.publisher.Publish(ctx, ev.ID, ev); err != nil {
			log.WithError(err).Warn("[Relay] Failed to publish change")
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}

		log.WithFields(logrus.Fields{"kind": ev.Kind, "id": ev.ID}).Debug("[Relay] Published change")
	}

	logger.WithFields(logrus.Fields{
		"published": len(kinesisEvent.Records) - len(batchItemFailures) - skipped,
		"failed":    len(batchItemFailures),
		"skipped":   skipped,
	}).Info("[Relay] Batch done")

	return events.KinesisEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}
