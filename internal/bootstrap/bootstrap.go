package bootstrap

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/missing-persons/internal/config"
	"github.com/example/missing-persons/internal/infrastructure/kafka"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/media"
)

var logger = logging.Component("bootstrap")

// Closer releases whatever a backend opened
type Closer func()

func noopCloser() {}

// OpenStore builds the RemoteStore selected by STORE_BACKEND
func OpenStore(ctx context.Context, cfg *config.Config) (store.RemoteStore, Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("[Bootstrap] Using in-memory store")
		return store.NewMemoryStore(), noopCloser, nil

	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		records := store.NewPostgresStore(db, producer)
		if err := records.EnsureSchema(ctx); err != nil {
			producer.Close()
			db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.WithField("topic", cfg.KafkaTopic).Info("[Bootstrap] Using PostgreSQL store with Kafka change feed")
		return store.Compose(records, kafka.NewChangeFeed(cfg.KafkaBrokers, cfg.KafkaTopic)), func() {
			producer.Close()
			db.Close()
		}, nil

	case config.BackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		records := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		logger.WithField("table", cfg.DynamoTable).Info("[Bootstrap] Using DynamoDB store with Kafka change feed")
		return store.Compose(records, kafka.NewChangeFeed(cfg.KafkaBrokers, cfg.KafkaTopic)), noopCloser, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// OpenMedia builds the ingestion pipeline over the backend selected by
// MEDIA_BACKEND
func OpenMedia(ctx context.Context, cfg *config.Config) (*media.Pipeline, Closer, error) {
	switch cfg.MediaBackend {
	case config.BackendMemory:
		logger.Info("[Bootstrap] Using in-memory media store")
		objects := media.NewMemoryStore(cfg.MediaPublicBaseURL)
		return media.NewPipeline(objects, cfg.MediaMaxBytes), noopCloser, nil

	case config.BackendGCS:
		client, err := media.NewGCSClient(ctx, cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		objects, err := media.NewGCSStore(ctx, client, cfg.GCSBucket, cfg.MediaPublicBaseURL)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.WithField("bucket", cfg.GCSBucket).Info("[Bootstrap] Using Google Cloud Storage")
		return media.NewPipeline(objects, cfg.MediaMaxBytes), func() { objects.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown media backend %q", cfg.MediaBackend)
}
