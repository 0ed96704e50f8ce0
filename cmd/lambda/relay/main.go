package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/missing-persons/internal/config"
	"github.com/example/missing-persons/internal/infrastructure/kafka"
	"github.com/example/missing-persons/internal/infrastructure/kinesis"
	"github.com/example/missing-persons/internal/logging"
)

var relay *kinesis.Relay

func init() {
	log := logging.Component("relay")

	cfg, err := config.LoadFeed()
	if err != nil {
		log.WithError(err).Fatal("[Lambda Relay] Invalid configuration")
	}
	if err := logging.Configure(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("[Lambda Relay] Unknown LOG_LEVEL, keeping info")
	}

	relay = kinesis.NewRelay(kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic))

	log.WithField("topic", cfg.KafkaTopic).Info("[Lambda Relay] Initialized successfully")
}

func main() {
	lambda.Start(relay.Handle)
}
