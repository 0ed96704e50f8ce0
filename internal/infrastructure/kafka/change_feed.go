package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/google/uuid"
)

// ChangeFeed implements store.ChangeFeed on top of a Kafka topic. Every
// subscription reads in its own consumer group from the latest offset, so a
// subscriber sees only events published after it joined.
type ChangeFeed struct {
	brokers   []string
	topic     string
	newReader func(groupID string) MessageReader

	mu   sync.Mutex
	subs map[store.SubscriptionID]*subscription
}

type subscription struct {
	consumer *Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewChangeFeed(brokers []string, topic string) *ChangeFeed {
	f := &ChangeFeed{
		brokers: brokers,
		topic:   topic,
		subs:    make(map[store.SubscriptionID]*subscription),
	}
	f.newReader = func(groupID string) MessageReader {
		return NewConsumer(f.brokers, f.topic, groupID).reader
	}
	return f
}

// NewChangeFeedWithReaders builds a feed whose readers come from newReader
func NewChangeFeedWithReaders(newReader func(groupID string) MessageReader) *ChangeFeed {
	return &ChangeFeed{
		newReader: newReader,
		subs:      make(map[store.SubscriptionID]*subscription),
	}
}

// Subscribe starts a consumer that decodes change events and hands them to handler
func (f *ChangeFeed) Subscribe(ctx context.Context, handler store.Handler) (store.SubscriptionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := store.SubscriptionID(uuid.New().String())
	groupID := "roster-" + string(id)

	// The subscription outlives the ctx passed to Subscribe; only Unsubscribe ends it
	runCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		consumer: NewConsumerFromReader(f.newReader(groupID)),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		defer close(sub.done)
		err := sub.consumer.Consume(runCtx, func(ctx context.Context, key, value []byte) error {
			ev, err := store.DecodeChangeEvent(value)
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			handler(ev)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).WithField("subscription", id).Error("[ChangeFeed] Consumer stopped")
		}
	}()

	logger.WithField("subscription", id).Info("[ChangeFeed] Subscribed")
	return id, nil
}

// Unsubscribe stops the consumer and waits for it to exit, so no callback can
// run afterwards
func (f *ChangeFeed) Unsubscribe(id store.SubscriptionID) error {
	f.mu.Lock()
	sub, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	<-sub.done
	logger.WithField("subscription", id).Info("[ChangeFeed] Unsubscribed")
	return sub.consumer.Close()
}
