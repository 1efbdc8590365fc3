package core

import (
	"context"
	"fmt"

	"mfaengine/internal/configuration"
	"mfaengine/internal/messaging"
	"mfaengine/internal/models"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// eventTransport opens the broker side of one queue for a given provider.
type eventTransport struct {
	publisher  func(queue string) (messaging.IPublisher, error)
	subscriber func(queue string) (messaging.ISubscriber, error)
}

func newEventTransport(ctx context.Context, config models.EventsConfiguration) (eventTransport, error) {
	switch config.Type {
	case configuration.ProviderJetstream:
		return eventTransport{
			publisher: func(q string) (messaging.IPublisher, error) {
				return messaging.NewJetStreamPublisher(config.Jetstream, q)
			},
			subscriber: func(q string) (messaging.ISubscriber, error) {
				return messaging.NewJetStreamSubscriber(ctx, config.Jetstream, q)
			},
		}, nil
	case configuration.ProviderGCP:
		return eventTransport{
			publisher: func(q string) (messaging.IPublisher, error) {
				return messaging.NewGCPPublisher(config.PubSub, q)
			},
			subscriber: func(q string) (messaging.ISubscriber, error) {
				return messaging.NewGCPSubscriber(config.PubSub, q)
			},
		}, nil
	case configuration.ProviderAWS:
		return eventTransport{
			publisher:  func(q string) (messaging.IPublisher, error) { return messaging.NewAWSPublisher(ctx, q) },
			subscriber: func(q string) (messaging.ISubscriber, error) { return messaging.NewAWSSubscriber(ctx, q) },
		}, nil
	case configuration.ProviderMemory:
		// Publisher and subscriber of a queue must share its channel.
		channels := make(map[string]*gochannel.GoChannel)
		channel := func(q string) *gochannel.GoChannel {
			if _, ok := channels[q]; !ok {
				channels[q] = messaging.NewMemoryChannel()
			}
			return channels[q]
		}
		return eventTransport{
			publisher: func(q string) (messaging.IPublisher, error) {
				return messaging.NewMemoryPublisher(channel(q), q), nil
			},
			subscriber: func(q string) (messaging.ISubscriber, error) {
				return messaging.NewMemorySubscriber(channel(q), q), nil
			},
		}, nil
	default:
		return eventTransport{}, fmt.Errorf("unsupported events provider %q", config.Type)
	}
}

// EventsManager owns the security event publishers and subscribers, keyed by queue key
// (configuration.EventsSecurityEvents).
type EventsManager struct {
	provider    string
	publishers  map[string]messaging.IPublisher
	subscribers map[string]messaging.ISubscriber
}

// NewEventsManager opens a publisher for every configured queue. Subscribers are opened only
// when subscribe is set, that is when this process runs the security events worker.
func NewEventsManager(ctx context.Context, config models.EventsConfiguration, subscribe bool) (*EventsManager, error) {
	transport, err := newEventTransport(ctx, config)
	if err != nil {
		return nil, err
	}

	manager := &EventsManager{
		provider:    config.Type,
		publishers:  make(map[string]messaging.IPublisher, len(config.Queues)),
		subscribers: make(map[string]messaging.ISubscriber, len(config.Queues)),
	}

	for key, queue := range config.Queues {
		publisher, err := transport.publisher(queue.Name)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("publisher %s: %w", key, err)
		}
		manager.publishers[key] = publisher
		manager.logOpened("publisher", key, queue.Name)

		if !subscribe {
			continue
		}

		subscriber, err := transport.subscriber(queue.Name)
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("subscriber %s: %w", key, err)
		}
		manager.subscribers[key] = subscriber
		manager.logOpened("subscriber", key, queue.Name)
	}

	return manager, nil
}

func (em *EventsManager) logOpened(side string, key string, queue string) {
	zap.L().Info("Initialized events "+side,
		zap.String("queue_key", key),
		zap.String("queue", queue),
		zap.String("provider", em.provider))
}

func (em *EventsManager) GetPublisher(key string) messaging.IPublisher {
	publisher, ok := em.publishers[key]
	if !ok {
		zap.L().Warn("Events publisher not found", zap.String("queue_key", key))
		return nil
	}
	return publisher
}

func (em *EventsManager) GetSubscriber(key string) messaging.ISubscriber {
	subscriber, ok := em.subscribers[key]
	if !ok {
		zap.L().Warn("Events subscriber not found", zap.String("queue_key", key))
		return nil
	}
	return subscriber
}

// Close releases publishers before subscribers so in-flight events can still drain.
func (em *EventsManager) Close() {
	for key, publisher := range em.publishers {
		if err := publisher.Close(); err != nil {
			zap.L().Error("Failed to close events publisher", zap.String("queue_key", key), zap.Error(err))
		}
	}
	for key, subscriber := range em.subscribers {
		if err := subscriber.Close(); err != nil {
			zap.L().Error("Failed to close events subscriber", zap.String("queue_key", key), zap.Error(err))
		}
	}
}
