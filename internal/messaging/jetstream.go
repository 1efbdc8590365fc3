package messaging

import (
	"context"
	"fmt"
	"net"
	"time"

	"mfaengine/internal/models"

	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/jetstream"
	"github.com/nats-io/nats.go"
	natsJs "github.com/nats-io/nats.go/jetstream"
)

const jetStreamAckWait = 5 * time.Second

func connectNATS(config *models.JetStreamEventsConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(net.JoinHostPort(config.Host, config.Port), nats.Name("mfaengine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s:%s: %w", config.Host, config.Port, err)
	}
	return nc, nil
}

func NewJetStreamPublisher(config *models.JetStreamEventsConfig, subject string) (IPublisher, error) {
	nc, err := connectNATS(config)
	if err != nil {
		return nil, err
	}

	publisher, err := jetstream.NewPublisher(jetstream.PublisherConfig{
		Conn:   nc,
		Logger: newLogger("jetstream"),
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}

	return &topicPublisher{topic: subject, publisher: publisher, release: nc.Close}, nil
}

// ensureWorkQueue provisions the work-queue stream for subject and its durable consumer.
// Each security event is then delivered to exactly one engine instance.
func ensureWorkQueue(ctx context.Context, nc *nats.Conn, subject string) error {
	js, err := natsJs.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, natsJs.StreamConfig{
		Name:      subject,
		Subjects:  []string{subject},
		Retention: natsJs.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", subject, err)
	}

	consumer := "watermill__" + subject
	if _, err = stream.CreateOrUpdateConsumer(ctx, natsJs.ConsumerConfig{
		Name:      consumer,
		AckPolicy: natsJs.AckExplicitPolicy,
		AckWait:   jetStreamAckWait,
	}); err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", consumer, err)
	}

	return nil
}

func NewJetStreamSubscriber(ctx context.Context, config *models.JetStreamEventsConfig, subject string) (ISubscriber, error) {
	nc, err := connectNATS(config)
	if err != nil {
		return nil, err
	}

	if err = ensureWorkQueue(ctx, nc, subject); err != nil {
		nc.Close()
		return nil, err
	}

	var namer jetstream.ConsumerConfigurator
	subscriber, err := jetstream.NewSubscriber(jetstream.SubscriberConfig{
		Conn:                nc,
		AckWaitTimeout:      jetStreamAckWait,
		ResourceInitializer: jetstream.ExistingConsumer(namer, ""),
		Logger:              newLogger("jetstream"),
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream subscriber: %w", err)
	}

	return &topicSubscriber{topic: subject, subscriber: subscriber, release: nc.Close}, nil
}
