package messaging

import (
	"fmt"

	"mfaengine/internal/models"

	"github.com/ThreeDotsLabs/watermill-googlecloud/pkg/googlecloud"
)

func NewGCPPublisher(config *models.PubSubConfiguration, topicName string) (IPublisher, error) {
	publisher, err := googlecloud.NewPublisher(googlecloud.PublisherConfig{
		ProjectID: config.ProjectID,
	}, newLogger("gcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub publisher for %s: %w", topicName, err)
	}

	return &topicPublisher{topic: topicName, publisher: publisher}, nil
}

// NewGCPSubscriber reads security events from the pre-provisioned subscription
// topicName + SubscriptionSuffix. A missing subscription is an error.
func NewGCPSubscriber(config *models.PubSubConfiguration, topicName string) (ISubscriber, error) {
	suffix := config.SubscriptionSuffix
	subscriber, err := googlecloud.NewSubscriber(googlecloud.SubscriberConfig{
		ProjectID:                        config.ProjectID,
		GenerateSubscriptionName:         func(topic string) string { return topic + suffix },
		DoNotCreateSubscriptionIfMissing: true,
	}, newLogger("gcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub subscriber for %s: %w", topicName+suffix, err)
	}

	return &topicSubscriber{topic: topicName, subscriber: subscriber}, nil
}
