package messaging

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys carried by every security event message.
const (
	MetadataKind      = "type"
	MetadataEventType = "event_type"
	MetadataUserID    = "user_id"
)

// NewEventMessage wraps an encoded event. Kind identifies the payload schema; eventType and
// userID are copied to metadata so brokers and consumers can route without decoding.
func NewEventMessage(kind, eventType, userID string, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataKind, kind)
	msg.Metadata.Set(MetadataEventType, eventType)
	if userID != "" {
		msg.Metadata.Set(MetadataUserID, userID)
	}
	return msg
}

// topicPublisher binds a watermill publisher to the single topic (subject, queue) it serves.
type topicPublisher struct {
	topic     string
	publisher message.Publisher
	release   func()
}

func (p *topicPublisher) Publish(messages ...*message.Message) error {
	return p.publisher.Publish(p.topic, messages...)
}

func (p *topicPublisher) Close() error {
	err := p.publisher.Close()
	if p.release != nil {
		p.release()
	}
	return err
}

type topicSubscriber struct {
	topic      string
	subscriber message.Subscriber
	release    func()
}

func (s *topicSubscriber) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if s.topic == "" {
		return nil, errors.New("subscriber has no topic")
	}
	return s.subscriber.Subscribe(ctx, s.topic)
}

func (s *topicSubscriber) Close() error {
	err := s.subscriber.Close()
	if s.release != nil {
		s.release()
	}
	return err
}
