// Package messaging adapts watermill publishers and subscribers for the security event topic.
package messaging

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IPublisher interface {
	Publish(messages ...*message.Message) error
	Close() error
}

type ISubscriber interface {
	// Subscribe returns the message stream of the subscriber's topic. The stream closes with ctx.
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
	Close() error
}
