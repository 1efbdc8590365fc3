package messaging

import (
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewMemoryChannel returns an in-process pub/sub for single-binary deployments. Events
// published before the security events worker subscribes are kept and replayed to it.
func NewMemoryChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		Persistent:          true,
		OutputChannelBuffer: 64,
	}, newLogger("memory"))
}

// NewMemoryPublisher and NewMemorySubscriber share channel. Closing either closes it.
func NewMemoryPublisher(channel *gochannel.GoChannel, topicName string) IPublisher {
	return &topicPublisher{topic: topicName, publisher: channel}
}

func NewMemorySubscriber(channel *gochannel.GoChannel, topicName string) ISubscriber {
	return &topicSubscriber{topic: topicName, subscriber: channel}
}
