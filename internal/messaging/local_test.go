package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = 2 * time.Second
	testTopic   = "security_events"
)

func receiveOne(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for security event")
		return nil
	}
}

func subscribe(t *testing.T, sub ISubscriber) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ch, err := sub.Subscribe(ctx)
	require.NoError(t, err)
	return ch
}

func newMemoryPair(topic string) (IPublisher, ISubscriber) {
	ch := NewMemoryChannel()
	return NewMemoryPublisher(ch, topic), NewMemorySubscriber(ch, topic)
}

func TestNewEventMessage(t *testing.T) {
	t.Run("should carry routing metadata", func(t *testing.T) {
		msg := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", []byte(`{}`))

		assert.NotEmpty(t, msg.UUID)
		assert.Equal(t, "SecurityEvent", msg.Metadata.Get(MetadataKind))
		assert.Equal(t, "mfa.verification", msg.Metadata.Get(MetadataEventType))
		assert.Equal(t, "user-1", msg.Metadata.Get(MetadataUserID))
	})

	t.Run("should omit an empty user", func(t *testing.T) {
		msg := NewEventMessage("SecurityEvent", "mfa.method_disabled", "", nil)

		_, ok := msg.Metadata[MetadataUserID]
		assert.False(t, ok)
	})

	t.Run("should assign distinct ids", func(t *testing.T) {
		a := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", nil)
		b := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", nil)
		assert.NotEqual(t, a.UUID, b.UUID)
	})
}

func TestMemoryDeliversSecurityEvents(t *testing.T) {
	pub, sub := newMemoryPair(testTopic)
	defer pub.Close()

	stream := subscribe(t, sub)

	sent := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", []byte(`{"outcome":"failed"}`))
	require.NoError(t, pub.Publish(sent))

	got := receiveOne(t, stream)
	assert.Equal(t, sent.UUID, got.UUID)
	assert.JSONEq(t, `{"outcome":"failed"}`, string(got.Payload))
	assert.Equal(t, "user-1", got.Metadata.Get(MetadataUserID))
	got.Ack()
}

func TestMemoryDeliversEveryEventOfABurst(t *testing.T) {
	pub, sub := newMemoryPair(testTopic)
	defer pub.Close()

	stream := subscribe(t, sub)

	const burst = 5
	pending := make(map[string]bool, burst)
	for range burst {
		msg := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", []byte(`{}`))
		pending[msg.UUID] = true
		require.NoError(t, pub.Publish(msg))
	}

	for range burst {
		msg := receiveOne(t, stream)
		assert.True(t, pending[msg.UUID], "unexpected event %s", msg.UUID)
		delete(pending, msg.UUID)
		msg.Ack()
	}
	assert.Empty(t, pending)
}

func TestMemoryRedeliversNackedEvents(t *testing.T) {
	pub, sub := newMemoryPair(testTopic)
	defer pub.Close()

	stream := subscribe(t, sub)

	sent := NewEventMessage("SecurityEvent", "mfa.verification", "user-1", []byte(`{}`))
	require.NoError(t, pub.Publish(sent))

	first := receiveOne(t, stream)
	first.Nack()

	second := receiveOne(t, stream)
	assert.Equal(t, sent.UUID, second.UUID)
	second.Ack()
}

func TestMemoryReplaysEventsPublishedBeforeSubscribe(t *testing.T) {
	pub, sub := newMemoryPair(testTopic)
	defer pub.Close()

	sent := NewEventMessage("SecurityEvent", "mfa.method_enrolled", "user-1", []byte(`{}`))
	require.NoError(t, pub.Publish(sent))

	got := receiveOne(t, subscribe(t, sub))
	assert.Equal(t, sent.UUID, got.UUID)
	got.Ack()
}

func TestMemoryTopicsAreIsolated(t *testing.T) {
	ch := NewMemoryChannel()
	pubA := NewMemoryPublisher(ch, "security_events")
	subB := NewMemorySubscriber(ch, "audit_replay")
	defer pubA.Close()

	stream := subscribe(t, subB)
	require.NoError(t, pubA.Publish(message.NewMessage(watermill.NewUUID(), []byte(`{}`))))

	select {
	case m := <-stream:
		t.Errorf("audit_replay received %s from security_events", m.UUID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMemoryClose(t *testing.T) {
	t.Run("should refuse to publish after close", func(t *testing.T) {
		pub, _ := newMemoryPair(testTopic)
		require.NoError(t, pub.Close())

		err := pub.Publish(NewEventMessage("SecurityEvent", "mfa.verification", "user-1", nil))
		assert.Error(t, err)
	})

	t.Run("should end the stream when ctx is cancelled", func(t *testing.T) {
		_, sub := newMemoryPair(testTopic)
		defer sub.Close()

		ctx, cancel := context.WithCancel(context.Background())
		stream, err := sub.Subscribe(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-stream:
			assert.False(t, ok)
		case <-time.After(testTimeout):
			t.Fatal("stream stayed open after cancel")
		}
	})
}

func TestTopicSubscriberRequiresTopic(t *testing.T) {
	sub := NewMemorySubscriber(NewMemoryChannel(), "")
	defer sub.Close()

	_, err := sub.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestZapAdapterWith(t *testing.T) {
	logger := newLogger("memory").With(watermill.LogFields{"topic": testTopic})
	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.Error("publish failed", assert.AnError, watermill.LogFields{"uuid": "1"})
		logger.Trace("delivered", nil)
	})
}
