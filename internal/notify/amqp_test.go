package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcertificates/internal/domain"
)

type fakeChannel struct {
	mu        sync.Mutex
	closed    bool
	published []amqp.Publishing
	keys      []string
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

// fakeBroker hands out sessions whose connection loss the test triggers.
type fakeBroker struct {
	mu       sync.Mutex
	failNext int
	channels []*fakeChannel
	lost     []chan *amqp.Error
	closes   int
}

func (b *fakeBroker) dial(url, exchange string) (*amqpSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		return nil, errors.New("connection refused")
	}
	ch := &fakeChannel{}
	lost := make(chan *amqp.Error, 1)
	b.channels = append(b.channels, ch)
	b.lost = append(b.lost, lost)
	return &amqpSession{
		channel: ch,
		lost:    lost,
		close: func() error {
			b.mu.Lock()
			b.closes++
			b.mu.Unlock()
			return nil
		},
	}, nil
}

func (b *fakeBroker) dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func (b *fakeBroker) channel(i int) *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[i]
}

func (b *fakeBroker) dropConnection(i int) {
	b.mu.Lock()
	lost := b.lost[i]
	b.mu.Unlock()
	lost <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker restarted"}
}

func TestAMQPSink_Publish(t *testing.T) {
	broker := &fakeBroker{}
	sink, err := newAMQPSink("amqp://test", "", testLogger, broker.dial, time.Millisecond)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), domain.NotificationSent, domain.StepSummary{EventID: "ev-1"}))

	ch := broker.channel(0)
	require.Equal(t, 1, ch.count())
	assert.Equal(t, []string{domain.NotificationSent}, ch.keys)
	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var env map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, msg.MessageId, env["id"])
	assert.Equal(t, domain.NotificationSent, env["type"])
}

func TestAMQPSink_ReconnectsAfterConnectionLoss(t *testing.T) {
	broker := &fakeBroker{}
	sink, err := newAMQPSink("amqp://test", DefaultExchange, testLogger, broker.dial, time.Millisecond)
	require.NoError(t, err)
	defer sink.Close()

	broker.failNext = 2
	broker.dropConnection(0)

	assert.Eventually(t, func() bool { return broker.dials() == 2 }, time.Second, time.Millisecond,
		"redialled after two failed attempts")
	assert.Eventually(t, func() bool {
		return sink.Publish(context.Background(), domain.NotificationGenerated, nil) == nil
	}, time.Second, time.Millisecond)

	assert.Zero(t, broker.channel(0).count())
	assert.Equal(t, 1, broker.channel(1).count())
}

func TestAMQPSink_ClosedChannelTriggersReconnect(t *testing.T) {
	broker := &fakeBroker{}
	sink, err := newAMQPSink("amqp://test", DefaultExchange, testLogger, broker.dial, time.Millisecond)
	require.NoError(t, err)
	defer sink.Close()

	first := broker.channel(0)
	first.mu.Lock()
	first.closed = true
	first.mu.Unlock()

	err = sink.Publish(context.Background(), domain.NotificationSent, nil)
	assert.ErrorIs(t, err, errAMQPUnavailable)

	// Closing the session surfaces as a lost connection.
	broker.dropConnection(0)
	assert.Eventually(t, func() bool {
		return sink.Publish(context.Background(), domain.NotificationSent, nil) == nil
	}, time.Second, time.Millisecond)
}

func TestAMQPSink_Close(t *testing.T) {
	broker := &fakeBroker{}
	sink, err := newAMQPSink("amqp://test", DefaultExchange, testLogger, broker.dial, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Publish(context.Background(), domain.NotificationSent, nil))

	broker.dropConnection(0)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, broker.dials(), "no reconnect after Close")
}

func TestNewAMQPSink_DialFailure(t *testing.T) {
	broker := &fakeBroker{failNext: 1}
	_, err := newAMQPSink("amqp://test", DefaultExchange, testLogger, broker.dial, time.Millisecond)
	require.Error(t, err)
}
