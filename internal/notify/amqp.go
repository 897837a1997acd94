package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange certificate notifications are published to.
const DefaultExchange = "certificates"

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// errAMQPUnavailable is returned by Publish while the sink is reconnecting.
var errAMQPUnavailable = errors.New("amqp connection unavailable, reconnecting")

// amqpChannel is the part of *amqp.Channel the sink publishes through.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
}

// amqpSession is one live connection with its channel and declared exchange.
type amqpSession struct {
	channel amqpChannel
	// lost receives (or is closed) when the broker connection goes away.
	lost  <-chan *amqp.Error
	close func() error
}

type dialFunc func(url, exchange string) (*amqpSession, error)

func dialAMQP(url, exchange string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpSession{
		channel: ch,
		lost:    conn.NotifyClose(make(chan *amqp.Error, 1)),
		close: func() error {
			_ = ch.Close()
			return conn.Close()
		},
	}, nil
}

// AMQPSink publishes notifications to a RabbitMQ topic exchange with the notification
// name as routing key. A lost connection is redialled in the background with exponential
// backoff; publishes in the meantime fail fast.
type AMQPSink struct {
	url        string
	exchange   string
	logger     *slog.Logger
	dial       dialFunc
	retryDelay time.Duration

	mu      sync.Mutex
	session *amqpSession
	closed  bool
	done    chan struct{}
}

// NewAMQPSink dials url, declares the exchange and starts watching the connection.
func NewAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	return newAMQPSink(url, exchange, logger, dialAMQP, minReconnectDelay)
}

func newAMQPSink(url, exchange string, logger *slog.Logger, dial dialFunc, retryDelay time.Duration) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	sess, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	s := &AMQPSink{
		url:        url,
		exchange:   exchange,
		logger:     logger,
		dial:       dial,
		retryDelay: retryDelay,
		session:    sess,
		done:       make(chan struct{}),
	}
	logger.Info("connected to RabbitMQ", "exchange", exchange)
	go s.watch(sess)
	return s, nil
}

// watch waits for the current session to drop and replaces it, until Close.
func (s *AMQPSink) watch(sess *amqpSession) {
	for {
		select {
		case <-s.done:
			return
		case err := <-sess.lost:
			if s.isClosed() {
				return
			}
			s.logger.Warn("RabbitMQ connection lost", "exchange", s.exchange, "err", err)
			s.mu.Lock()
			if s.session == sess {
				s.session = nil
			}
			s.mu.Unlock()
			_ = sess.close()

			next, ok := s.reconnect()
			if !ok {
				return
			}
			sess = next
		}
	}
}

func (s *AMQPSink) reconnect() (*amqpSession, bool) {
	delay := s.retryDelay
	for {
		select {
		case <-s.done:
			return nil, false
		case <-time.After(delay):
		}
		sess, err := s.dial(s.url, s.exchange)
		if err != nil {
			s.logger.Warn("RabbitMQ reconnect failed", "exchange", s.exchange, "retry_in", delay, "err", err)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sess.close()
			return nil, false
		}
		s.session = sess
		s.mu.Unlock()
		s.logger.Info("reconnected to RabbitMQ", "exchange", s.exchange)
		return sess, true
	}
}

func (s *AMQPSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *AMQPSink) Publish(ctx context.Context, name string, payload any) error {
	env := NewEnvelope(name, payload)
	body, err := env.marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("amqp sink closed")
	}
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return errAMQPUnavailable
	}
	if sess.channel.IsClosed() {
		// A channel-level error leaves the connection up; closing it hands recovery to watch.
		s.session = nil
		s.mu.Unlock()
		_ = sess.close()
		return errAMQPUnavailable
	}
	defer s.mu.Unlock()
	err = sess.channel.PublishWithContext(ctx, s.exchange, name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", s.exchange, name, err)
	}
	s.logger.Debug("published notification", "exchange", s.exchange, "routing_key", name, "message_id", env.ID)
	return nil
}

// Close stops reconnecting and closes the current connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		return sess.close()
	}
	return nil
}
