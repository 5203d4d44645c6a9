// Package events announces new submissions to the review process.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RoutingKeySubmissionCreated is used for every new submission.
const RoutingKeySubmissionCreated = "submission.created"

// Notifier is told about each submission after it is stored.
type Notifier interface {
	SubmissionCreated(ctx context.Context, sub *models.Submission) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) SubmissionCreated(context.Context, *models.Submission) error { return nil }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialFunc establishes a RabbitMQ connection.
type DialFunc func() (*amqp.Connection, error)

// Publisher sends persistent JSON messages to a topic exchange and
// re-dials when the broker drops the connection.
type Publisher struct {
	exchange string
	dial     DialFunc
	log      *zap.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     channel
	closed bool
}

// NewPublisher dials url and declares exchange as a durable topic exchange.
func NewPublisher(url, exchange string, log *zap.Logger) (*Publisher, error) {
	dial := func() (*amqp.Connection, error) { return amqp.Dial(url) }
	conn, err := dial()
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := openChannel(conn, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p := &Publisher{exchange: exchange, dial: dial, log: log, conn: conn, ch: ch}
	go p.watchConnection()
	return p, nil
}

func openChannel(conn *amqp.Connection, exchange string) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, nil
}

func (p *Publisher) watchConnection() {
	for {
		p.mu.RLock()
		conn, closed := p.conn, p.closed
		p.mu.RUnlock()
		if closed || conn == nil {
			return
		}

		amqpErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))

		p.mu.RLock()
		closed = p.closed
		p.mu.RUnlock()
		if closed {
			return
		}
		p.log.Warn("RabbitMQ connection closed", zap.Error(amqpErr))
		p.reconnect()
	}
}

func (p *Publisher) reconnect() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return
		}

		conn, err := p.dial()
		if err == nil {
			var ch *amqp.Channel
			if ch, err = openChannel(conn, p.exchange); err == nil {
				p.mu.Lock()
				p.conn, p.ch = conn, ch
				p.mu.Unlock()
				p.log.Info("reconnected to RabbitMQ")
				return
			}
			conn.Close()
		}
		p.log.Error("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

// PublishJSON marshals body and publishes it with routingKey.
func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.mu.RLock()
	ch, closed := p.ch, p.closed
	p.mu.RUnlock()
	if closed {
		return errors.New("publisher is closed")
	}
	if ch == nil {
		return errors.New("channel is not available")
	}
	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         b,
	})
}

func (p *Publisher) SubmissionCreated(ctx context.Context, sub *models.Submission) error {
	return p.PublishJSON(ctx, RoutingKeySubmissionCreated, sub)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
