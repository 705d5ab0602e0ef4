package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pressograph/prefsync"
)

// DefaultExchange is the topic exchange preference events are published to.
const DefaultExchange = "pressograph.preferences"

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes every change as a persistent JSON Event on a
// durable topic exchange, routed by RoutingKey.
type RabbitMQPublisher struct {
	conn     io.Closer
	channel  amqpChannel
	exchange string
	logger   prefsync.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url and declares exchange. An empty exchange
// uses DefaultExchange.
func NewRabbitMQPublisher(url, exchange string, logger prefsync.Logger) (*RabbitMQPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = prefsync.NewDefaultLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher connected", "exchange", exchange)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Notify publishes change. The event ID doubles as the AMQP message ID so
// consumers can deduplicate redeliveries.
func (p *RabbitMQPublisher) Notify(ctx context.Context, change prefsync.Change) error {
	event := NewEvent(change)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal preference event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         payload,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish preference event",
			"routing_key", event.Type,
			"event_id", event.ID,
			"error", err,
		)
		return err
	}

	p.logger.Debug("preference event published",
		"routing_key", event.Type,
		"event_id", event.ID,
		"size", len(payload),
	)
	return nil
}

// Close closes the channel and then the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}

	p.logger.Info("RabbitMQ publisher closed")
	return nil
}
