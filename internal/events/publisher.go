// Package events publishes watch mutation events to a message broker so
// other services can follow watch changes without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
)

// Publisher sends one watch event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.WatchEvent) error
}

// AMQPPublisher publishes events as JSON to a durable topic exchange.
// The routing key is "watch.<kind>", e.g. "watch.checked".
type AMQPPublisher struct {
	exchange string
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info("amqp publisher connected", zap.String("exchange", exchange))
	return &AMQPPublisher{exchange: exchange, logger: logger, conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev domain.WatchEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,     // exchange
		RoutingKey(ev), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			MessageId:    fmt.Sprintf("%s-%d", ev.WatchID, ev.Revision),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKey(ev), err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("close amqp channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey returns the topic an event is published under.
func RoutingKey(ev domain.WatchEvent) string {
	return "watch." + string(ev.Kind)
}

// Encode renders the event body. Deleted events carry only the id.
func Encode(ev domain.WatchEvent) ([]byte, error) {
	if ev.Kind == domain.EventDeleted {
		ev.Watch = domain.Watch{ID: ev.WatchID}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

var _ Publisher = (*AMQPPublisher)(nil)
