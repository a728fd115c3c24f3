// Package notify mirrors deployment changes to an AMQP topic exchange, so
// systems other than the connected GUIs can follow deployment progress.
// Publishing is best-effort: failures are logged and never affect the
// deployment itself.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/stevedore-dev/stevedore/pkg/deploy"
)

// Publisher publishes deployment changes as JSON events. Routing keys are
// "deployment.<status>".
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// New connects to the broker and declares the topic exchange.
func New(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "notify"),
	}, nil
}

// PublishChange publishes one deployment change.
func (p *Publisher) PublishChange(ctx context.Context, change deploy.Change) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(change)
	if err != nil {
		return err
	}
	key := "deployment." + string(change.Status)
	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err == nil {
		p.logger.Info("published",
			slog.String("key", key), slog.String("exchange", p.exchange))
	}
	return err
}

// Close tears down the broker connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}
