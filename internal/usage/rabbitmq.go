package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQReporter publishes each charge as a persistent JSON message on a topic exchange.
type RabbitMQReporter struct {
	ch         publisher
	closers    []func() error
	exchange   string
	routingKey string
}

// DialRabbitMQ connects and declares a durable topic exchange.
func DialRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQReporter, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq declare exchange %s: %w", cfg.Exchange, err)
	}
	return &RabbitMQReporter{
		ch:         ch,
		closers:    []func() error{ch.Close, conn.Close},
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (r *RabbitMQReporter) AddUsage(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = r.ch.PublishWithContext(ctx,
		r.exchange,   // exchange
		r.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.RunID + ":" + ev.JobID,
			Timestamp:    ev.At,
			Type:         ev.Unit,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq publish usage: %w", err)
	}
	return nil
}

func (r *RabbitMQReporter) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
