// Package rabbit carries registration notifications between the API and the
// mail worker over a durable direct exchange.
package rabbit

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// Topology names the exchange and queue notifications travel through.
// The queue is bound with its own name as the routing key.
type Topology struct {
	Exchange string
	Queue    string
}

func (t Topology) validate() error {
	if t.Exchange == "" || t.Queue == "" {
		return errors.New("notification exchange and queue must both be set")
	}
	return nil
}

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	topo    Topology
}

type Rabbiter interface {
	Close()
	Publish(ctx context.Context, message []byte) error
	Consume(handler func([]byte) error) error
}

var _ Rabbiter = (*Client)(nil)

// NewRabbit dials the broker and declares the notification topology.
func NewRabbit(url, exchange, queue string) (*Client, error) {
	topo := Topology{Exchange: exchange, Queue: queue}
	if err := topo.validate(); err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("notification broker unreachable")
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open notification channel")
		return nil, err
	}

	c := &Client{conn: conn, channel: ch, topo: topo}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}

	zlog.Logger.Info().
		Str("exchange", topo.Exchange).
		Str("queue", topo.Queue).
		Msg("notification queue ready")
	return c, nil
}

func (c *Client) declareTopology() error {
	if err := c.channel.ExchangeDeclare(c.topo.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Str("exchange", c.topo.Exchange).Msg("failed to declare notification exchange")
		return err
	}
	if _, err := c.channel.QueueDeclare(c.topo.Queue, true, false, false, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Str("queue", c.topo.Queue).Msg("failed to declare notification queue")
		return err
	}
	if err := c.channel.QueueBind(c.topo.Queue, c.topo.Queue, c.topo.Exchange, false, nil); err != nil {
		zlog.Logger.Error().Err(err).Str("queue", c.topo.Queue).Msg("failed to bind notification queue")
		return err
	}
	// One unacked notification per consumer.
	return c.channel.Qos(1, 0, false)
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("notification broker connection closed")
}

func notification(body []byte, at time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    at,
	}
}

// Publish enqueues one notification; it survives a broker restart.
func (c *Client) Publish(ctx context.Context, message []byte) error {
	err := c.channel.PublishWithContext(ctx, c.topo.Exchange, c.topo.Queue, false, false, notification(message, time.Now()))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to enqueue notification")
		return err
	}
	zlog.Logger.Debug().Int("bytes", len(message)).Msg("notification enqueued")
	return nil
}

// Consume hands each notification to handler. Failures are dropped rather
// than requeued so a bad payload cannot loop.
func (c *Client) Consume(handler func([]byte) error) error {
	deliveries, err := c.channel.Consume(c.topo.Queue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("queue", c.topo.Queue).Msg("failed to subscribe to notifications")
		return err
	}

	go func() {
		for d := range deliveries {
			if err := handler(d.Body); err != nil {
				zlog.Logger.Warn().Err(err).Msg("notification dropped")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
		zlog.Logger.Info().Msg("notification deliveries stopped")
	}()

	zlog.Logger.Info().Str("queue", c.topo.Queue).Msg("consuming notifications")
	return nil
}
