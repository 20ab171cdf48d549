package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feed_updater/internal/domain"
)

// RabbitMQ publishes run notifications to a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// Defaults used when the matching Config field is empty.
const (
	DefaultExchange   = "rsrssr"
	DefaultRoutingKey = EventRunCompleted
	DefaultQueue      = "rsrssr_runs"

	exchangeKind = amqp.ExchangeDirect
)

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.RoutingKey == "" {
		c.RoutingKey = DefaultRoutingKey
	}
	if c.QueueName == "" {
		c.QueueName = DefaultQueue
	}
	return c
}

// NewRabbitMQ dials the broker and declares the run topology: a durable
// exchange and a durable queue bound to it under the routing key, so run
// messages are retained until a mirror consumes them.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	cfg = cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareRunTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func declareRunTopology(ch *amqp.Channel, cfg Config) error {
	const (
		durable    = true
		autoDelete = false
		internal   = false
		exclusive  = false
		noWait     = false
	)

	if err := ch.ExchangeDeclare(cfg.Exchange, exchangeKind, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.QueueName, err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", q.Name, cfg.Exchange, err)
	}
	return nil
}

const EventRunCompleted = "run.completed"

// RunMessage announces a finished update run. Consumers such as a remote
// mirror use it as their cue to pull the new database snapshot.
type RunMessage struct {
	Event     string         `json:"event"`
	Run       domain.RunStat `json:"run"`
	Timestamp time.Time      `json:"timestamp"`
}

func newRunPublishing(stat *domain.RunStat, now time.Time) (amqp.Publishing, error) {
	msg := RunMessage{
		Event:     EventRunCompleted,
		Run:       *stat,
		Timestamp: now.UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         EventRunCompleted,
		Body:         body,
		Timestamp:    now,
	}, nil
}

func (r *RabbitMQ) PublishRun(ctx context.Context, stat *domain.RunStat) error {
	publishing, err := newRunPublishing(stat, time.Now())
	if err != nil {
		return err
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		publishing,
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published run",
		"timestamp", stat.Timestamp,
		"entries_new", stat.EntriesNew,
	)

	return nil
}

// Close releases the channel and the connection. It is safe to call on a
// partially built publisher.
func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
