package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	connectAttempts = 10
	maxRetryDelay   = 30 * time.Second
	publishTimeout  = 5 * time.Second
	prefetch        = 32
)

var ErrChannelUnavailable = errors.New("rabbitmq channel not available")

// RabbitMQ is one connection with one shared channel. Publishing on an
// amqp091 channel is not concurrency-safe, so Publish serializes on pubMu.
type RabbitMQ struct {
	url string
	log *logger.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool

	pubMu sync.Mutex
}

// NewRabbitMQ dials with exponential backoff until ctx is done or the
// attempts run out.
func NewRabbitMQ(ctx context.Context, cfg config.MQConfig, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{url: cfg.AMQPURL(), log: log}

	delay := time.Second
	for attempt := 1; ; attempt++ {
		err := r.connect()
		if err == nil {
			log.Info(logger.Entry{
				Action:  "rabbitmq_connected",
				Message: fmt.Sprintf("connected to %s:%d", cfg.Host, cfg.Port),
				Additional: map[string]any{
					"attempt": attempt,
				},
			})
			return r, nil
		}

		log.Warn(logger.Entry{
			Action:  "rabbitmq_connection_attempt_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"attempt":      attempt,
				"max_attempts": connectAttempts,
				"retry_in_sec": delay.Seconds(),
			},
		})
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*3/2, maxRetryDelay)
	}
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ch
}

// Publish sends a transient JSON message. Position frames are superseded
// within seconds, so they are not persisted by the broker.
func (r *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch := r.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrChannelUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	return ch.PublishWithContext(
		publishCtx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now().UTC(),
		},
	)
}

// Consume starts a manual-ack consumer on queue and calls handler for each
// delivery until ctx is done or the channel closes. handler must ack or
// nack every delivery.
func (r *RabbitMQ) Consume(ctx context.Context, queue, consumer string, handler func(amqp.Delivery)) error {
	ch := r.Channel()
	if ch == nil {
		return ErrChannelUnavailable
	}

	msgs, err := ch.Consume(
		queue,
		consumer,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	r.log.Info(logger.Entry{
		Action:  "consumer_started",
		Message: fmt.Sprintf("consuming from queue: %s", queue),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					r.log.Info(logger.Entry{Action: "consumer_stopped", Message: queue})
					return
				}
				handler(msg)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.log.Info(logger.Entry{Action: "rabbitmq_closed", Message: "connection closed"})
}
