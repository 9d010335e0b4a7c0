// Package queue feeds notification requests from RabbitMQ into the dispatcher.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/models"
)

type RabbitMqClient struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Config  config.RabbitMQConfig
}

func NewRabbitMqClient(cfg config.RabbitMQConfig) (*RabbitMqClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return &RabbitMqClient{Conn: conn, Channel: channel, Config: cfg}, nil
}

func (r *RabbitMqClient) Close() {
	r.Channel.Close()
	r.Conn.Close()
}

// SetUpExchangeAndQueue declares the direct exchange and binds the request
// and failed queues to it under their own names.
func (r *RabbitMqClient) SetUpExchangeAndQueue() error {
	if err := r.Channel.ExchangeDeclare(
		r.Config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", r.Config.Exchange, err)
	}

	for _, queueName := range []string{r.Config.Queue, r.Config.FailedQueue} {
		if queueName == "" {
			continue
		}
		if _, err := r.Channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}
		if err := r.Channel.QueueBind(queueName, queueName, r.Config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}
	}
	return nil
}

func (r *RabbitMqClient) Publish(ctx context.Context, routingKey string, message interface{}) error {
	by, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	err = r.Channel.PublishWithContext(
		ctx,
		r.Config.Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         by,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishRequest enqueues a request for asynchronous dispatch.
func (r *RabbitMqClient) PublishRequest(ctx context.Context, req models.NotificationRequest) error {
	return r.Publish(ctx, r.Config.Queue, req)
}

// PublishFailed parks a request whose dispatch ended in failure.
func (r *RabbitMqClient) PublishFailed(ctx context.Context, record FailedRecord) error {
	return r.Publish(ctx, r.Config.FailedQueue, record)
}

// Consume starts delivery from the request queue with manual acks.
func (r *RabbitMqClient) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if r.Config.Prefetch > 0 {
		if err := r.Channel.Qos(r.Config.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	deliveries, err := r.Channel.Consume(r.Config.Queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", r.Config.Queue, err)
	}
	return deliveries, nil
}
