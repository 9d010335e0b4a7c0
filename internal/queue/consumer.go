package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/common/metrics"
	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"
)

// Sender is satisfied by dispatch.Dispatcher.
type Sender interface {
	SendNotification(ctx context.Context, req models.NotificationRequest) models.Result
}

// FailedPublisher receives requests whose dispatch ended in failure.
type FailedPublisher interface {
	PublishFailed(ctx context.Context, record FailedRecord) error
}

type FailedRecord struct {
	Request models.NotificationRequest `json:"request"`
	Result  models.Result              `json:"result"`
}

// Disposition of one delivery.
const (
	DispositionAcked    = "acked"
	DispositionRejected = "rejected"
	DispositionFailed   = "failed"
)

type Consumer struct {
	sender  Sender
	failed  FailedPublisher
	workers int
	log     logger.Logger
}

func NewConsumer(sender Sender, failed FailedPublisher, workers int, log logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		sender:  sender,
		failed:  failed,
		workers: workers,
		log:     log.WithFields(map[string]interface{}{"component": "queue-consumer"}),
	}
}

// Run processes deliveries until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.Handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()
}

// Handle dispatches one delivery. A malformed payload is rejected without
// requeue; anything that reached a terminal dispatch outcome is acked.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) string {
	req, err := decodeRequest(d.Body)
	if err != nil {
		c.log.Warn("Rejecting malformed notification message", map[string]interface{}{
			"deliveryTag": d.DeliveryTag,
			"error":       err.Error(),
		})
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.Error("Failed to nack message", map[string]interface{}{"error": nackErr.Error()})
		}
		metrics.QueueMessages.WithLabelValues(DispositionRejected).Inc()
		return DispositionRejected
	}

	result := c.sender.SendNotification(ctx, req)
	disposition := DispositionAcked
	if !result.Success {
		disposition = DispositionFailed
		if c.failed != nil {
			if err := c.failed.PublishFailed(context.WithoutCancel(ctx), FailedRecord{Request: req, Result: result}); err != nil {
				c.log.Error("Failed to park failed notification", map[string]interface{}{
					"logId": result.LogID,
					"error": err.Error(),
				})
			}
		}
	}

	if err := d.Ack(false); err != nil {
		c.log.Error("Failed to ack message", map[string]interface{}{
			"deliveryTag": d.DeliveryTag,
			"error":       err.Error(),
		})
	}
	metrics.QueueMessages.WithLabelValues(disposition).Inc()
	return disposition
}

func decodeRequest(body []byte) (models.NotificationRequest, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.NotificationRequest{}, fmt.Errorf("invalid json: %w", err)
	}
	if res := validation.ValidateNotificationRequest(raw); !res.Valid {
		return models.NotificationRequest{}, fmt.Errorf("invalid request: %v", res.GetErrorMessages())
	}

	var req models.NotificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return models.NotificationRequest{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}
