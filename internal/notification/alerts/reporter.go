// Package alerts carries operational alerts that must reach a human even
// though the triggering dispatch already returned its result.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"notification-dispatch/internal/common/logger"
)

const KindLogWriteFailure = "LogWriteFailure"

type Alert struct {
	Kind      string                 `json:"kind"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type Reporter interface {
	Report(ctx context.Context, alert Alert) error
}

type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSReporter publishes alerts to an ops topic.
type SNSReporter struct {
	client   SNSAPI
	topicARN string
	service  string
}

func NewSNSReporter(client SNSAPI, topicARN, service string) *SNSReporter {
	return &SNSReporter{client: client, topicARN: topicARN, service: service}
}

func (r *SNSReporter) Report(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	_, err = r.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(r.topicARN),
		Subject:  aws.String(fmt.Sprintf("[%s] %s", r.service, alert.Kind)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(alert.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s alert: %w", alert.Kind, err)
	}
	return nil
}

// LogReporter writes alerts to the error log only. Used when no topic is configured.
type LogReporter struct {
	log logger.Logger
}

func NewLogReporter(log logger.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) Report(_ context.Context, alert Alert) error {
	fields := map[string]interface{}{"alert": alert.Kind}
	for k, v := range alert.Fields {
		fields[k] = v
	}
	r.log.Error(alert.Message, fields)
	return nil
}
