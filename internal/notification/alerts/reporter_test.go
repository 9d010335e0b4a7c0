package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/common/logger"
)

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params)
}

func TestSNSReporter_Report(t *testing.T) {
	var captured *sns.PublishInput
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
		},
	}

	r := NewSNSReporter(mock, "arn:aws:sns:me-south-1:123456789012:ops", "notification-dispatch")
	err := r.Report(context.Background(), Alert{
		Kind:    KindLogWriteFailure,
		Message: "delivery log write failed",
		Fields:  map[string]interface{}{"logId": "log-1"},
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "arn:aws:sns:me-south-1:123456789012:ops", aws.ToString(captured.TopicArn))
	assert.Equal(t, "[notification-dispatch] LogWriteFailure", aws.ToString(captured.Subject))
	assert.Equal(t, KindLogWriteFailure, aws.ToString(captured.MessageAttributes["kind"].StringValue))

	var body Alert
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &body))
	assert.Equal(t, "log-1", body.Fields["logId"])
	assert.False(t, body.Timestamp.IsZero())
}

func TestSNSReporter_PublishError(t *testing.T) {
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	err := NewSNSReporter(mock, "arn", "svc").Report(context.Background(), Alert{Kind: KindLogWriteFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestLogReporter_NeverFails(t *testing.T) {
	r := NewLogReporter(logger.NewTestLogger(t))
	assert.NoError(t, r.Report(context.Background(), Alert{Kind: KindLogWriteFailure, Message: "x"}))
}
