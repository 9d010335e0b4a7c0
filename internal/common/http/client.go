// Package http builds the retrying HTTP clients used to reach relay tiers.
package http

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"notification-dispatch/internal/common/logger"
)

type ClientOptions struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       logger.Logger
}

// NewClient returns a retryablehttp client whose whole retry budget fits
// inside Timeout. The last response is passed back instead of an error so
// callers can read relay error bodies.
func NewClient(opts ClientOptions) *retryablehttp.Client {
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 100 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 500 * time.Millisecond
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: opts.Timeout}
	client.RetryMax = opts.MaxRetries
	client.RetryWaitMin = opts.RetryWaitMin
	client.RetryWaitMax = opts.RetryWaitMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = leveledLogger{log: opts.Logger}
	}
	return client
}

type leveledLogger struct {
	log logger.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error(msg, toFields(kv)) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug(msg, toFields(kv)) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug(msg, toFields(kv)) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, toFields(kv)) }

func toFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
