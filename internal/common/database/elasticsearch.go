package database

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"notification-dispatch/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// DefaultSearchTimeout applies when the config leaves timeout unset.
const DefaultSearchTimeout = 3 * time.Second

// deliveryLogMapping keeps recipient and status as keywords so ops can
// filter failures per address.
const deliveryLogMapping = `{
  "mappings": {
    "properties": {
      "id":                {"type": "keyword"},
      "recipient":         {"type": "keyword"},
      "templateName":      {"type": "keyword"},
      "notificationType":  {"type": "keyword"},
      "language":          {"type": "keyword"},
      "status":            {"type": "keyword"},
      "transportTier":     {"type": "integer"},
      "transportName":     {"type": "keyword"},
      "providerMessageId": {"type": "keyword"},
      "errorMessage":      {"type": "text"},
      "timestamp":         {"type": "date"}
    }
  }
}`

// ElasticsearchClient wraps the client used to mirror delivery log entries
// into a searchable index. Timeout bounds every request made through it.
type ElasticsearchClient struct {
	Client  *elasticsearch.Client
	Timeout time.Duration
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addrs := cfg.GetAddresses()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("elasticsearch: no addresses configured")
	}

	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}

	esCfg := elasticsearch.Config{
		Addresses:     addrs,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable},
		MaxRetries:    2,
		Transport: &http.Transport{
			ResponseHeaderTimeout: timeout,
			MaxIdleConnsPerHost:   4,
		},
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es, Timeout: timeout}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// EnsureDeliveryLogIndex creates index with the delivery log mapping when it
// does not exist yet. An existing index is left untouched.
func (c *ElasticsearchClient) EnsureDeliveryLogIndex(ctx context.Context, index string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := c.Client.Indices.Exists([]string{index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: %s", index, res.Status())
	}

	res, err = c.Client.Indices.Create(index,
		c.Client.Indices.Create.WithBody(strings.NewReader(deliveryLogMapping)),
		c.Client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	// A concurrent worker may have created it between the two calls.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return nil
}
