package deliverylog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"notification-dispatch/internal/models"
)

// ElasticsearchRecorder mirrors entries into a search index for ops
// dashboards. The entry ID is the document ID so a retried write cannot
// produce a second document. A positive timeout bounds each write.
type ElasticsearchRecorder struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
}

func NewElasticsearchRecorder(client *elasticsearch.Client, index string, timeout time.Duration) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{client: client, index: index, timeout: timeout}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, entry models.DeliveryLogEntry) error {
	opts := []func(*esapi.IndexRequest){r.client.Index.WithDocumentID(entry.ID)}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
		opts = append(opts, r.client.Index.WithTimeout(r.timeout))
	}
	opts = append(opts, r.client.Index.WithContext(ctx))

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode delivery log entry: %w", err)
	}

	res, err := r.client.Index(r.index, bytes.NewReader(body), opts...)
	if err != nil {
		return fmt.Errorf("index delivery log entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("index delivery log entry: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}
