package deliverylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/models"
)

func sampleEntry() models.DeliveryLogEntry {
	msgID := "relay-42"
	return models.DeliveryLogEntry{
		ID:                "3f1c8d1e-0000-4000-8000-000000000001",
		Recipient:         "user@example.com",
		TemplateName:      "login_success",
		NotificationType:  "login_success",
		Language:          "ar",
		Status:            models.DeliveryStatusSent,
		TransportTier:     1,
		TransportName:     "dynamic-relay",
		ProviderMessageID: &msgID,
		Timestamp:         time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewPostgresRecorder_RejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewPostgresRecorder(db, "email_logs; DROP TABLE users")
	assert.Error(t, err)
}

func TestPostgresRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec, err := NewPostgresRecorder(db, "email_logs")
	require.NoError(t, err)

	e := sampleEntry()
	mock.ExpectExec(`INSERT INTO email_logs`).
		WithArgs(e.ID, e.Recipient, e.TemplateName,
			sql.NullString{String: "login_success", Valid: true},
			sql.NullString{String: "ar", Valid: true},
			"sent", 1,
			sql.NullString{String: "dynamic-relay", Valid: true},
			e.ErrorMessage, e.ProviderMessageID, e.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, rec.Record(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecorder_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec, err := NewPostgresRecorder(db, "email_logs")
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO email_logs`).WillReturnError(errors.New("connection reset"))

	err = rec.Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresRecorder_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec, err := NewPostgresRecorder(db, "email_logs")
	require.NoError(t, err)

	ts := time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "recipient_email", "template_name", "notification_type", "language", "status",
		"transport_tier", "transport_name", "error_message", "provider_message_id", "created_at"}

	mock.ExpectQuery(`SELECT .+ FROM email_logs WHERE id = \$1`).
		WithArgs("log-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("log-1", "user@example.com", "welcome_email", nil, "en", "failed", 0, nil, "AllTiersExhausted", nil, ts))

	got, err := rec.Get(context.Background(), "log-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusFailed, got.Status)
	assert.Equal(t, "en", got.Language)
	assert.Empty(t, got.NotificationType)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "AllTiersExhausted", *got.ErrorMessage)
	assert.Nil(t, got.ProviderMessageID)

	mock.ExpectQuery(`SELECT .+ FROM email_logs`).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = rec.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchRecorder_Record(t *testing.T) {
	type indexed struct {
		path string
		doc  models.DeliveryLogEntry
	}
	got := make(chan indexed, 1)

	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var doc models.DeliveryLogEntry
		_ = json.Unmarshal(body, &doc)
		got <- indexed{path: r.URL.Path, doc: doc}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	e := sampleEntry()
	require.NoError(t, NewElasticsearchRecorder(client, "email-delivery-log", 0).Record(context.Background(), e))

	req := <-got
	assert.Equal(t, "/email-delivery-log/_doc/"+e.ID, req.path)
	assert.Equal(t, e.Recipient, req.doc.Recipient)
	assert.Equal(t, 1, req.doc.TransportTier)
}

func TestElasticsearchRecorder_ErrorStatus(t *testing.T) {
	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := NewElasticsearchRecorder(client, "email-delivery-log", 0).Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestElasticsearchRecorder_Timeout(t *testing.T) {
	release := make(chan struct{})
	queries := make(chan string, 8)

	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	start := time.Now()
	err := NewElasticsearchRecorder(client, "email-delivery-log", 50*time.Millisecond).Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, <-queries, "timeout=50ms")
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, models.DeliveryLogEntry) error { return f.err }

func TestMulti_WritesEverySinkAndJoinsFailures(t *testing.T) {
	mem := NewMemoryRecorder()
	m := NewMulti().
		Add("postgres", failingRecorder{err: errors.New("db down")}).
		Add("memory", mem)

	err := m.Record(context.Background(), sampleEntry())
	require.Error(t, err)

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "postgres", sinkErr.Sink)
	assert.Len(t, mem.Entries(), 1)

	assert.NoError(t, NewMulti().Add("memory", mem).Record(context.Background(), sampleEntry()))
}

func TestMemoryRecorder_Get(t *testing.T) {
	mem := NewMemoryRecorder()
	e := sampleEntry()
	require.NoError(t, mem.Record(context.Background(), e))

	got, err := mem.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Recipient, got.Recipient)

	_, err = mem.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
