package deliverylog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"notification-dispatch/internal/models"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresRecorder inserts into the delivery log table. The table stores a
// recipient's template and outcome; no message bodies are kept.
type PostgresRecorder struct {
	db        *sql.DB
	insertSQL string
	selectSQL string
}

func NewPostgresRecorder(db *sql.DB, table string) (*PostgresRecorder, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid delivery log table name %q", table)
	}
	return &PostgresRecorder{
		db: db,
		insertSQL: fmt.Sprintf(`INSERT INTO %s
	(id, recipient_email, template_name, notification_type, language, status,
	 transport_tier, transport_name, error_message, provider_message_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, table),
		selectSQL: fmt.Sprintf(`SELECT id, recipient_email, template_name, notification_type, language, status,
	transport_tier, transport_name, error_message, provider_message_id, created_at
FROM %s WHERE id = $1`, table),
	}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, e models.DeliveryLogEntry) error {
	_, err := r.db.ExecContext(ctx, r.insertSQL,
		e.ID, e.Recipient, e.TemplateName, nullable(e.NotificationType), nullable(e.Language), string(e.Status),
		e.TransportTier, nullable(e.TransportName), e.ErrorMessage, e.ProviderMessageID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert delivery log entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Get(ctx context.Context, id string) (*models.DeliveryLogEntry, error) {
	var (
		e                     models.DeliveryLogEntry
		status                string
		notificationType      sql.NullString
		language, transport   sql.NullString
		errMsg, providerMsgID sql.NullString
	)

	err := r.db.QueryRowContext(ctx, r.selectSQL, id).Scan(
		&e.ID, &e.Recipient, &e.TemplateName, &notificationType, &language, &status,
		&e.TransportTier, &transport, &errMsg, &providerMsgID, &e.Timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("read delivery log entry: %w", err)
	}

	e.Status = models.DeliveryStatus(status)
	e.NotificationType = notificationType.String
	e.Language = language.String
	e.TransportName = transport.String
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	if providerMsgID.Valid {
		e.ProviderMessageID = &providerMsgID.String
	}
	return &e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
