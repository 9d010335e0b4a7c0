// Package preferences looks up a recipient's preferred content language.
package preferences

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"notification-dispatch/internal/common/errors"
)

// Store returns the preferred language for a recipient, or "" when the
// recipient has none on record.
type Store interface {
	PreferredLanguage(ctx context.Context, email string) (string, error)
}

const preferredLanguageQuery = `
	SELECT COALESCE(p.language, '')
	FROM users u
	LEFT JOIN user_notification_preferences p ON p.user_id = u.id
	WHERE lower(u.email) = lower($1)
	LIMIT 1
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PreferredLanguage(ctx context.Context, email string) (string, error) {
	var lang string
	err := s.db.QueryRowContext(ctx, preferredLanguageQuery, email).Scan(&lang)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.NewPreferencesLookupError(err)
	}
	return strings.ToLower(strings.TrimSpace(lang)), nil
}

// Static answers from a fixed map; keys are lower-cased addresses.
type Static map[string]string

func (s Static) PreferredLanguage(_ context.Context, email string) (string, error) {
	return s[strings.ToLower(email)], nil
}
