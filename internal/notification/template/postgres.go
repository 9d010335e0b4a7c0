package template

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"
)

const selectActiveTemplate = `SELECT id, name, is_active,
	subject_ar, subject_en, content_ar, content_en, html_template_ar, html_template_en,
	created_at
FROM email_templates
WHERE name = $1 AND is_active = true
ORDER BY created_at DESC, id DESC
LIMIT 1`

// PostgresStore reads the email_templates table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	var (
		tpl                  models.Template
		subjectAr, subjectEn sql.NullString
		textAr, textEn       sql.NullString
		htmlAr, htmlEn       sql.NullString
		createdAt            time.Time
	)

	err := s.db.QueryRowContext(ctx, selectActiveTemplate, name).Scan(
		&tpl.ID, &tpl.Name, &tpl.IsActive,
		&subjectAr, &subjectEn, &textAr, &textEn, &htmlAr, &htmlEn,
		&createdAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewTemplateNotFoundError(name)
		}
		return nil, errors.NewTemplateLookupError(name, err)
	}

	tpl.CreatedAt = createdAt
	tpl.Content = map[string]models.TemplateContent{
		models.LanguageArabic:  {Subject: subjectAr.String, Text: textAr.String, HTML: htmlAr.String},
		models.LanguageEnglish: {Subject: subjectEn.String, Text: textEn.String, HTML: htmlEn.String},
	}

	if err := checkUsable(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}
