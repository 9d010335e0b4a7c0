// Package template resolves the authoritative active template of a family.
package template

import (
	"context"
	"sort"
	"strings"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"
)

// Store returns the authoritative active template for name. A miss is a
// TEMPLATE_NOT_FOUND error; an unusable row is TEMPLATE_MALFORMED with a
// reason naming what is missing.
type Store interface {
	GetTemplate(ctx context.Context, name string) (*models.Template, error)
}

// IsNotFound reports whether err means the caller has no usable template,
// covering both the missing and the malformed case.
func IsNotFound(err error) bool {
	return errors.HasCode(err, errors.ErrCodeTemplateNotFound) ||
		errors.HasCode(err, errors.ErrCodeTemplateMalformed)
}

// Latest picks the most recently created active row. Equal timestamps fall
// back to the greater ID so the choice never depends on row order.
func Latest(rows []models.Template) (*models.Template, bool) {
	var best *models.Template
	for i := range rows {
		row := &rows[i]
		if !row.IsActive {
			continue
		}
		if best == nil ||
			row.CreatedAt.After(best.CreatedAt) ||
			(row.CreatedAt.Equal(best.CreatedAt) && row.ID > best.ID) {
			best = row
		}
	}
	return best, best != nil
}

// checkUsable rejects a row in which no language variant is complete.
func checkUsable(tpl *models.Template) error {
	var incomplete []string
	for lang, content := range tpl.Content {
		if content.Complete() {
			return nil
		}
		incomplete = append(incomplete, lang)
	}
	sort.Strings(incomplete)
	if len(incomplete) == 0 {
		return errors.NewTemplateMalformedError(tpl.Name, "no language content")
	}
	return errors.NewTemplateMalformedError(tpl.Name,
		"missing subject or body for "+strings.Join(incomplete, ", "))
}

// SelectContent returns the variant for language, or the first complete
// fallback. The returned string is the language actually used.
func SelectContent(tpl *models.Template, language string, fallbacks ...string) (models.TemplateContent, string, error) {
	if c, ok := tpl.Content[language]; ok && c.Complete() {
		return c, language, nil
	}
	for _, lang := range fallbacks {
		if c, ok := tpl.Content[lang]; ok && c.Complete() {
			return c, lang, nil
		}
	}
	return models.TemplateContent{}, "", errors.NewTemplateMalformedError(tpl.Name,
		"missing subject or body for "+language)
}
