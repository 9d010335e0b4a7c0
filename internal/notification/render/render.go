// Package render substitutes caller variables into template content.
// Substitution is pure and never fails: unknown or missing variables collapse
// to the empty string.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"time"

	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification/template"
)

var placeholder = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Rendered is the substituted subject and bodies.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type Options struct {
	// Location used for timestamp variables; UTC when nil.
	Location *time.Location
	// TimestampVariables are variable names formatted as dates.
	TimestampVariables []string
}

type Renderer struct {
	loc        *time.Location
	timestamps map[string]struct{}
}

func New(opts Options) *Renderer {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	ts := make(map[string]struct{}, len(opts.TimestampVariables))
	for _, name := range opts.TimestampVariables {
		ts[name] = struct{}{}
	}
	return &Renderer{loc: loc, timestamps: ts}
}

// Render selects the template's content for language (or the first complete
// fallback, when any are given) and substitutes variables into it. The
// returned string is the language actually rendered.
func (r *Renderer) Render(tpl *models.Template, language string, variables map[string]interface{}, fallbacks ...string) (Rendered, string, error) {
	content, used, err := template.SelectContent(tpl, language, fallbacks...)
	if err != nil {
		return Rendered{}, "", err
	}
	return r.RenderContent(content, used, variables), used, nil
}

// RenderContent substitutes variables into one language variant. Values
// placed into HTML are escaped.
func (r *Renderer) RenderContent(content models.TemplateContent, language string, variables map[string]interface{}) Rendered {
	values := r.Values(language, variables)
	escaped := make(map[string]string, len(values))
	for k, v := range values {
		escaped[k] = html.EscapeString(v)
	}

	return Rendered{
		Subject: substitute(content.Subject, values),
		Text:    substitute(content.Text, values),
		HTML:    substitute(content.HTML, escaped),
	}
}

// Values flattens variables to strings and expands each timestamp variable
// K into K, KDate, KTime and KWeekday.
func (r *Renderer) Values(language string, variables map[string]interface{}) map[string]string {
	values := make(map[string]string, len(variables))
	for k, v := range variables {
		values[k] = stringify(v)
	}

	for name := range r.timestamps {
		raw, ok := variables[name]
		if !ok {
			continue
		}
		t, ok := parseTimestamp(raw)
		if !ok {
			continue
		}
		f := FormatTimestamp(t.In(r.loc), language)
		values[name] = f.Date + " " + f.Time
		values[name+"Date"] = f.Date
		values[name+"Time"] = f.Time
		values[name+"Weekday"] = f.Weekday
	}
	return values
}

func substitute(s string, values map[string]string) string {
	if s == "" {
		return s
	}
	out := placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		return values[tok[2:len(tok)-2]]
	})
	// Inserted values and the braces around them can form new tokens. Strip
	// until none are left; every pass removes at least four bytes.
	for placeholder.MatchString(out) {
		out = placeholder.ReplaceAllString(out, "")
	}
	return out
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	case float64:
		return unix(int64(val)), true
	case int64:
		return unix(val), true
	case int:
		return unix(int64(val)), true
	}
	return time.Time{}, false
}

// unix accepts seconds or milliseconds since the epoch.
func unix(n int64) time.Time {
	if n > 1e11 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
