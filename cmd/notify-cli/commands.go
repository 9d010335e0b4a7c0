package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"notification-dispatch/internal/common/validation"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/notification/deliverylog"
	"notification-dispatch/internal/notification/dispatch"
)

// Sender is satisfied by *dispatch.Dispatcher.
type Sender interface {
	SendNotification(ctx context.Context, req models.NotificationRequest) models.Result
	SendBatch(ctx context.Context, reqs []models.NotificationRequest, concurrency int) []models.Result
}

// outcome is one line of CLI output.
type outcome struct {
	Recipient string `json:"recipient"`
	Template  string `json:"template,omitempty"`
	models.Result
}

func writeOutcome(w io.Writer, req models.NotificationRequest, r models.Result) {
	line, _ := json.Marshal(outcome{Recipient: req.RecipientEmail, Template: req.TemplateName, Result: r})
	fmt.Fprintln(w, string(line))
}

// runSend reports whether the notification was delivered.
func runSend(ctx context.Context, s Sender, req models.NotificationRequest, out io.Writer) bool {
	r := s.SendNotification(ctx, req)
	writeOutcome(out, req, r)
	return r.Success
}

// runBatch returns the number of failed recipients.
func runBatch(ctx context.Context, s Sender, reqs []models.NotificationRequest, concurrency int, out io.Writer) int {
	results := s.SendBatch(ctx, reqs, concurrency)
	for i, r := range results {
		writeOutcome(out, reqs[i], r)
	}
	failed := dispatch.CountFailed(results)
	fmt.Fprintf(out, "sent %d of %d\n", len(results)-failed, len(results))
	return failed
}

// runResend re-dispatches a logged entry's template to its recipient. The
// log does not keep variables, so callers pass them again.
func runResend(ctx context.Context, s Sender, history deliverylog.Reader, id string, vars map[string]interface{}, out io.Writer) (bool, error) {
	if history == nil {
		return false, fmt.Errorf("delivery log is not readable in this mode")
	}
	entry, err := history.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load log entry %s: %w", id, err)
	}
	req := models.NotificationRequest{
		TemplateName:     entry.TemplateName,
		RecipientEmail:   entry.Recipient,
		Language:         entry.Language,
		NotificationType: entry.NotificationType,
		Variables:        vars,
	}
	return runSend(ctx, s, req, out), nil
}

// readBatch parses a JSON lines file. Blank lines and lines starting with #
// are skipped. Any invalid line fails the whole batch before anything is sent.
func readBatch(r io.Reader) ([]models.NotificationRequest, error) {
	var (
		reqs    []models.NotificationRequest
		invalid []string
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := parseRequest([]byte(line))
		if err != nil {
			invalid = append(invalid, fmt.Sprintf("line %d: %v", n, err))
			continue
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid batch file:\n  %s", strings.Join(invalid, "\n  "))
	}
	return reqs, nil
}

func parseRequest(raw []byte) (models.NotificationRequest, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.NotificationRequest{}, err
	}
	if res := validation.ValidateNotificationRequest(fields); !res.Valid {
		return models.NotificationRequest{}, fmt.Errorf("%s", strings.Join(res.GetErrorMessages(), "; "))
	}
	var req models.NotificationRequest
	err := json.Unmarshal(raw, &req)
	return req, err
}

// parseVars accepts a JSON object, or @path to read one from a file.
func parseVars(s string) (map[string]interface{}, error) {
	if s == "" {
		return nil, nil
	}
	raw := []byte(s)
	if strings.HasPrefix(s, "@") {
		b, err := os.ReadFile(s[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var vars map[string]interface{}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("vars must be a JSON object: %w", err)
	}
	return vars, nil
}

func loadTemplates(path string) ([]models.Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []models.Template
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	return rows, nil
}
