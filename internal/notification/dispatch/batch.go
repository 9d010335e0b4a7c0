package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/models"
)

// SendBatch dispatches every request independently with at most concurrency
// calls in flight (the configured default when concurrency <= 0). Results
// are positional; one recipient's failure never stops the others.
func (d *Dispatcher) SendBatch(ctx context.Context, reqs []models.NotificationRequest, concurrency int) []models.Result {
	if concurrency <= 0 {
		concurrency = d.opts.BatchConcurrency
	}
	results := make([]models.Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range reqs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					results[i] = models.Failed(models.ReasonAllTiersExhausted, fmt.Sprintf("dispatch panicked: %v", r))
				}
			}()
			results[i] = d.SendNotification(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("Batch dispatched", map[string]interface{}{
		"total":  len(reqs),
		"failed": CountFailed(results),
	})
	return results
}

func CountFailed(results []models.Result) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}

// ResultError converts a failed Result into the shared error taxonomy so
// the workflow worker can decide between throwing and retrying. It returns
// nil for a delivered Result.
func ResultError(r models.Result) error {
	if r.Success {
		return nil
	}
	switch r.Error {
	case models.ReasonTemplateNotFound:
		return &errors.StandardError{
			Code:      errors.ErrCodeTemplateNotFound,
			Message:   "No active template found",
			Details:   r.Detail,
			Timestamp: time.Now().UTC(),
		}
	case models.ReasonInvalidRequest:
		return errors.NewInvalidRequestError(r.Detail)
	default:
		return errors.NewAllTiersExhaustedError(r.Detail)
	}
}
