package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/panjf2000/ants/v2"
)

const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// EventProcessor ingests a single validated event.
type EventProcessor interface {
	Process(ctx context.Context, e models.ObjectEvent) (*models.IngestResult, error)
}

// BatchProcessor validates a notification and ingests its events on a
// bounded worker pool. A failed event never affects its siblings.
type BatchProcessor struct {
	processor EventProcessor
	rules     notification.Rules
	pool      *ants.Pool
}

func NewBatchProcessor(processor EventProcessor, rules notification.Rules, workers int) (*BatchProcessor, error) {
	if processor == nil {
		return nil, errors.New("event processor must be provided")
	}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &BatchProcessor{processor: processor, rules: rules, pool: pool}, nil
}

// HandleNotification parses and validates body, then processes every event.
// A validation error rejects the whole notification before any event is
// processed.
func (b *BatchProcessor) HandleNotification(ctx context.Context, body []byte) (*models.BatchResponse, error) {
	records, err := notification.Parse(body)
	if err != nil {
		return nil, err
	}
	if err := notification.Validate(records, b.rules); err != nil {
		return nil, err
	}

	events := make([]models.ObjectEvent, len(records))
	for idx, r := range records {
		events[idx] = notification.ObjectEvent(r)
	}
	return b.ProcessEvents(ctx, events), nil
}

// ProcessEvents ingests events concurrently. Results keep the input order.
func (b *BatchProcessor) ProcessEvents(ctx context.Context, events []models.ObjectEvent) *models.BatchResponse {
	results := make([]*models.IngestResult, len(events))
	errs := make([]error, len(events))

	var wg sync.WaitGroup
	for idx, e := range events {
		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			results[idx], errs[idx] = b.processor.Process(ctx, e)
		})
		if submitErr != nil {
			wg.Done()
			errs[idx] = fmt.Errorf("failed to schedule event: %w", submitErr)
		}
	}
	wg.Wait()

	resp := &models.BatchResponse{Processed: []models.IngestResult{}}
	for idx, e := range events {
		if errs[idx] != nil {
			slog.Warn("Event was not ingested.", "bucket", e.Bucket, "key", e.Key, "error", errs[idx])
			resp.Failed = append(resp.Failed, models.IngestFailure{Key: e.Key, Error: errs[idx].Error()})
			continue
		}
		resp.Processed = append(resp.Processed, *results[idx])
	}

	switch {
	case len(resp.Failed) == 0:
		resp.Status = StatusOK
	case len(resp.Processed) == 0:
		resp.Status = StatusFailed
	default:
		resp.Status = StatusPartial
	}
	return resp
}

// Release stops the worker pool.
func (b *BatchProcessor) Release() {
	b.pool.Release()
}
