package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]error
}

func (p *recordingProcessor) Process(ctx context.Context, e models.ObjectEvent) (*models.IngestResult, error) {
	p.mu.Lock()
	p.seen = append(p.seen, e.Key)
	p.mu.Unlock()
	if err := p.fails[e.Key]; err != nil {
		return nil, err
	}
	return &models.IngestResult{Key: e.Key, CID: "cid-" + e.Key}, nil
}

func record(source, configurationID, key string) string {
	return fmt.Sprintf(`{
		"eventName": "ObjectCreated:Put",
		"eventSource": %q,
		"eventTime": "2024-03-01T12:29:59.000Z",
		"s3": {
			"configurationId": %q,
			"bucket": {"name": "uploads-bucket"},
			"object": {"key": %q, "size": 11}
		}
	}`, source, configurationID, key)
}

func newBatch(t *testing.T, p EventProcessor) *BatchProcessor {
	t.Helper()
	b, err := NewBatchProcessor(p, notification.Rules{ConfigurationID: "upload-hook"}, 2)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func TestHandleNotificationRejectsBeforeProcessing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong source", "[" + record("aws:sqs", "upload-hook", "uploads/org1/doc42") + "]"},
		{"wrong configuration", "[" + record("aws:s3", "other", "uploads/org1/doc42") + "]"},
		{"missing key", `[{"eventName":"ObjectCreated:Put","eventSource":"aws:s3","eventTime":"t",
			"s3":{"configurationId":"upload-hook","bucket":{"name":"b"},"object":{"size":1}}}]`},
		{"one bad record rejects all", "[" + record("aws:s3", "upload-hook", "uploads/org1/a") + "," +
			record("aws:sqs", "upload-hook", "uploads/org1/b") + "]"},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &recordingProcessor{}
			b := newBatch(t, p)

			resp, err := b.HandleNotification(context.Background(), []byte(tt.body))
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, notification.ErrValidation)
			assert.Empty(t, p.seen)
		})
	}
}

func TestHandleNotificationIsolatesFailures(t *testing.T) {
	p := &recordingProcessor{fails: map[string]error{
		"uploads/org1/b": errors.New("store unavailable"),
	}}
	b := newBatch(t, p)
	body := "[" + record("aws:s3", "upload-hook", "uploads/org1/a") + "," +
		record("aws:s3", "upload-hook", "uploads/org1/b") + "," +
		record("aws:s3", "upload-hook", "uploads/org1/c%20d") + "]"

	resp, err := b.HandleNotification(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, resp.Status)
	assert.Equal(t, []models.IngestResult{
		{Key: "uploads/org1/a", CID: "cid-uploads/org1/a"},
		{Key: "uploads/org1/c d", CID: "cid-uploads/org1/c d"},
	}, resp.Processed)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "uploads/org1/b", resp.Failed[0].Key)
	assert.Contains(t, resp.Failed[0].Error, "store unavailable")
	assert.Len(t, p.seen, 3)
}

func TestProcessEventsStatus(t *testing.T) {
	p := &recordingProcessor{fails: map[string]error{"k1": errors.New("boom")}}
	b := newBatch(t, p)

	resp := b.ProcessEvents(context.Background(), []models.ObjectEvent{{Key: "k1"}})
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Empty(t, resp.Processed)

	resp = b.ProcessEvents(context.Background(), []models.ObjectEvent{{Key: "k2"}, {Key: "k3"}})
	assert.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.Processed, 2)
}

func TestBatchWithIngestor(t *testing.T) {
	fx := newFixture(t, IngestConfig{})
	b := newBatch(t, fx.ingestor)

	resp, err := b.HandleNotification(context.Background(), []byte(`{"Records": [`+record("aws:s3", "upload-hook", "uploads/org1/doc42")+`]}`))
	require.NoError(t, err)
	require.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Processed, 1)
	assert.Equal(t, "uploads/org1/doc42", resp.Processed[0].Key)
}

func TestObjectEventFromGCS(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	e, err := ObjectEventFromGCS(when, models.GCSEvent{Bucket: "b", Name: "uploads/org1/doc42", Size: "11"})
	require.NoError(t, err)
	assert.Equal(t, models.ObjectEvent{
		EventTime: "2024-03-01T12:00:00Z",
		Bucket:    "b",
		Key:       "uploads/org1/doc42",
		Size:      11,
	}, e)

	_, err = ObjectEventFromGCS(when, models.GCSEvent{Bucket: "b"})
	assert.ErrorIs(t, err, notification.ErrValidation)
	_, err = ObjectEventFromGCS(when, models.GCSEvent{Bucket: "b", Name: "k", Size: "big"})
	assert.ErrorIs(t, err, notification.ErrValidation)
}
