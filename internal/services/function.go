package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentprovenance/internal/cas"
	"github.com/Lllllllleong/documentprovenance/internal/config"
	"github.com/Lllllllleong/documentprovenance/internal/extract"
	"github.com/Lllllllleong/documentprovenance/internal/gcp"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/Lllllllleong/documentprovenance/internal/persistence"
)

// IngestFunction is the deployed ingestion service: a batch processor over
// an Ingestor whose backends are chosen by configuration.
type IngestFunction struct {
	ingestor *Ingestor
	batch    *BatchProcessor
	closers  []func() error
	config   config.Config
}

// NewIngestFunction loads configuration from the environment and builds
// every client.
func NewIngestFunction(ctx context.Context) (*IngestFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewIngestFunctionWithConfig(ctx, cfg)
}

func NewIngestFunctionWithConfig(ctx context.Context, cfg config.Config) (_ *IngestFunction, err error) {
	f := &IngestFunction{config: cfg}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	joinPolicy, err := ParseJoinPolicy(cfg.JoinPolicy)
	if err != nil {
		return nil, err
	}
	timing, err := ParseDocumentTiming(cfg.DocumentTiming)
	if err != nil {
		return nil, err
	}

	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, storageClient.Close)

	contentStore, err := f.newContentStore(storageClient)
	if err != nil {
		return nil, err
	}
	extractor, err := f.newExtractor(ctx)
	if err != nil {
		return nil, err
	}
	store, err := f.newPersistenceStore(ctx)
	if err != nil {
		return nil, err
	}

	var workflow WorkflowTrigger
	if cfg.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, trigger.Close)
		workflow = trigger
	}

	f.ingestor, err = NewIngestor(IngestDeps{
		Objects:   gcp.NewObjectSource(storageClient),
		CAS:       contentStore,
		Extractor: extractor,
		Store:     store,
		Workflow:  workflow,
	}, IngestConfig{
		AssetBaseURL:   cfg.AssetBaseURL,
		JoinPolicy:     joinPolicy,
		DocumentTiming: timing,
	})
	if err != nil {
		return nil, err
	}

	f.batch, err = NewBatchProcessor(f.ingestor, notification.Rules{
		ConfigurationID: cfg.ConfigurationID,
		EventSource:     cfg.EventSource,
	}, cfg.BatchWorkers)
	if err != nil {
		return nil, err
	}

	slog.Info("Provenance ingestion initialized.",
		"casBackend", cfg.CASBackend,
		"databaseBackend", cfg.DatabaseBackend,
		"extractionBackend", cfg.ExtractionBackend,
		"joinPolicy", joinPolicy,
		"documentTiming", timing,
		"workflowId", cfg.WorkflowID,
	)
	return f, nil
}

func (f *IngestFunction) newContentStore(storageClient *storage.Client) (cas.Store, error) {
	switch f.config.CASBackend {
	case config.CASGCS:
		return cas.NewGCSStore(storageClient, f.config.CASBucket, f.config.CASPrefix)
	case config.CASKubo:
		return cas.NewKuboStore(f.config.IPFSURL, f.config.ClientTimeout)
	}
	return nil, fmt.Errorf("unknown CAS_BACKEND %q", f.config.CASBackend)
}

func (f *IngestFunction) newExtractor(ctx context.Context) (extract.Client, error) {
	switch f.config.ExtractionBackend {
	case config.ExtractionTika:
		return extract.NewTikaClient(f.config.TikaURL, f.config.ClientTimeout)
	case config.ExtractionVertex:
		client, err := gcp.NewVertexClient(ctx, f.config.ProjectID, f.config.VertexAIRegion, f.config.VertexModel)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, client.Close)
		return extract.NewVertexExtractor(client), nil
	}
	return nil, fmt.Errorf("unknown EXTRACTION_BACKEND %q", f.config.ExtractionBackend)
}

func (f *IngestFunction) newPersistenceStore(ctx context.Context) (persistence.Store, error) {
	var (
		store persistence.Store
		err   error
	)
	switch f.config.DatabaseBackend {
	case config.DatabaseFirestore:
		client, cerr := gcp.NewFirestoreClient(ctx, f.config.ProjectID, f.config.FirestoreDatabase)
		if cerr != nil {
			return nil, cerr
		}
		store = persistence.NewFirestoreStore(client, f.config.DocumentsCollection, f.config.AssertionsCollection)
	case config.DatabasePostgres:
		gormStore, oerr := persistence.OpenPostgresStore(f.config.DatabaseURL)
		if oerr != nil {
			return nil, oerr
		}
		if err = gormStore.Migrate(ctx); err != nil {
			_ = gormStore.Close()
			return nil, err
		}
		store = gormStore
	case config.DatabaseBadger:
		store, err = persistence.OpenBadgerStore(f.config.BadgerPath, false)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown DATABASE_BACKEND %q", f.config.DatabaseBackend)
	}
	f.closers = append(f.closers, store.Close)
	return store, nil
}

// HandleNotification processes an S3-shaped notification body.
func (f *IngestFunction) HandleNotification(ctx context.Context, body []byte) (*models.BatchResponse, error) {
	return f.batch.HandleNotification(ctx, body)
}

// ProcessGCSEvent ingests the object named by a Cloud Storage finalize event.
func (f *IngestFunction) ProcessGCSEvent(ctx context.Context, eventTime time.Time, e models.GCSEvent) (*models.IngestResult, error) {
	event, err := ObjectEventFromGCS(eventTime, e)
	if err != nil {
		return nil, err
	}
	return f.ingestor.Process(ctx, event)
}

// ObjectEventFromGCS maps a Cloud Storage finalize event onto an ObjectEvent.
func ObjectEventFromGCS(eventTime time.Time, e models.GCSEvent) (models.ObjectEvent, error) {
	if e.Bucket == "" || e.Name == "" {
		return models.ObjectEvent{}, fmt.Errorf("%w: bucket and name are required", notification.ErrValidation)
	}
	var size int64
	if e.Size != "" {
		n, err := strconv.ParseInt(e.Size, 10, 64)
		if err != nil {
			return models.ObjectEvent{}, fmt.Errorf("%w: invalid size %q", notification.ErrValidation, e.Size)
		}
		size = n
	}
	when := e.TimeCreated
	if when == "" && !eventTime.IsZero() {
		when = eventTime.UTC().Format(time.RFC3339Nano)
	}
	return models.ObjectEvent{EventTime: when, Bucket: e.Bucket, Key: e.Name, Size: size}, nil
}

// Close releases the worker pool and every client.
func (f *IngestFunction) Close() error {
	if f.batch != nil {
		f.batch.Release()
	}
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
