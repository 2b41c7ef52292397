package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/assemble"
	"github.com/Lllllllleong/documentprovenance/internal/cas"
	"github.com/Lllllllleong/documentprovenance/internal/extract"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/Lllllllleong/documentprovenance/internal/persistence"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stage names a state of the ingestion pipeline.
type Stage string

const (
	StageValidated Stage = "Validated"
	StageFetching  Stage = "Fetching"
	StageJoined    Stage = "Joined"
	StageAssembled Stage = "Assembled"
	StageCommitted Stage = "Committed"
	StageFailed    Stage = "Failed"
)

// StageError records the stage a run was working towards when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// JoinPolicy controls what happens to in-flight branches once one fails.
type JoinPolicy string

const (
	// JoinFailFast cancels the remaining branches on the first failure.
	JoinFailFast JoinPolicy = "fail-fast"
	// JoinWaitAll lets every branch finish before reporting the first failure.
	JoinWaitAll JoinPolicy = "wait-all"
)

// DocumentTiming controls when the Document row is found or created.
type DocumentTiming string

const (
	// DocumentEager runs find-or-create alongside the artifact branches. A
	// failed run may leave a Document without an Assertion.
	DocumentEager DocumentTiming = "eager"
	// DocumentDeferred runs find-or-create after every artifact succeeded.
	DocumentDeferred DocumentTiming = "deferred"
)

// ParseJoinPolicy accepts the configured policy name.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch JoinPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", JoinFailFast:
		return JoinFailFast, nil
	case JoinWaitAll:
		return JoinWaitAll, nil
	}
	return "", fmt.Errorf("unknown join policy %q", s)
}

// ParseDocumentTiming accepts the configured timing name.
func ParseDocumentTiming(s string) (DocumentTiming, error) {
	switch DocumentTiming(strings.ToLower(strings.TrimSpace(s))) {
	case "", DocumentEager:
		return DocumentEager, nil
	case DocumentDeferred:
		return DocumentDeferred, nil
	}
	return "", fmt.Errorf("unknown document timing %q", s)
}

// ObjectFetcher loads an uploaded object and its attributes.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) (*models.StoredObject, error)
}

// WorkflowTrigger hands a committed assertion to a downstream workflow.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, handoff models.WorkflowHandoff) (string, error)
}

type IngestConfig struct {
	AssetBaseURL   string
	JoinPolicy     JoinPolicy
	DocumentTiming DocumentTiming
}

// IngestDeps are the collaborators of an Ingestor. Workflow, Now and NewID
// are optional.
type IngestDeps struct {
	Objects   ObjectFetcher
	CAS       cas.Store
	Extractor extract.Client
	Store     persistence.Store
	Workflow  WorkflowTrigger
	Now       func() time.Time
	NewID     func() string
}

// Ingestor runs the provenance pipeline for one object-created event.
type Ingestor struct {
	objects   ObjectFetcher
	cas       cas.Store
	extractor extract.Client
	store     persistence.Store
	workflow  WorkflowTrigger
	now       func() time.Time
	newID     func() string
	config    IngestConfig
}

func NewIngestor(deps IngestDeps, config IngestConfig) (*Ingestor, error) {
	if deps.CAS == nil || deps.Extractor == nil || deps.Store == nil {
		return nil, fmt.Errorf("content store, extractor and persistence store must be provided")
	}
	if config.JoinPolicy == "" {
		config.JoinPolicy = JoinFailFast
	}
	if config.DocumentTiming == "" {
		config.DocumentTiming = DocumentEager
	}
	config.AssetBaseURL = strings.TrimRight(config.AssetBaseURL, "/")

	i := &Ingestor{
		objects:   deps.Objects,
		cas:       deps.CAS,
		extractor: deps.Extractor,
		store:     deps.Store,
		workflow:  deps.Workflow,
		now:       deps.Now,
		newID:     deps.NewID,
		config:    config,
	}
	if i.now == nil {
		i.now = time.Now
	}
	if i.newID == nil {
		i.newID = uuid.NewString
	}
	return i, nil
}

// Process fetches the object named by e and ingests it.
func (i *Ingestor) Process(ctx context.Context, e models.ObjectEvent) (*models.IngestResult, error) {
	logCtx := slog.With("bucket", e.Bucket, "key", e.Key)
	if i.objects == nil {
		return nil, i.fail(logCtx, StageFetching, fmt.Errorf("no object source configured"))
	}
	obj, err := i.objects.Fetch(ctx, e.Bucket, e.Key)
	if err != nil {
		return nil, i.fail(logCtx, StageFetching, err)
	}
	return i.ProcessObject(ctx, e, obj)
}

// artifacts holds the joined results of the fan-out.
type artifacts struct {
	document     *models.Document
	created      bool
	fileHash     cas.Address
	textHash     cas.Address
	textSize     int64
	metadata     map[string]any
	metadataHash cas.Address
}

// ProcessObject ingests an already fetched object. Nothing is written before
// the object metadata and key are validated.
func (i *Ingestor) ProcessObject(ctx context.Context, e models.ObjectEvent, obj *models.StoredObject) (*models.IngestResult, error) {
	logCtx := slog.With("bucket", e.Bucket, "key", e.Key)
	if obj == nil {
		return nil, i.fail(logCtx, StageValidated, fmt.Errorf("%w: missing object body", notification.ErrValidation))
	}

	meta, err := notification.ParseObjectMetadata(obj.Metadata)
	if err != nil {
		return nil, i.fail(logCtx, StageValidated, err)
	}
	objKey, err := notification.ParseObjectKey(e.Key)
	if err != nil {
		return nil, i.fail(logCtx, StageValidated, err)
	}
	logCtx = logCtx.With("documentId", meta.DocumentID, "organizationId", objKey.OrganizationID)
	logCtx.Info("Notification validated.", "state", StageValidated, "contentLength", obj.ContentLength)

	fileURL := i.fileURL(e.Key)
	defaults := models.Document{ID: meta.DocumentID, OrganizationID: objKey.OrganizationID}
	file := extract.File{Name: meta.OriginalFilename, ContentType: obj.ContentType, Body: obj.Body}

	startTime := i.now()
	logCtx.Info("Fetching document and artifacts.", "state", StageFetching, "joinPolicy", i.config.JoinPolicy, "documentTiming", i.config.DocumentTiming)
	art, err := i.fanOut(ctx, meta.DocumentID, defaults, file)
	if err != nil {
		return nil, i.fail(logCtx, StageFetching, err)
	}
	logCtx.Info("Artifacts joined.", "state", StageJoined, "documentCreated", art.created, "fileHash", art.fileHash, "textHash", art.textHash, "metadataHash", art.metadataHash)

	title := extract.Title(art.metadata)
	upd := models.DocumentUpdate{
		Title:       &title,
		FileURL:     &fileURL,
		FileName:    &meta.OriginalFilename,
		ContentType: &obj.ContentType,
	}
	if err := i.store.UpdateDocument(ctx, meta.DocumentID, upd); err != nil {
		return nil, i.fail(logCtx, StageJoined, fmt.Errorf("failed to update document: %w", err))
	}

	record := models.ProvenanceRecord{
		EventTime:       e.EventTime,
		DocumentID:      meta.DocumentID,
		ContentSize:     obj.ContentLength,
		ContentType:     obj.ContentType,
		GeneratedAtTime: startTime,
		FileURL:         fileURL,
		FileName:        meta.OriginalFilename,
		FileHash:        art.fileHash.String(),
		TextHash:        art.textHash.String(),
		TextSize:        art.textSize,
		Metadata:        art.metadata,
		MetadataHash:    art.metadataHash.String(),
	}
	canonical, err := assemble.Assemble(record)
	if err != nil {
		return nil, i.fail(logCtx, StageAssembled, fmt.Errorf("failed to assemble provenance record: %w", err))
	}
	cid, err := i.cas.AddBytes(ctx, canonical)
	if err != nil {
		return nil, i.fail(logCtx, StageAssembled, fmt.Errorf("failed to add provenance record: %w", err))
	}
	logCtx = logCtx.With("cid", cid)
	logCtx.Info("Provenance record assembled.", "state", StageAssembled, "bytes", len(canonical))

	assertion, err := i.store.CreateAssertion(ctx, &models.Assertion{
		ID:             i.newID(),
		CID:            cid.String(),
		DocumentID:     meta.DocumentID,
		OrganizationID: objKey.OrganizationID,
	})
	if err != nil {
		return nil, i.fail(logCtx, StageCommitted, fmt.Errorf("failed to create assertion: %w", err))
	}
	logCtx.Info("Assertion committed.", "state", StageCommitted, "assertionId", assertion.ID)

	i.handOff(ctx, logCtx, models.WorkflowHandoff{DocumentID: meta.DocumentID, Key: e.Key, CID: cid.String()})

	return &models.IngestResult{Key: e.Key, CID: cid.String()}, nil
}

// fanOut runs the document lookup and the three artifact branches and joins
// them according to the configured policy.
func (i *Ingestor) fanOut(ctx context.Context, documentID string, defaults models.Document, file extract.File) (*artifacts, error) {
	var (
		art  artifacts
		eg   *errgroup.Group
		gctx = ctx
	)
	if i.config.JoinPolicy == JoinWaitAll {
		eg = &errgroup.Group{}
	} else {
		eg, gctx = errgroup.WithContext(ctx)
	}

	findOrCreate := func(ctx context.Context) error {
		doc, created, err := i.store.FindOrCreateDocument(ctx, documentID, defaults)
		if err != nil {
			return fmt.Errorf("failed to find or create document: %w", err)
		}
		art.document, art.created = doc, created
		return nil
	}

	if i.config.DocumentTiming == DocumentEager {
		eg.Go(func() error { return findOrCreate(gctx) })
	}
	eg.Go(func() error {
		addr, err := i.cas.AddBytes(gctx, file.Body)
		if err != nil {
			return fmt.Errorf("failed to add file bytes: %w", err)
		}
		art.fileHash = addr
		return nil
	})
	eg.Go(func() error {
		text, err := i.extractor.ExtractText(gctx, file)
		if err != nil {
			return fmt.Errorf("failed to extract text: %w", err)
		}
		addr, err := i.cas.AddBytes(gctx, text)
		if err != nil {
			return fmt.Errorf("failed to add extracted text: %w", err)
		}
		art.textHash, art.textSize = addr, int64(len(text))
		return nil
	})
	eg.Go(func() error {
		meta, err := i.extractor.ExtractMetadata(gctx, file)
		if err != nil {
			return fmt.Errorf("failed to extract metadata: %w", err)
		}
		if meta == nil {
			meta = map[string]any{}
		}
		addr, err := i.cas.AddStructured(gctx, meta)
		if err != nil {
			return fmt.Errorf("failed to add metadata: %w", err)
		}
		if err := i.cas.Pin(gctx, addr); err != nil {
			return fmt.Errorf("failed to pin metadata: %w", err)
		}
		art.metadata, art.metadataHash = meta, addr
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if i.config.DocumentTiming == DocumentDeferred {
		if err := findOrCreate(ctx); err != nil {
			return nil, err
		}
	}
	return &art, nil
}

func (i *Ingestor) handOff(ctx context.Context, logCtx *slog.Logger, handoff models.WorkflowHandoff) {
	if i.workflow == nil {
		return
	}
	execution, err := i.workflow.Trigger(ctx, handoff)
	if err != nil {
		logCtx.Error("Failed to hand off to workflow; assertion is already committed.", "error", err)
		return
	}
	logCtx.Info("Workflow triggered.", "execution", execution)
}

func (i *Ingestor) fileURL(key string) string {
	return fmt.Sprintf("%s/%s", i.config.AssetBaseURL, key)
}

func (i *Ingestor) fail(logCtx *slog.Logger, stage Stage, err error) error {
	var se *StageError
	if !errors.As(err, &se) {
		se = &StageError{Stage: stage, Err: err}
	}
	logCtx.Error("Ingestion failed.", "state", StageFailed, "stage", se.Stage, "error", se.Err)
	return se
}
