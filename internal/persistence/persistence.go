// Package persistence registers documents and provenance assertions.
//
// Documents are upserted idempotently by their caller-supplied id; assertions
// are append-only and never updated or deleted.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
)

var (
	// ErrPersistence wraps every database failure reported by a Store.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates an insert collided with an existing record.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store is the persistence layer used by the ingestion pipeline.
type Store interface {
	// FindOrCreateDocument atomically returns the document with the given id,
	// creating it from defaults when absent. created reports which happened.
	FindOrCreateDocument(ctx context.Context, id string, defaults models.Document) (doc *models.Document, created bool, err error)

	// UpdateDocument applies the non-nil fields of upd. Title is only
	// overwritten by a non-empty value.
	UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error

	// CreateAssertion inserts a new assertion. Existing ids are rejected.
	CreateAssertion(ctx context.Context, a *models.Assertion) (*models.Assertion, error)

	// ListAssertions returns the assertions recorded for a document, oldest first.
	ListAssertions(ctx context.Context, documentID string) ([]*models.Assertion, error)

	Close() error
}

// ApplyUpdate mutates doc according to the DocumentUpdate rules and reports
// whether anything changed.
func ApplyUpdate(doc *models.Document, upd models.DocumentUpdate, now time.Time) bool {
	changed := false
	set := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	if upd.Title != nil && *upd.Title != "" {
		set(&doc.Title, upd.Title)
	}
	set(&doc.FileURL, upd.FileURL)
	set(&doc.FileName, upd.FileName)
	set(&doc.ContentType, upd.ContentType)
	if changed {
		doc.UpdatedAt = now
	}
	return changed
}

// newDocument builds the row created on first sight of id.
func newDocument(id string, defaults models.Document, now time.Time) models.Document {
	doc := defaults
	doc.ID = id
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt
	return doc
}

func prepareAssertion(a *models.Assertion, now time.Time) (*models.Assertion, error) {
	if a == nil || a.ID == "" || a.CID == "" || a.DocumentID == "" {
		return nil, fmt.Errorf("%w: assertion requires id, cid and documentId", ErrPersistence)
	}
	out := *a
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	return &out, nil
}
