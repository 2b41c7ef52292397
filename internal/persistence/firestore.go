package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps documents and assertions in two collections, each
// keyed by the entity id.
type FirestoreStore struct {
	client     *firestore.Client
	documents  string
	assertions string
	now        func() time.Time
}

// NewFirestoreStore wraps a Firestore client.
func NewFirestoreStore(client *firestore.Client, documentsCollection, assertionsCollection string) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		documents:  documentsCollection,
		assertions: assertionsCollection,
		now:        time.Now,
	}
}

func (s *FirestoreStore) FindOrCreateDocument(ctx context.Context, id string, defaults models.Document) (*models.Document, bool, error) {
	ref := s.client.Collection(s.documents).Doc(id)
	var (
		doc     models.Document
		created bool
	)
	// The transaction function may be retried on contention.
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			return snap.DataTo(&doc)
		}
		doc = newDocument(id, defaults, s.now())
		created = true
		return tx.Create(ref, doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to find or create document %s: %v", ErrPersistence, id, err)
	}
	doc.ID = id
	return &doc, created, nil
}

func (s *FirestoreStore) UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	var updates []firestore.Update
	if upd.Title != nil && *upd.Title != "" {
		updates = append(updates, firestore.Update{Path: "title", Value: *upd.Title})
	}
	if upd.FileURL != nil {
		updates = append(updates, firestore.Update{Path: "fileUrl", Value: *upd.FileURL})
	}
	if upd.FileName != nil {
		updates = append(updates, firestore.Update{Path: "fileName", Value: *upd.FileName})
	}
	if upd.ContentType != nil {
		updates = append(updates, firestore.Update{Path: "contentType", Value: *upd.ContentType})
	}
	if len(updates) == 0 {
		return nil
	}
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: s.now()})

	if _, err := s.client.Collection(s.documents).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: document %s: %w", ErrPersistence, id, ErrNotFound)
		}
		return fmt.Errorf("%w: failed to update document %s: %v", ErrPersistence, id, err)
	}
	return nil
}

func (s *FirestoreStore) CreateAssertion(ctx context.Context, a *models.Assertion) (*models.Assertion, error) {
	out, err := prepareAssertion(a, s.now())
	if err != nil {
		return nil, err
	}
	// Create fails if the document already exists, which keeps assertions append-only.
	if _, err := s.client.Collection(s.assertions).Doc(out.ID).Create(ctx, out); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, fmt.Errorf("%w: assertion %s: %w", ErrPersistence, out.ID, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("%w: failed to create assertion %s: %v", ErrPersistence, out.ID, err)
	}
	return out, nil
}

// ListAssertions needs the (documentId, createdAt) composite index from
// firestore.indexes.json; without it the query fails with FailedPrecondition.
func (s *FirestoreStore) ListAssertions(ctx context.Context, documentID string) ([]*models.Assertion, error) {
	it := s.client.Collection(s.assertions).
		Where("documentId", "==", documentID).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var out []*models.Assertion
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list assertions for %s: %v", ErrPersistence, documentID, err)
		}
		var a models.Assertion
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("%w: failed to decode assertion %s: %v", ErrPersistence, snap.Ref.ID, err)
		}
		a.ID = snap.Ref.ID
		out = append(out, &a)
	}
	return out, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
