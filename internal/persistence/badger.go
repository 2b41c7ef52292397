package persistence

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fxamacker/cbor/v2"
)

const (
	documentPrefix       = "doc:"
	assertionPrefix      = "asrt:"
	assertionIndexPrefix = "asrtdoc:"

	// maxConflictRetries bounds retries of a transaction that lost a write race.
	maxConflictRetries = 5
)

var valueEncMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("persistence: invalid cbor options: %v", err))
	}
	return em
}

// BadgerStore is an embedded Store, used for local runs and tests.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerStore opens a database at dir, or an in-memory one when inMemory is set.
// Creates the directory if it doesn't exist.
func OpenBadgerStore(dir string, inMemory bool) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if dir == "" {
			return nil, fmt.Errorf("BADGER_PATH must be set for an on-disk badger store")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

func (s *BadgerStore) FindOrCreateDocument(ctx context.Context, id string, defaults models.Document) (*models.Document, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("%w: document id is required", ErrPersistence)
	}
	var (
		doc     models.Document
		created bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		created = false
		found, err := getValue(txn, documentKey(id), &doc)
		if err != nil || found {
			return err
		}
		doc = newDocument(id, defaults, s.now())
		created = true
		return setValue(txn, documentKey(id), doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to find or create document %s: %v", ErrPersistence, id, err)
	}
	return &doc, created, nil
}

func (s *BadgerStore) UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var doc models.Document
		found, err := getValue(txn, documentKey(id), &doc)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if !ApplyUpdate(&doc, upd, s.now()) {
			return nil
		}
		return setValue(txn, documentKey(id), doc)
	})
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: document %s: %w", ErrPersistence, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to update document %s: %v", ErrPersistence, id, err)
	}
	return nil
}

func (s *BadgerStore) CreateAssertion(ctx context.Context, a *models.Assertion) (*models.Assertion, error) {
	out, err := prepareAssertion(a, s.now())
	if err != nil {
		return nil, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		var existing models.Assertion
		found, err := getValue(txn, assertionKey(out.ID), &existing)
		if err != nil {
			return err
		}
		if found {
			return ErrDuplicateKey
		}
		if err := setValue(txn, assertionKey(out.ID), out); err != nil {
			return err
		}
		return txn.Set(assertionIndexKey(out.DocumentID, out.CreatedAt, out.ID), []byte(out.ID))
	})
	if errors.Is(err, ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: assertion %s: %w", ErrPersistence, out.ID, ErrDuplicateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create assertion %s: %v", ErrPersistence, out.ID, err)
	}
	return out, nil
}

func (s *BadgerStore) ListAssertions(ctx context.Context, documentID string) ([]*models.Assertion, error) {
	var out []*models.Assertion
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = assertionIndexPrefixFor(documentID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var a models.Assertion
			found, err := getValue(txn, assertionKey(string(id)), &a)
			if err != nil {
				return err
			}
			if found {
				out = append(out, &a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list assertions for %s: %v", ErrPersistence, documentID, err)
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, v)
	})
}

func setValue(txn *badger.Txn, key []byte, v any) error {
	b, err := valueEncMode.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func documentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

func assertionKey(id string) []byte {
	return []byte(assertionPrefix + id)
}

// assertionIndexPrefixFor is the index prefix for one document.
// Format: prefix:len(documentID):documentID:
func assertionIndexPrefixFor(documentID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", assertionIndexPrefix, len(documentID), documentID))
}

// assertionIndexKey orders a document's assertions by creation time.
// Format: prefix:len(documentID):documentID:timestamp:id
func assertionIndexKey(documentID string, createdAt time.Time, id string) []byte {
	prefix := assertionIndexPrefixFor(documentID)
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	// BigEndian so lexicographic order matches time order.
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixNano()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}
