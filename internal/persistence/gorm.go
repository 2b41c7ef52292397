package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/documentprovenance/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore keeps documents and assertions in SQL tables.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgresStore connects to the database named by dsn (DATABASE_URL).
func OpenPostgresStore(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set for the postgres store")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return NewGormStore(db), nil
}

// NewGormStore wraps an open gorm connection. TranslateError should be
// enabled so duplicate inserts surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Migrate creates or updates the documents and assertions tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Document{}, &models.Assertion{}); err != nil {
		return fmt.Errorf("%w: failed to migrate: %v", ErrPersistence, err)
	}
	return nil
}

func (s *GormStore) FindOrCreateDocument(ctx context.Context, id string, defaults models.Document) (*models.Document, bool, error) {
	doc := newDocument(id, defaults, s.now())
	// ON CONFLICT DO NOTHING makes concurrent first sightings race-free.
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
	if res.Error != nil {
		return nil, false, fmt.Errorf("%w: failed to create document %s: %v", ErrPersistence, id, res.Error)
	}
	created := res.RowsAffected == 1

	var stored models.Document
	if err := s.db.WithContext(ctx).First(&stored, "id = ?", id).Error; err != nil {
		return nil, false, fmt.Errorf("%w: failed to load document %s: %v", ErrPersistence, id, err)
	}
	return &stored, created, nil
}

func (s *GormStore) UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	fields := map[string]any{}
	if upd.Title != nil && *upd.Title != "" {
		fields["title"] = *upd.Title
	}
	if upd.FileURL != nil {
		fields["file_url"] = *upd.FileURL
	}
	if upd.FileName != nil {
		fields["file_name"] = *upd.FileName
	}
	if upd.ContentType != nil {
		fields["content_type"] = *upd.ContentType
	}
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = s.now()

	res := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%w: failed to update document %s: %v", ErrPersistence, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s: %w", ErrPersistence, id, ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateAssertion(ctx context.Context, a *models.Assertion) (*models.Assertion, error) {
	out, err := prepareAssertion(a, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(out).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: assertion %s: %w", ErrPersistence, out.ID, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("%w: failed to create assertion %s: %v", ErrPersistence, out.ID, err)
	}
	return out, nil
}

func (s *GormStore) ListAssertions(ctx context.Context, documentID string) ([]*models.Assertion, error) {
	var out []*models.Assertion
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list assertions for %s: %v", ErrPersistence, documentID, err)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
