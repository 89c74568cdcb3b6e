package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/moviecache/internal/models"
)

var errStoreNotInitialised = errors.New("cache: database store not initialised")

// DatabaseStore implements MovieStore on the primary SQL database.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore constructs a database-backed MovieStore.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

// Get retrieves the cached row for imdbID. A missing row is not an error.
func (s *DatabaseStore) Get(ctx context.Context, imdbID string) (*models.CachedMovie, error) {
	if s == nil {
		return nil, errStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var entry models.CachedMovie
	err := s.db.WithContext(ctx).Take(&entry, "imdbid = ?", imdbID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert replaces the payload and timestamp for imdbID, creating the row when absent.
func (s *DatabaseStore) Upsert(ctx context.Context, imdbID string, payload json.RawMessage, at time.Time) error {
	if s == nil {
		return errStoreNotInitialised
	}
	if strings.TrimSpace(imdbID) == "" {
		return errors.New("cache: identifier is required")
	}
	if len(payload) == 0 {
		return errors.New("cache: payload is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	entry := models.CachedMovie{
		IMDbID:    imdbID,
		Data:      datatypes.JSON(payload),
		UpdatedAt: at.UTC(),
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "imdbid"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&entry).Error
}

// CountByFreshness counts rows updated strictly after cutoff as fresh.
func (s *DatabaseStore) CountByFreshness(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	if s == nil {
		return 0, 0, errStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var total, fresh int64
	db := s.db.WithContext(ctx).Model(&models.CachedMovie{})
	if err := db.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Model(&models.CachedMovie{}).
		Where("updated_at > ?", cutoff.UTC()).
		Count(&fresh).Error; err != nil {
		return 0, 0, err
	}
	return fresh, total - fresh, nil
}
