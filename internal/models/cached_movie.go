package models

import (
	"time"

	"gorm.io/datatypes"
)

// CachedMovie is the last successful upstream payload stored for an identifier.
// Rows are replaced on every successful fetch and never deleted.
type CachedMovie struct {
	IMDbID    string         `gorm:"column:imdbid;primaryKey;size:64"`
	Data      datatypes.JSON `gorm:"column:data;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;index;autoUpdateTime:false"`
}

// TableName pins the table name used by the original deployment.
func (CachedMovie) TableName() string {
	return "movie_cache"
}

// IsFresh reports whether the row is younger than ttl at the given instant.
func (m *CachedMovie) IsFresh(now time.Time, ttl time.Duration) bool {
	if m == nil {
		return false
	}
	return now.Sub(m.UpdatedAt) < ttl
}
