package database

import "github.com/charlesng35/moviecache/internal/models"

func cacheModels() []any {
	return []any{
		&models.CachedMovie{},
	}
}
