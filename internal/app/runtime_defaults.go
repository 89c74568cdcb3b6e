package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/moviecache/internal/database"
)

// ApplyRuntimeDefaults reconciles settings that depend on each other once every
// source has been read. It returns the keys it changed so callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	changed := make(map[string]bool)

	// DATABASE_URL usually points at a managed Postgres instance.
	if database.IsPostgresURL(cfg.Database.DSN) && !isPostgresDriver(cfg.Database.Driver) {
		cfg.Database.Driver = "postgres"
		changed["database.driver"] = true
	}

	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.OMDB.BaseURL), "/"); trimmed != cfg.OMDB.BaseURL {
		cfg.OMDB.BaseURL = trimmed
		changed["omdb.base_url"] = true
	}

	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
		changed["server.cors.allowed_origins"] = true
	}

	if cfg.Monitoring.Prometheus.Endpoint != "" && !strings.HasPrefix(cfg.Monitoring.Prometheus.Endpoint, "/") {
		cfg.Monitoring.Prometheus.Endpoint = "/" + cfg.Monitoring.Prometheus.Endpoint
		changed["monitoring.prometheus.endpoint"] = true
	}

	return changed, nil
}

func isPostgresDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql":
		return true
	}
	return false
}
