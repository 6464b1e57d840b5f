package config

import (
	"fmt"
	"strings"
)

// Column types that differ between the supported dialects.
var dialectTypes = map[string]*strings.Replacer{
	DriverSQLite:   strings.NewReplacer("{{ts}}", "DATETIME"),
	DriverPostgres: strings.NewReplacer("{{ts}}", "TIMESTAMPTZ"),
	DriverMySQL:    strings.NewReplacer("{{ts}}", "DATETIME(6)"),
}

// UTC calendar day of created_at as YYYY-MM-DD. Timestamps are always written
// in UTC; SQLite keeps them as text beginning with the date.
var dialectDay = map[string]string{
	DriverSQLite:   "substr(created_at, 1, 10)",
	DriverPostgres: "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	DriverMySQL:    "DATE_FORMAT(created_at, '%Y-%m-%d')",
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS owners (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			last_login_at {{ts}} NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(36) PRIMARY KEY,
			owner_id VARCHAR(36) NOT NULL REFERENCES owners(id),
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			allowed_domains TEXT NOT NULL,
			created_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) PRIMARY KEY,
			project_id VARCHAR(36) NOT NULL REFERENCES projects(id),
			name VARCHAR(255) NOT NULL DEFAULT '',
			public_key VARCHAR(32) UNIQUE NOT NULL,
			secret_hash VARCHAR(100) NOT NULL,
			last4 VARCHAR(4) NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at {{ts}} NULL,
			rotated_at {{ts}} NULL,
			last_used {{ts}} NULL,
			created_at {{ts}} NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(36) PRIMARY KEY,
			project_id VARCHAR(36) NOT NULL REFERENCES projects(id),
			name VARCHAR(255) NOT NULL,
			metadata TEXT NOT NULL,
			created_at {{ts}} NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_project ON api_keys(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_created ON events(project_id, created_at)`,
	}

	types := dialectTypes[s.driver]
	for _, m := range migrations {
		m = types.Replace(m)
		if s.driver == DriverMySQL {
			// MySQL has no IF NOT EXISTS for indexes.
			m = strings.Replace(m, "INDEX IF NOT EXISTS", "INDEX", 1)
		}
		if _, err := s.db.Exec(m); err != nil {
			// Re-running index creation on MySQL reports the existing name;
			// treat it as a no-op so migrations stay idempotent.
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
