package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates the blob table. It is idempotent.
func InitSchema(db *sql.DB) error {
	ddlStatements := []string{
		// blobs: one row per named JSON document
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
