package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/manifest"
)

// openManifest opens the manifest database at path, creating it and its
// schema if needed. The caller closes both the store and the database.
func openManifest(path string) (*sql.DB, *manifest.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create manifest dir: %w", err)
		}
	}

	db, err := initDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manifest database: %w", err)
	}
	// SQLite allows a single writer; the copy workers share one connection.
	db.SetMaxOpenConns(1)

	if err = manifest.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup manifest schema: %w", err)
	}
	store, err := manifest.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create manifest store: %w", err)
	}
	return db, store, nil
}
