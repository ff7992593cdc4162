package storage

import (
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Storage is the interface for all export backends.
type Storage interface {
	// Store hands a batch of records to the backend.
	Store(records []*types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the configured file sink. When a Mongo URI is configured the
// records are also written to MongoDB.
func New(cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	file, err := NewFileStorage(cfg.Type, cfg.OutputPath, cfg.Sheet, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Mongo.URI == "" {
		return file, nil
	}

	mongo, err := NewMongoStorage(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
	if err != nil {
		return nil, fmt.Errorf("mongo sink: %w", err)
	}
	return NewMultiStorage([]Storage{file, mongo}, logger), nil
}

// Columns returns the union of field names across records, in the order
// each name is first seen.
func Columns(records []*types.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// Rows lays records out under cols. Missing fields become empty cells.
func Rows(records []*types.Record, cols []string) [][]string {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = rec.GetString(c)
		}
		rows[i] = row
	}
	return rows
}
