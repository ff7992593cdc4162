package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ibscout/internal/types"
)

// recordBuffer holds records until the sink is closed. Column layout
// depends on every record, so file sinks cannot write incrementally.
type recordBuffer struct {
	records []*types.Record
	mu      sync.Mutex
}

func (b *recordBuffer) add(records []*types.Record) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, records...)
	return len(b.records)
}

func prepareOutput(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// --- JSON Storage ---

// JSONStorage writes records as a JSON array to a file.
type JSONStorage struct {
	recordBuffer
	path   string
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if err := prepareOutput(outputPath); err != nil {
		return nil, err
	}
	return &JSONStorage{
		path:   outputPath,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(records []*types.Record) error {
	total := s.add(records)
	s.logger.Debug("records buffered", "count", len(records), "total", total)
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	records := s.records
	if records == nil {
		records = []*types.Record{}
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(s.records))
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes records as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	recordBuffer
	path   string
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	if err := prepareOutput(outputPath); err != nil {
		return nil, err
	}
	return &JSONLStorage{
		path:   outputPath,
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(records []*types.Record) error {
	total := s.add(records)
	s.logger.Debug("records buffered", "count", len(records), "total", total)
	return nil
}

func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range s.records {
		if err := enc.Encode(rec); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSONL: %w", err)}
		}
	}

	s.logger.Info("JSONL written", "path", s.path, "records", len(s.records))
	return nil
}

// --- CSV Storage ---

// CSVStorage writes records as CSV rows under the column union header.
type CSVStorage struct {
	recordBuffer
	path   string
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	if err := prepareOutput(outputPath); err != nil {
		return nil, err
	}
	return &CSVStorage{
		path:   outputPath,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(records []*types.Record) error {
	total := s.add(records)
	s.logger.Debug("records buffered", "count", len(records), "total", total)
	return nil
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cols := Columns(s.records)
	if len(cols) > 0 {
		if err := w.Write(cols); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV header: %w", err)}
		}
	}
	if err := w.WriteAll(Rows(s.records, cols)); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV rows: %w", err)}
	}

	s.logger.Info("CSV written", "path", s.path, "records", len(s.records))
	return nil
}

// NewFileStorage creates the file-based storage for storageType.
func NewFileStorage(storageType, outputPath, sheet string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "xlsx", "":
		return NewXLSXStorage(outputPath, sheet, logger)
	case "json":
		return NewJSONStorage(outputPath, logger)
	case "jsonl":
		return NewJSONLStorage(outputPath, logger)
	case "csv":
		return NewCSVStorage(outputPath, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
