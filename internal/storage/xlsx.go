package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/ibscout/internal/types"
)

const defaultSheet = "Sheet1"

// XLSXStorage buffers records and writes them as one worksheet on Close:
// a header row of column names followed by one row per record.
type XLSXStorage struct {
	path    string
	sheet   string
	records []*types.Record
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewXLSXStorage creates a new spreadsheet storage.
func NewXLSXStorage(outputPath, sheet string, logger *slog.Logger) (*XLSXStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if sheet == "" {
		sheet = defaultSheet
	}

	return &XLSXStorage{
		path:   outputPath,
		sheet:  sheet,
		logger: logger.With("component", "xlsx_storage"),
	}, nil
}

func (s *XLSXStorage) Name() string { return "xlsx" }

func (s *XLSXStorage) Store(records []*types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.logger.Debug("records buffered", "count", len(records), "total", len(s.records))
	return nil
}

func (s *XLSXStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if s.sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, s.sheet); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("rename sheet: %w", err)}
		}
	}

	sw, err := f.NewStreamWriter(s.sheet)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	cols := Columns(s.records)
	if len(cols) > 0 {
		if err := sw.SetRow("A1", toCells(cols)); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write header: %w", err)}
		}
	}
	for i, row := range Rows(s.records, cols) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return &types.StorageError{Backend: s.Name(), Err: err}
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write row %d: %w", i+2, err)}
		}
	}
	if err := sw.Flush(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	if err := f.SaveAs(s.path); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("save %s: %w", s.path, err)}
	}

	s.logger.Info("spreadsheet written", "path", s.path, "records", len(s.records), "columns", len(cols))
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
