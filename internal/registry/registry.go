// Package registry resolves operator, manufacturer and model for an aircraft
// from a local copy of the OpenSky aircraft database.
package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"flight-map-dashboard/pkg/logger"
)

var ErrMissingColumn = errors.New("registry: missing identifier column")

// Metadata is what the registry knows about one airframe. Unknown values are empty strings.
type Metadata struct {
	Operator     string `json:"operator"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// Registry is an in-memory index keyed by lower-case icao24.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Metadata
}

func New() *Registry {
	return &Registry{entries: make(map[string]Metadata)}
}

// Lookup never fails: a miss returns empty strings.
func (r *Registry) Lookup(icao24 string) Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[normalize(icao24)]
}

// Len returns the number of indexed airframes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Put adds or replaces an entry.
func (r *Registry) Put(icao24 string, m Metadata) {
	key := normalize(icao24)
	if key == "" {
		return
	}
	r.mu.Lock()
	r.entries[key] = m
	r.mu.Unlock()
}

// LoadFile reads a CSV or XLSX registry chosen by extension. An empty path or
// a missing file leaves an empty registry and only logs a warning.
func LoadFile(path string, log *logger.Logger) (*Registry, error) {
	r := New()
	if path == "" {
		log.Warn("No aircraft registry configured, metadata lookups will be empty")
		return r, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("Aircraft registry %s not found, metadata lookups will be empty", path)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = r.LoadXLSX(f)
	default:
		err = r.LoadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry %s: %w", path, err)
	}

	log.Info("Loaded %d aircraft from registry %s", r.Len(), path)
	return r, nil
}

// LoadCSV indexes rows from a CSV with a header row. Columns are matched by
// name, so extra columns and any column order are fine.
func (r *Registry) LoadCSV(src io.Reader) error {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	cols, err := columnsFor(header)
	if err != nil {
		return err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading row: %w", err)
		}
		r.putRow(cols, record)
	}
}

// LoadXLSX indexes rows from the first sheet of a workbook.
func (r *Registry) LoadXLSX(src io.Reader) error {
	book, err := excelize.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil
	}

	cols, err := columnsFor(rows[0])
	if err != nil {
		return err
	}
	for _, row := range rows[1:] {
		r.putRow(cols, row)
	}
	return nil
}

type columns struct {
	icao24, operator, manufacturer, model int
}

func columnsFor(header []string) (columns, error) {
	cols := columns{icao24: -1, operator: -1, manufacturer: -1, model: -1}
	for i, name := range header {
		switch strings.ToLower(strings.Trim(strings.TrimSpace(name), `'"`)) {
		case "icao24":
			cols.icao24 = i
		case "operator":
			cols.operator = i
		case "manufacturername":
			cols.manufacturer = i
		case "model":
			cols.model = i
		}
	}
	if cols.icao24 < 0 {
		return cols, ErrMissingColumn
	}
	return cols, nil
}

func (r *Registry) putRow(cols columns, record []string) {
	r.Put(cell(record, cols.icao24), Metadata{
		Operator:     cell(record, cols.operator),
		Manufacturer: cell(record, cols.manufacturer),
		Model:        cell(record, cols.model),
	})
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(record[i], `'`))
}

func normalize(icao24 string) string {
	return strings.ToLower(strings.TrimSpace(icao24))
}
