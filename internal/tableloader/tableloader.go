// Package tableloader reads tabular question banks into rows of named
// fields. Field names are matched case-insensitively after trimming;
// unknown columns are carried through and simply ignored by callers.
package tableloader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrFileAbsent signals a missing local table; callers fall back to
	// remote retrieval.
	ErrFileAbsent = errors.New("tableloader: file absent")
	// ErrMalformedRow marks a single unusable row. It is recorded per row,
	// never returned for a whole file.
	ErrMalformedRow = errors.New("tableloader: malformed row")
)

// Row is one record keyed by normalized (lower-cased, trimmed) column name.
type Row map[string]string

// Get returns the value for a field name, matched case-insensitively.
func (r Row) Get(name string) string {
	return r[normalize(name)]
}

// GetAny returns the first non-empty value among alternative column names.
// Question banks authored over the years use several header spellings for
// the same field.
func (r Row) GetAny(names ...string) string {
	for _, n := range names {
		if v := r.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Loader yields rows of named fields from a tabular source.
type Loader interface {
	LoadTable(path string) ([]Row, error)
	ParseTable(data []byte) ([]Row, error)
}

// CSVLoader reads comma-separated tables from disk or memory.
type CSVLoader struct {
	log zerolog.Logger
}

// NewCSVLoader creates a CSVLoader.
func NewCSVLoader(log zerolog.Logger) *CSVLoader {
	return &CSVLoader{log: log.With().Str("component", "tableloader").Logger()}
}

// LoadTable reads a CSV file. A missing file returns ErrFileAbsent; rows
// that cannot be aligned with the header are skipped and logged, never
// fatal to the file.
func (l *CSVLoader) LoadTable(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileAbsent
		}
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	rows, err := l.parse(data, path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseTable parses in-memory CSV bytes, e.g. a remotely fetched file.
func (l *CSVLoader) ParseTable(data []byte) ([]Row, error) {
	return l.parse(data, "<memory>")
}

func (l *CSVLoader) parse(data []byte, origin string) ([]Row, error) {
	// Strip a UTF-8 BOM; files exported from spreadsheets routinely carry one.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", origin, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = normalize(h)
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.log.Error().
				Str("file", origin).
				Int("line", line).
				Err(fmt.Errorf("%w: %v", ErrMalformedRow, err)).
				Msg("skipping unreadable row")
			continue
		}
		if len(record) < len(columns) {
			l.log.Error().
				Str("file", origin).
				Int("line", line).
				Int("fields", len(record)).
				Int("expected", len(columns)).
				Err(ErrMalformedRow).
				Msg("skipping short row")
			continue
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			row[col] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
