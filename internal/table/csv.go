package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	plainHeader    = []string{"name", "email", "date"}
	enrichedHeader = []string{"name", "email", "date", "day_of_week", "hour", "hour_block"}
)

// CSVStore persists a table as a delimited file with a header row.
type CSVStore struct {
	Path string
	// Enriched adds day_of_week, hour and hour_block columns.
	Enriched bool
	// Location is the clock the enriched columns are read in. Nil keeps each row's own offset.
	Location *time.Location
}

// NewCSVStore creates a CSV-backed store.
func NewCSVStore(path string, enriched bool) (*CSVStore, error) {
	if path == "" {
		return nil, fmt.Errorf("csv path is required")
	}
	return &CSVStore{Path: path, Enriched: enriched}, nil
}

// WriteTable writes all rows in insertion order, replacing any previous file.
func (s *CSVStore) WriteTable(_ context.Context, t *Table) (err error) {
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create csv temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := writeCSV(tmp, t, s.Enriched, s.Location); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close csv temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace csv file: %w", err)
	}
	return nil
}

// ReadTable reloads a table written by WriteTable. Both plain and enriched layouts are accepted.
func (s *CSVStore) ReadTable(_ context.Context) (*Table, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return readCSV(file)
}

func writeCSV(w io.Writer, t *Table, enriched bool, loc *time.Location) error {
	writer := csv.NewWriter(w)
	header := plainHeader
	if enriched {
		header = enrichedHeader
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range t.All() {
		record[0] = row.Name
		record[1] = row.Email
		record[2] = row.Date.Format(time.RFC3339)
		if enriched {
			local := row.Date
			if loc != nil {
				local = local.In(loc)
			}
			record[3] = local.Weekday().String()
			record[4] = strconv.Itoa(local.Hour())
			record[5] = BlockLabels[BlockIndex(local.Hour())]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func readCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv header: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range plainHeader {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("read csv header: missing column %q", required)
		}
	}

	var builder Builder
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		date, err := time.Parse(time.RFC3339, record[columns["date"]])
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: parse date: %w", line, err)
		}
		builder.Append(Row{
			Name:  record[columns["name"]],
			Email: record[columns["email"]],
			Date:  date,
		})
	}
	return builder.Freeze(), nil
}
