package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chriscorrea/playnext/internal/catalog"
)

// required CSV columns, matched case-insensitively
var csvColumns = []string{"Name", "Genres", "Tags", "Categories", "Positive", "Negative", "Price"}

const csvIDColumn = "AppID"

// DecodeCSV reads a catalog with a header row. Genres, Tags and Categories
// cells are kept as pre-joined text. Empty numeric cells read as zero and
// rows with a blank name are skipped.
func DecodeCSV(r io.Reader) ([]catalog.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &catalog.LoadError{Row: -1, Err: catalog.ErrEmptyCatalog}
	}
	if err != nil {
		return nil, &catalog.LoadError{Row: -1, Err: fmt.Errorf("failed to read CSV header: %w", err)}
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}
	for _, column := range csvColumns {
		if _, ok := positions[strings.ToLower(column)]; !ok {
			return nil, &catalog.LoadError{Row: -1, Field: column, Err: errors.New("missing column")}
		}
	}

	cell := func(record []string, column string) string {
		pos, ok := positions[strings.ToLower(column)]
		if !ok || pos >= len(record) {
			return ""
		}
		return record[pos]
	}

	var rows []catalog.Row
	skipped := 0
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &catalog.LoadError{Row: len(rows), Err: fmt.Errorf("failed to read CSV line %d: %w", line+1, err)}
		}

		name := cell(record, "Name")
		if strings.TrimSpace(name) == "" {
			skipped++
			continue
		}

		row := catalog.Row{
			ID:         strings.TrimSpace(cell(record, csvIDColumn)),
			Name:       name,
			Genres:     textOrMissing(cell(record, "Genres")),
			Tags:       textOrMissing(cell(record, "Tags")),
			Categories: textOrMissing(cell(record, "Categories")),
		}

		numbers := []struct {
			column string
			dest   *float64
		}{
			{"Positive", &row.Positive},
			{"Negative", &row.Negative},
			{"Price", &row.Price},
		}
		for _, n := range numbers {
			value, err := parseNumber(cell(record, n.column))
			if err != nil {
				return nil, &catalog.LoadError{Row: len(rows), Field: n.column, Err: err}
			}
			*n.dest = value
		}

		rows = append(rows, row)
	}

	slog.Debug("Decoded CSV catalog", "rows", len(rows), "skipped", skipped)
	return rows, nil
}

func textOrMissing(s string) catalog.FeatureField {
	if strings.TrimSpace(s) == "" {
		return catalog.FeatureField{}
	}
	return catalog.TextField(s)
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return value, nil
}
