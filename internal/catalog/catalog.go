// Package catalog defines the in-memory game catalog consumed by the
// recommendation engine.
//
// Raw ingestion records (Row) carry heterogeneous feature fields: genre and
// category lists, weighted tag maps, or pre-joined text. Build validates the
// rows and composes every item's features into one normalized, lowercase text
// blob that the vectorizer can consume.
//
// Usage Example:
//
//	items, err := catalog.Build(rows)
//	if err != nil {
//		var loadErr *catalog.LoadError
//		errors.As(err, &loadErr) // row and field that failed
//	}
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Item is one processed catalog entry. Items are immutable once built.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Features string  `json:"features"` // composed lowercase feature text
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Price    float64 `json:"price"`
}

// Row is a raw record handed over by an ingestion collaborator.
type Row struct {
	ID         string
	Name       string  `validate:"required"`
	Genres     FeatureField
	Tags       FeatureField
	Categories FeatureField
	Positive   float64 `validate:"gte=0"`
	Negative   float64 `validate:"gte=0"`
	// Price is informational; any finite value passes.
	Price float64
}

// LoadError reports a malformed catalog. Row is -1 when the problem is not
// tied to a single record (e.g. an empty catalog or a missing column).
type LoadError struct {
	Row   int
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	switch {
	case e.Row < 0 && e.Field == "":
		return fmt.Sprintf("invalid catalog: %v", e.Err)
	case e.Row < 0:
		return fmt.Sprintf("invalid catalog: column %q: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("invalid catalog: row %d: field %q: %v", e.Row, e.Field, e.Err)
	}
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrEmptyCatalog is wrapped in a LoadError when no rows are supplied.
var ErrEmptyCatalog = errors.New("catalog has no items")

// rowValidator is safe for concurrent use and caches struct metadata.
var rowValidator = validator.New()

// Build validates rows and produces catalog items in the same order.
// Names are trimmed; any invalid row aborts the whole build so that no
// partial catalog is ever returned.
func Build(rows []Row) ([]Item, error) {
	if len(rows) == 0 {
		return nil, &LoadError{Row: -1, Err: ErrEmptyCatalog}
	}

	items := make([]Item, len(rows))
	for i, row := range rows {
		row.Name = strings.TrimSpace(row.Name)

		if err := validateRow(row); err != nil {
			return nil, withRow(err, i)
		}

		id := row.ID
		if id == "" {
			id = strconv.Itoa(i)
		}

		items[i] = Item{
			ID:       id,
			Name:     row.Name,
			Features: Compose(row.Genres, row.Tags, row.Categories),
			Positive: row.Positive,
			Negative: row.Negative,
			Price:    row.Price,
		}
	}

	slog.Debug("Catalog built", "items", len(items))
	return items, nil
}

// validateRow checks numeric sanity first (validator treats NaN as passing
// every comparison) and then applies the struct tags.
func validateRow(row Row) error {
	numeric := []struct {
		field string
		value float64
	}{
		{"Positive", row.Positive},
		{"Negative", row.Negative},
		{"Price", row.Price},
	}
	for _, n := range numeric {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return &LoadError{Field: n.field, Err: fmt.Errorf("value %v is not finite", n.value)}
		}
	}

	err := rowValidator.Struct(row)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &LoadError{Field: fe.Field(), Err: fmt.Errorf("failed %q check (value %v)", fe.Tag(), fe.Value())}
	}
	return &LoadError{Err: err}
}

func withRow(err error, row int) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		loadErr.Row = row
		return loadErr
	}
	return &LoadError{Row: row, Err: err}
}
