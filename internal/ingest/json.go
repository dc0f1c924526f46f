package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/chriscorrea/playnext/internal/catalog"
)

// jsonGame is one value of the Steam dump object. Feature fields are decoded
// lazily because their shape varies between records.
type jsonGame struct {
	Name       *string         `json:"name"`
	Genres     json.RawMessage `json:"genres"`
	Tags       json.RawMessage `json:"tags"`
	Categories json.RawMessage `json:"categories"`
	Positive   *float64        `json:"positive"`
	Negative   *float64        `json:"negative"`
	Price      *float64        `json:"price"`
}

// DecodeJSON reads a Steam style catalog: one object keyed by app id whose
// values carry name, genres, tags, categories, positive, negative and price.
// Rows keep the order of the source object. A repeated id replaces the
// earlier record in place. Records without a name are skipped.
func DecodeJSON(r io.Reader) ([]catalog.Row, error) {
	ids, games, err := decodeObject(json.NewDecoder(r))
	if err != nil {
		return nil, &catalog.LoadError{Row: -1, Err: fmt.Errorf("failed to decode JSON catalog: %w", err)}
	}

	rows := make([]catalog.Row, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		game := games[id]
		if game.Name == nil || strings.TrimSpace(*game.Name) == "" {
			skipped++
			continue
		}

		row := catalog.Row{
			ID:       id,
			Name:     *game.Name,
			Positive: valueOrZero(game.Positive),
			Negative: valueOrZero(game.Negative),
			Price:    valueOrZero(game.Price),
		}

		if row.Genres, err = decodeFeature(game.Genres); err != nil {
			return nil, &catalog.LoadError{Row: len(rows), Field: "Genres", Err: err}
		}
		if row.Tags, err = decodeFeature(game.Tags); err != nil {
			return nil, &catalog.LoadError{Row: len(rows), Field: "Tags", Err: err}
		}
		if row.Categories, err = decodeFeature(game.Categories); err != nil {
			return nil, &catalog.LoadError{Row: len(rows), Field: "Categories", Err: err}
		}

		rows = append(rows, row)
	}

	slog.Debug("Decoded JSON catalog", "records", len(ids), "rows", len(rows), "skipped", skipped)
	return rows, nil
}

// decodeObject streams the top-level object, returning its keys in source
// order. A top-level null is an empty catalog.
func decodeObject(dec *json.Decoder) ([]string, map[string]jsonGame, error) {
	games := make(map[string]jsonGame)

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == nil {
		return nil, games, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object keyed by app id, got %v", tok)
	}

	var ids []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected key %v", tok)
		}

		var game jsonGame
		if err := dec.Decode(&game); err != nil {
			return nil, nil, fmt.Errorf("record %q: %w", id, err)
		}
		if _, seen := games[id]; !seen {
			ids = append(ids, id)
		}
		games[id] = game
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return ids, games, nil
}

// decodeFeature maps a JSON value onto the feature union: arrays become
// lists, objects become tag weights, strings become text, and null or an
// absent key is Missing. Other scalars are kept as their literal text.
func decodeFeature(raw json.RawMessage) (catalog.FeatureField, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return catalog.FeatureField{}, nil
	}

	switch trimmed[0] {
	case '[':
		var values []any
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return catalog.FeatureField{}, fmt.Errorf("invalid list: %w", err)
		}
		list := make([]string, 0, len(values))
		for _, v := range values {
			if v == nil {
				continue
			}
			list = append(list, scalarText(v))
		}
		return catalog.ListField(list...), nil
	case '{':
		var weights map[string]float64
		if err := json.Unmarshal(trimmed, &weights); err != nil {
			return catalog.FeatureField{}, fmt.Errorf("invalid tag weights: %w", err)
		}
		return catalog.WeightsField(weights), nil
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return catalog.FeatureField{}, fmt.Errorf("invalid text: %w", err)
		}
		return catalog.TextField(text), nil
	default:
		return catalog.TextField(string(trimmed)), nil
	}
}

func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
