// Package ingest turns raw catalog sources into catalog rows.
//
// Two source layouts are understood: the Steam JSON dump (an object keyed by
// app id) and a flat CSV export with one game per line.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/chriscorrea/playnext/internal/catalog"
	"github.com/chriscorrea/playnext/internal/fetch"
)

// Format selects the source decoder.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name; the empty string means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown catalog format %q (want auto, json or csv)", s)
	}
}

// Detect resolves FormatAuto from the source name: ".csv" reads as CSV and
// ".json" as JSON. Anything else, stdin included, stays FormatAuto and is
// sniffed from the content by Load.
func Detect(source string, format Format) Format {
	if format != FormatAuto && format != "" {
		return format
	}
	// strip any URL query before looking at the extension
	name := source
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

var utf8BOM = []byte("\xef\xbb\xbf")

// sniffSize bounds how much leading content is inspected.
const sniffSize = 512

// sniff picks JSON when the first significant byte opens an object and CSV
// otherwise. Empty input reads as JSON and fails to decode.
func sniff(r *bufio.Reader) Format {
	head, _ := r.Peek(sniffSize)
	head = bytes.TrimLeft(head, " \t\r\n")
	if len(head) == 0 || head[0] == '{' {
		return FormatJSON
	}
	return FormatCSV
}

// Load fetches source and decodes it into rows.
func Load(ctx context.Context, fetcher *fetch.Fetcher, source string, format Format) ([]catalog.Row, error) {
	if fetcher == nil {
		fetcher = fetch.New(fetch.DefaultOptions())
	}

	reader, err := fetcher.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	buffered := bufio.NewReaderSize(reader, sniffSize)
	if head, _ := buffered.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}
	resolved := Detect(source, format)
	if resolved == FormatAuto {
		resolved = sniff(buffered)
		slog.Debug("Sniffed catalog format", "source", source, "format", resolved)
	}

	var rows []catalog.Row
	switch resolved {
	case FormatCSV:
		rows, err = DecodeCSV(buffered)
	default:
		rows, err = DecodeJSON(buffered)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog from %q: %w", source, err)
	}
	return rows, nil
}
