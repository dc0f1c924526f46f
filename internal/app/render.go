package app

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/chriscorrea/playnext/internal/recommend"
)

// OutputFormat defines the output format for results
type OutputFormat int

const (
	// aligned plain text table (default)
	Text OutputFormat = iota
	// markdown table
	Markdown
	// JSON document
	JSON
)

// String returns the string representation of the output
func (f OutputFormat) String() string {
	switch f {
	case Text:
		return "Text"
	case Markdown:
		return "Markdown"
	case JSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// ParseOutputFormat maps a config value (text, markdown/md, json) to a format.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "markdown", "md":
		return Markdown, nil
	case "json":
		return JSON, nil
	default:
		return Text, fmt.Errorf("unknown output format %q", s)
	}
}

// Result is the answer to one query.
type Result struct {
	Query           string                     `json:"query"`
	Match           string                     `json:"match"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// Render writes result in the requested format.
func Render(w io.Writer, result Result, format OutputFormat) error {
	switch format {
	case JSON:
		return renderJSON(w, result)
	case Markdown:
		return renderMarkdown(w, result)
	default:
		return renderText(w, result)
	}
}

func renderText(w io.Writer, result Result) error {
	if _, err := fmt.Fprintf(w, "Games similar to %s:\n\n", result.Match); err != nil {
		return err
	}
	if len(result.Recommendations) == 0 {
		_, err := fmt.Fprintln(w, "No recommendations.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tPositive\tNegative\tPrice\tScore\t")
	for _, rec := range result.Recommendations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t\n",
			rec.Name, formatVotes(rec.Positive), formatVotes(rec.Negative), formatPrice(rec.Price), rec.Score)
	}
	return tw.Flush()
}

func renderMarkdown(w io.Writer, result Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## Games similar to %s\n\n", escapeMarkdown(result.Match))
	if len(result.Recommendations) == 0 {
		b.WriteString("_No recommendations._\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteString("| # | Name | Positive | Negative | Price | Score |\n")
	b.WriteString("|--:|:-----|---------:|---------:|------:|------:|\n")
	for i, rec := range result.Recommendations {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %.3f |\n",
			i+1, escapeMarkdown(rec.Name), formatVotes(rec.Positive), formatVotes(rec.Negative), formatPrice(rec.Price), rec.Score)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderJSON(w io.Writer, result Result) error {
	if result.Recommendations == nil {
		result.Recommendations = []recommend.Recommendation{}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// RenderNotFound writes the message shown when a query resolves to nothing.
func RenderNotFound(w io.Writer, notFound *recommend.NotFoundError, format OutputFormat) error {
	if format == JSON {
		payload := struct {
			Error       string   `json:"error"`
			Query       string   `json:"query"`
			Suggestions []string `json:"suggestions"`
		}{notFound.Error(), notFound.Query, notFound.Suggestions}
		if payload.Suggestions == nil {
			payload.Suggestions = []string{}
		}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Could not find '%s'.\n", notFound.Query)
	if len(notFound.Suggestions) > 0 {
		fmt.Fprintf(&b, "Did you mean: %s?\n", strings.Join(notFound.Suggestions, ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// renderQueryError writes a per-query failure. It returns false for errors
// the caller should not recover from.
func renderQueryError(w io.Writer, errOut io.Writer, err error, format OutputFormat) bool {
	var notFound *recommend.NotFoundError
	switch {
	case errors.As(err, &notFound):
		if renderErr := RenderNotFound(w, notFound, format); renderErr != nil {
			fmt.Fprintf(errOut, "Error: %v\n", renderErr)
		}
		return true
	case errors.Is(err, recommend.ErrNotReady):
		return false
	default:
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return true
	}
}

// formatVotes prints whole vote counts with thousands separators.
func formatVotes(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return humanize.Comma(int64(v))
	}
	return humanize.Commaf(v)
}

func formatPrice(p float64) string {
	if p == 0 {
		return "Free"
	}
	return "$" + humanize.FormatFloat("#,###.##", p)
}

var markdownEscaper = strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
