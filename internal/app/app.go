// Package app wires the playnext pieces together: it loads the catalog
// (from a snapshot or the raw source), builds the recommendation engine and
// runs the interactive query loop.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chriscorrea/playnext/internal/catalog"
	"github.com/chriscorrea/playnext/internal/fetch"
	"github.com/chriscorrea/playnext/internal/ingest"
	"github.com/chriscorrea/playnext/internal/recommend"
	"github.com/chriscorrea/playnext/internal/snapshot"
	"github.com/chriscorrea/playnext/internal/spinner"
)

// Config holds everything needed to load an engine and answer queries.
type Config struct {
	Source       string        // file path, URL, or "-" for stdin
	Format       ingest.Format // source layout
	SnapshotDir  string        // processed catalog store; empty disables it
	Rebuild      bool          // ignore any stored snapshot
	TopN         int
	QuitCommand  string
	OutputFormat OutputFormat
	Quiet        bool // suppress progress and warnings
	Engine       recommend.Config
	Fetch        fetch.Options
}

// Recommender is the engine surface used by the query loop and the server.
type Recommender interface {
	RecommendMatch(query string, topN int) (catalog.Item, []recommend.Recommendation, error)
}

// LoadEngine loads the catalog and builds a Ready engine.
//
// ctx allows for cancellation of the catalog download.
func LoadEngine(ctx context.Context, cfg Config) (*recommend.Engine, error) {
	var sp *spinner.Spinner
	if !cfg.Quiet && spinner.IsTerminal(os.Stderr) {
		sp = spinner.New(ctx, os.Stderr, "Loading catalog...")
		sp.Start()
		defer sp.Stop()
	}

	items, err := loadCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if sp != nil {
		sp.UpdateMessage(fmt.Sprintf("Vectorizing %d games...", len(items)))
	}
	engine, err := recommend.New(items, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to build recommender: %w", err)
	}
	if sp != nil {
		sp.StopWith(fmt.Sprintf("Ready: %s games", humanize.Comma(int64(engine.Len()))))
	}
	return engine, nil
}

// loadCatalog prefers a snapshot built from the same source and falls back
// to ingesting the raw source, refreshing the snapshot afterwards.
func loadCatalog(ctx context.Context, cfg Config) ([]catalog.Item, error) {
	store := openSnapshot(cfg)
	if store != nil {
		defer store.Close()

		if !cfg.Rebuild {
			items, meta, err := store.Load()
			switch {
			case err == nil && meta.Source == cfg.Source:
				slog.Debug("Using catalog snapshot", "dir", cfg.SnapshotDir, "items", len(items), "builtAt", meta.BuiltAt)
				return items, nil
			case err == nil:
				slog.Debug("Snapshot built from another source", "stored", meta.Source, "source", cfg.Source)
			case !errors.Is(err, snapshot.ErrNoSnapshot):
				warn(cfg, "ignoring catalog snapshot: %v", err)
			}
		}
	}

	rows, err := ingest.Load(ctx, fetch.New(cfg.Fetch), cfg.Source, cfg.Format)
	if err != nil {
		return nil, err
	}
	items, err := catalog.Build(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog from %q: %w", cfg.Source, err)
	}

	if store != nil {
		if err := store.Save(items, cfg.Source); err != nil {
			warn(cfg, "failed to save catalog snapshot: %v", err)
		}
	}
	return items, nil
}

// openSnapshot returns nil when snapshots are disabled or unavailable.
// Stdin sources are never snapshotted.
func openSnapshot(cfg Config) *snapshot.Store {
	if cfg.SnapshotDir == "" || cfg.Source == "-" {
		return nil
	}
	store, err := snapshot.Open(cfg.SnapshotDir)
	if err != nil {
		warn(cfg, "catalog snapshot unavailable: %v", err)
		return nil
	}
	return store
}

func warn(cfg Config, format string, args ...any) {
	if !cfg.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
	}
}

// Query answers a single query.
func Query(engine Recommender, query string, topN int) (Result, error) {
	match, recs, err := engine.RecommendMatch(query, topN)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Query:           query,
		Match:           match.Name,
		Recommendations: recs,
	}, nil
}

// RunOnce answers query and writes the result to out. A query that matches
// nothing is rendered and reported as an error so callers can set an exit
// status.
func RunOnce(engine Recommender, query string, out io.Writer, cfg Config) error {
	result, err := Query(engine, query, cfg.TopN)
	if err != nil {
		var notFound *recommend.NotFoundError
		if errors.As(err, &notFound) {
			if renderErr := RenderNotFound(out, notFound, cfg.OutputFormat); renderErr != nil {
				return renderErr
			}
		}
		return err
	}
	return Render(out, result, cfg.OutputFormat)
}

// Session is an interactive query loop.
type Session struct {
	engine Recommender
	cfg    Config
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewSession creates a query loop reading queries from in.
func NewSession(engine Recommender, cfg Config, in io.Reader, out, errOut io.Writer) *Session {
	if cfg.QuitCommand == "" {
		cfg.QuitCommand = "q"
	}
	return &Session{engine: engine, cfg: cfg, in: in, out: out, errOut: errOut}
}

// Run prompts for queries until the quit command, end of input, or ctx is
// cancelled. Queries that fail are reported and the loop continues.
//
// Input is read on a separate goroutine. It stops as soon as Run returns
// unless it is blocked inside a Read on s.in, in which case it exits once
// that Read returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		s.prompt()

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			if err := <-readErr; err != nil {
				return fmt.Errorf("failed to read query: %w", err)
			}
			s.newline()
			return nil
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, s.cfg.QuitCommand) {
			return nil
		}

		if err := s.answer(query); err != nil {
			return err
		}
	}
}

func (s *Session) answer(query string) error {
	result, err := Query(s.engine, query, s.cfg.TopN)
	if err != nil {
		if !renderQueryError(s.out, s.errOut, err, s.cfg.OutputFormat) {
			return err
		}
		return nil
	}
	if err := Render(s.out, result, s.cfg.OutputFormat); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

func (s *Session) prompt() {
	if s.cfg.Quiet {
		return
	}
	fmt.Fprintf(s.errOut, "\nEnter a game (or '%s' to quit): ", s.cfg.QuitCommand)
}

func (s *Session) newline() {
	if !s.cfg.Quiet {
		fmt.Fprintln(s.errOut)
	}
}
