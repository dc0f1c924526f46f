// Package recommend implements the hybrid content + quality ranking engine.
//
// An Engine is built once from a catalog: quality scores are computed from
// vote counts, and every item's composed features are vectorized with
// TF-IDF. Each query then resolves to one catalog item by name, is compared
// against every item by cosine similarity, and the similarity is boosted by
// item quality:
//
//	hybrid = similarity * (1 + alpha*quality)
//
// The engine is immutable once Ready, so Recommend may be called from
// multiple goroutines without locking.
package recommend

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/chriscorrea/playnext/internal/catalog"
	"github.com/chriscorrea/playnext/internal/quality"
	"github.com/chriscorrea/playnext/internal/tfidf"
)

// State is the lifecycle state of an Engine.
type State int

const (
	// Uninitialized engines reject every query
	Uninitialized State = iota
	// Ready engines have a fitted model and scored catalog
	Ready
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	default:
		return "Unknown"
	}
}

// ErrNotReady is returned by Recommend on an engine that was not built by New.
var ErrNotReady = errors.New("recommendation engine is not ready")

// NotFoundError is returned when a query matches no catalog item. The
// engine stays usable.
type NotFoundError struct {
	Query       string
	Suggestions []string // closest catalog names, best first; may be empty
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %q", e.Query)
}

// Recommendation is one ranked result.
type Recommendation struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Positive   float64 `json:"positive"`
	Negative   float64 `json:"negative"`
	Price      float64 `json:"price"`
	Similarity float64 `json:"similarity"`
	Quality    float64 `json:"quality"`
	Score      float64 `json:"score"`
}

// Engine ranks catalog items by hybrid similarity to a query item.
// The zero value is Uninitialized.
type Engine struct {
	state      State
	cfg        Config
	items      []catalog.Item
	lowerNames []string
	quality    []float64
	stats      quality.Stats
	model      *tfidf.Model
	vectors    []tfidf.Vector
	names      *nameIndex
}

// New scores and vectorizes the catalog and returns a Ready engine.
// Errors are fatal: a *catalog.LoadError for an empty catalog or blank
// names, tfidf.ErrEmptyCorpus (wrapped) when no item has usable features,
// or a configuration error.
func New(items []catalog.Item, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &catalog.LoadError{Row: -1, Err: catalog.ErrEmptyCatalog}
	}

	lowerNames := make([]string, len(items))
	votes := make([]quality.Votes, len(items))
	documents := make([]string, len(items))
	for i, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, &catalog.LoadError{Row: i, Field: "Name", Err: errors.New("name is empty")}
		}
		lowerNames[i] = strings.ToLower(name)
		votes[i] = quality.Votes{Positive: item.Positive, Negative: item.Negative}
		documents[i] = item.Features
	}

	scores, stats := quality.Score(votes, cfg.Epsilon)

	model, vectors, err := tfidf.Fit(documents, tfidf.Options{
		MaxFeatures: cfg.MaxFeatures,
		Stem:        cfg.Stem,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize catalog: %w", err)
	}

	engine := &Engine{
		cfg:        cfg,
		items:      items,
		lowerNames: lowerNames,
		quality:    scores,
		stats:      stats,
		model:      model,
		vectors:    vectors,
	}
	if cfg.Suggestions > 0 {
		engine.names = newNameIndex(items)
	}
	engine.state = Ready

	slog.Debug("Recommendation engine ready",
		"items", len(items),
		"vocabulary", len(model.Terms),
		"medianVotes", stats.M,
		"meanRating", stats.C,
		"alpha", cfg.Alpha)

	return engine, nil
}

// State reports the engine lifecycle state.
func (e *Engine) State() State {
	if e == nil {
		return Uninitialized
	}
	return e.state
}

// Len returns the number of catalog items.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.items)
}

// Item returns the catalog item at index i.
func (e *Engine) Item(i int) catalog.Item {
	return e.items[i]
}

// Quality returns the quality score of the item at index i.
func (e *Engine) Quality(i int) float64 {
	return e.quality[i]
}

// Stats returns the dataset-level quality constants.
func (e *Engine) Stats() quality.Stats {
	return e.stats
}

// Resolve maps a query to a catalog index. An exact case-insensitive name
// match wins over a substring match; within each tier the first item in
// catalog order is chosen. A blank query matches nothing.
func (e *Engine) Resolve(query string) (int, error) {
	if e.State() != Ready {
		return -1, ErrNotReady
	}

	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized != "" {
		for i, name := range e.lowerNames {
			if name == normalized {
				return i, nil
			}
		}
		for i, name := range e.lowerNames {
			if strings.Contains(name, normalized) {
				return i, nil
			}
		}
	}

	notFound := &NotFoundError{Query: query}
	if e.names != nil && normalized != "" {
		notFound.Suggestions = e.names.suggest(strings.TrimSpace(query), e.cfg.Suggestions)
	}
	return -1, notFound
}

// Recommend returns up to topN items most similar to the item the query
// resolves to, ordered by descending hybrid score. The resolved item itself
// is never included. topN <= 0 uses the configured default.
func (e *Engine) Recommend(query string, topN int) ([]Recommendation, error) {
	_, results, err := e.RecommendMatch(query, topN)
	return results, err
}

// RecommendMatch is Recommend that also returns the item the query resolved
// to, so callers need not resolve it again.
func (e *Engine) RecommendMatch(query string, topN int) (catalog.Item, []Recommendation, error) {
	if e.State() != Ready {
		return catalog.Item{}, nil, ErrNotReady
	}
	if topN <= 0 {
		topN = e.cfg.DefaultTopN
	}

	idx, err := e.Resolve(query)
	if err != nil {
		return catalog.Item{}, nil, err
	}

	hybrid, similarity := e.scoreAgainst(idx)
	order := rank(hybrid)

	results := make([]Recommendation, 0, min(topN, len(order)))
	for _, i := range order {
		if len(results) == topN {
			break
		}
		if i == idx {
			continue
		}
		item := e.items[i]
		results = append(results, Recommendation{
			ID:         item.ID,
			Name:       item.Name,
			Positive:   item.Positive,
			Negative:   item.Negative,
			Price:      item.Price,
			Similarity: similarity[i],
			Quality:    e.quality[i],
			Score:      hybrid[i],
		})
	}

	slog.Debug("Recommendations computed", "query", query, "resolved", e.items[idx].Name, "results", len(results))
	return e.items[idx], results, nil
}

// scoreAgainst computes cosine similarity between item idx and every item,
// and the quality-boosted hybrid score.
func (e *Engine) scoreAgainst(idx int) (hybrid, similarity []float64) {
	queryVec := e.vectors[idx]
	hybrid = make([]float64, len(e.items))
	similarity = make([]float64, len(e.items))
	for i, vec := range e.vectors {
		sim := tfidf.Cosine(queryVec, vec)
		similarity[i] = sim
		hybrid[i] = sim * (1 + e.cfg.Alpha*e.quality[i])
	}
	return hybrid, similarity
}

// rank returns item indices ordered by descending score; equal scores keep
// catalog order.
func rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}
