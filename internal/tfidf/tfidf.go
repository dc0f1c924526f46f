// Package tfidf provides TF-IDF (Term Frequency-Inverse Document Frequency) vectorization.
//
// This package fits a vocabulary and inverse document frequencies over a corpus
// of documents once, and produces one sparse, L2-normalized vector per document.
// The fitted Model is then reused to vectorize new text without refitting.
//
// The TF-IDF weighting combines:
//   - Term Frequency (TF): raw count of a term in a document
//   - Inverse Document Frequency (IDF): smoothed rarity of a term across the corpus,
//     ln((1+N)/(1+df)) + 1
//
// Usage Example:
//
//	model, vectors, err := tfidf.Fit(documents, tfidf.Options{})
//	sim := tfidf.Cosine(vectors[0], vectors[1])
//
// Tokenization keeps runs of letters, digits and underscores of at least two
// characters, lowercases them and removes English stop words.
package tfidf

import (
	"errors"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kljensen/snowball"
	"github.com/kljensen/snowball/english"
	"gonum.org/v1/gonum/floats"
)

// DefaultMaxFeatures caps the vocabulary when Options.MaxFeatures is unset.
const DefaultMaxFeatures = 10000

// ErrEmptyCorpus is returned when no document contains a usable term.
var ErrEmptyCorpus = errors.New("empty corpus: no usable terms after stop-word removal")

// tokenRegex is compiled once at package initialization for efficient tokenization
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Options controls vocabulary construction.
type Options struct {
	MaxFeatures int  // vocabulary cap; <= 0 uses DefaultMaxFeatures
	Stem        bool // apply the snowball English stemmer to tokens
}

// Vector is a sparse weighted-term vector with indices in ascending order.
type Vector struct {
	Indices []int
	Values  []float64
}

// Len returns the number of non-zero terms.
func (v Vector) Len() int {
	return len(v.Indices)
}

// Model is a fitted vocabulary with its IDF weights. It is read-only after
// Fit returns and safe for concurrent use.
type Model struct {
	Terms          []string       // vocabulary, ordered by index
	Vocabulary     map[string]int // term -> index
	IDF            []float64      // IDF per term index
	TotalDocuments int
	stem           bool
}

// Fit builds a TF-IDF model over documents and vectorizes each of them.
//
// Parameters:
//   - documents: slice of text documents to analyze
//   - opts: vocabulary cap and stemming
//
// Returns:
//   - *Model: fitted vocabulary and IDF weights, reusable for queries
//   - []Vector: one normalized vector per document, in input order
//   - error: ErrEmptyCorpus when no document yields a vocabulary term
//
// When the corpus has more distinct terms than the cap, terms with the
// highest document frequency are kept (ties broken alphabetically).
func Fit(documents []string, opts Options) (*Model, []Vector, error) {
	maxFeatures := opts.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}

	// count terms per document and track document frequency for each term
	termCounts := make([]map[string]int, len(documents))
	docFreqs := make(map[string]int)
	for docIdx, doc := range documents {
		counts := countTerms(tokenize(doc, opts.Stem))
		termCounts[docIdx] = counts
		for term := range counts {
			docFreqs[term]++
		}
	}

	if len(docFreqs) == 0 {
		slog.Debug("No usable terms in corpus", "documentCount", len(documents))
		return nil, nil, ErrEmptyCorpus
	}

	terms := selectVocabulary(docFreqs, maxFeatures)

	model := &Model{
		Terms:          terms,
		Vocabulary:     make(map[string]int, len(terms)),
		IDF:            make([]float64, len(terms)),
		TotalDocuments: len(documents),
		stem:           opts.Stem,
	}

	n := float64(len(documents))
	for idx, term := range terms {
		model.Vocabulary[term] = idx
		model.IDF[idx] = math.Log((1+n)/(1+float64(docFreqs[term]))) + 1
	}

	vectors := make([]Vector, len(documents))
	for docIdx, counts := range termCounts {
		vectors[docIdx] = model.weigh(counts)
	}

	slog.Debug("TF-IDF model fitted",
		"documents", len(documents),
		"distinctTerms", len(docFreqs),
		"vocabulary", len(terms))

	return model, vectors, nil
}

// Transform vectorizes text with the fitted vocabulary. Terms outside the
// vocabulary are ignored, so the result may be empty.
func (m *Model) Transform(text string) Vector {
	return m.weigh(countTerms(tokenize(text, m.stem)))
}

// weigh turns raw term counts into a normalized sparse vector.
func (m *Model) weigh(counts map[string]int) Vector {
	vec := Vector{}
	for term, count := range counts {
		idx, ok := m.Vocabulary[term]
		if !ok {
			continue
		}
		vec.Indices = append(vec.Indices, idx)
		vec.Values = append(vec.Values, float64(count)*m.IDF[idx])
	}

	sort.Sort(byIndex(vec))

	if norm := floats.Norm(vec.Values, 2); norm > 0 {
		floats.Scale(1/norm, vec.Values)
	}
	return vec
}

// Cosine returns the cosine similarity of two sparse vectors, clamped to
// [0, 1]. Empty vectors have similarity 0 with everything.
func Cosine(a, b Vector) float64 {
	if a.Len() == 0 || b.Len() == 0 {
		return 0
	}

	var dot float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			dot += a.Values[i] * b.Values[j]
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}

	normA := floats.Norm(a.Values, 2)
	normB := floats.Norm(b.Values, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (normA * normB)
	switch {
	case sim > 1:
		return 1
	case sim < 0:
		return 0
	}
	return sim
}

// selectVocabulary ranks terms by document frequency (descending, ties by
// term), keeps at most limit of them, and returns them sorted alphabetically
// so term indices are stable across runs.
func selectVocabulary(docFreqs map[string]int, limit int) []string {
	terms := make([]string, 0, len(docFreqs))
	for term := range docFreqs {
		terms = append(terms, term)
	}

	if len(terms) > limit {
		sort.Slice(terms, func(i, j int) bool {
			di, dj := docFreqs[terms[i]], docFreqs[terms[j]]
			if di != dj {
				return di > dj
			}
			return terms[i] < terms[j]
		})
		terms = terms[:limit]
	}

	sort.Strings(terms)
	return terms
}

// tokenize breaks text into normalized tokens suitable for TF-IDF analysis.
// It lowercases, extracts word runs, drops single-character tokens and English
// stop words, and optionally stems what remains.
//
// Parameters:
//   - text: input text to tokenize
//   - stem: whether to apply the English snowball stemmer
//
// Returns:
//   - []string: slice of normalized tokens
func tokenize(text string, stem bool) []string {
	if text == "" {
		return []string{}
	}

	raw := tokenRegex.FindAllString(strings.ToLower(text), -1)

	filtered := make([]string, 0, len(raw))
	for _, token := range raw {
		if utf8.RuneCountInString(token) < 2 || english.IsStopWord(token) {
			continue
		}

		if stem {
			stemmed, err := snowball.Stem(token, "english", true)
			if err == nil && stemmed != "" {
				token = stemmed
			}
		}
		filtered = append(filtered, token)
	}

	return filtered
}

// countTerms returns the raw count of each token.
func countTerms(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	return counts
}

// byIndex sorts a Vector's parallel slices by term index.
type byIndex Vector

func (v byIndex) Len() int           { return len(v.Indices) }
func (v byIndex) Less(i, j int) bool { return v.Indices[i] < v.Indices[j] }
func (v byIndex) Swap(i, j int) {
	v.Indices[i], v.Indices[j] = v.Indices[j], v.Indices[i]
	v.Values[i], v.Values[j] = v.Values[j], v.Values[i]
}
