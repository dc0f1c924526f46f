package recommend

import (
	"sort"
	"sync"

	"github.com/chriscorrea/bm25md"

	"github.com/chriscorrea/playnext/internal/catalog"
)

// nameIndex ranks catalog names against an unresolved query with BM25 so a
// miss can offer "did you mean" candidates.
type nameIndex struct {
	corpus nameScorer
	names  []string
	mu     sync.Mutex // serializes corpus scoring
}

// nameScorer is the subset of the BM25 corpus used for suggestions.
type nameScorer interface {
	Score(query string, docIndex int) float64
}

func newNameIndex(items []catalog.Item) *nameIndex {
	corpus := bm25md.NewCorpus()
	parser := bm25md.NewMarkdownFieldParser()

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
		corpus.AddDocument(bm25md.Document{
			ID:       i,
			Fields:   parser.ParseDocument(item.Name),
			Original: item.Name,
		})
	}

	return &nameIndex{corpus: corpus, names: names}
}

// suggest returns up to limit names with a positive BM25 score, best first;
// ties keep catalog order.
func (n *nameIndex) suggest(query string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	type candidate struct {
		index int
		score float64
	}

	n.mu.Lock()
	var candidates []candidate
	for i := range n.names {
		if score := n.corpus.Score(query, i); score > 0 {
			candidates = append(candidates, candidate{index: i, score: score})
		}
	}
	n.mu.Unlock()

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	suggestions := make([]string, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if len(suggestions) == limit {
			break
		}
		suggestions = append(suggestions, n.names[c.index])
	}
	return suggestions
}
