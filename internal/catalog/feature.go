package catalog

import (
	"sort"
	"strings"
)

// FieldKind identifies which variant a FeatureField holds.
type FieldKind int

const (
	// Missing contributes an empty segment
	Missing FieldKind = iota
	// List is an ordered sequence of strings (genres, categories)
	List
	// Weights maps tag names to numeric weights; only names are composed
	Weights
	// Text is pre-joined scalar text
	Text
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case List:
		return "list"
	case Weights:
		return "weights"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// FeatureField is a raw per-item feature value. The zero value is Missing.
type FeatureField struct {
	Kind    FieldKind
	List    []string
	Weights map[string]float64
	Text    string
}

// ListField builds a List variant.
func ListField(values ...string) FeatureField {
	return FeatureField{Kind: List, List: values}
}

// WeightsField builds a Weights variant.
func WeightsField(weights map[string]float64) FeatureField {
	return FeatureField{Kind: Weights, Weights: weights}
}

// TextField builds a Text variant.
func TextField(text string) FeatureField {
	return FeatureField{Kind: Text, Text: text}
}

// Segment renders the field as space-joined text, before lowercasing.
func (f FeatureField) Segment() string {
	switch f.Kind {
	case List:
		return strings.Join(f.List, " ")
	case Weights:
		return strings.Join(tagNames(f.Weights), " ")
	case Text:
		return f.Text
	default:
		return ""
	}
}

// tagNames orders tag names by descending weight, then by name.
// Source tag maps are usually ranked by vote count, and this keeps the
// composed text deterministic.
func tagNames(weights map[string]float64) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		wi, wj := weights[names[i]], weights[names[j]]
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	return names
}

// Compose merges genres, tags and categories into one lowercase string:
// the three segments joined by single spaces. Missing fields contribute an
// empty segment and repeated tokens are kept.
func Compose(genres, tags, categories FeatureField) string {
	joined := genres.Segment() + " " + tags.Segment() + " " + categories.Segment()
	return strings.ToLower(joined)
}
