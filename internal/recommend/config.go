package recommend

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/chriscorrea/playnext/internal/quality"
	"github.com/chriscorrea/playnext/internal/tfidf"
)

// Config contains the tunable parameters of the engine.
type Config struct {
	// Alpha controls how strongly quality boosts content-similar items:
	// hybrid = similarity * (1 + Alpha*quality).
	Alpha float64 `koanf:"alpha" json:"alpha" validate:"gte=0"`

	// Epsilon smooths the approval ratio of zero-vote items.
	Epsilon float64 `koanf:"epsilon" json:"epsilon" validate:"gt=0"`

	// MaxFeatures caps the TF-IDF vocabulary.
	MaxFeatures int `koanf:"max_features" json:"max_features" validate:"gt=0"`

	// DefaultTopN is used when Recommend is called with topN <= 0.
	DefaultTopN int `koanf:"default_top_n" json:"default_top_n" validate:"gt=0"`

	// Stem applies English stemming during vectorization.
	Stem bool `koanf:"stem" json:"stem"`

	// Suggestions is the number of candidate names attached to a
	// NotFoundError. Zero disables suggestions.
	Suggestions int `koanf:"suggestions" json:"suggestions" validate:"gte=0"`
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() Config {
	return Config{
		Alpha:       0.5,
		Epsilon:     quality.DefaultEpsilon,
		MaxFeatures: tfidf.DefaultMaxFeatures,
		DefaultTopN: 10,
		Stem:        false,
		Suggestions: 3,
	}
}

var configValidator = validator.New()

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	return nil
}
