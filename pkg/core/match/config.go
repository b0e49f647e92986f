// Package match implements the layered term-matching cascade: exact and
// n-gram lookup, acronym resolution, fuzzy string matching, semantic
// embedding similarity, and hierarchical conflict resolution.
package match

import (
	"errors"
	"fmt"
	"io"

	"github.com/hjson/hjson-go/v4"
)

// ErrConfiguration marks an invalid engine configuration. Construction fails
// fast; a misconfigured engine never runs.
var ErrConfiguration = errors.New("match: invalid configuration")

// ErrMatching marks an unexpected failure while matching a line. Document
// matching catches it and records the line unmatched.
var ErrMatching = errors.New("match: matching failed")

// FuzzyTrigger controls when the fuzzy layer runs.
type FuzzyTrigger string

const (
	// FuzzyOnNoMatches runs the fuzzy layer only when the exact layer
	// found nothing.
	FuzzyOnNoMatches FuzzyTrigger = "no_matches"
	// FuzzyAlways runs the fuzzy layer on every line.
	FuzzyAlways FuzzyTrigger = "always"
	// FuzzyOff disables the fuzzy layer.
	FuzzyOff FuzzyTrigger = "off"
)

// SemanticTrigger controls when the semantic layer runs.
type SemanticTrigger string

const (
	// SemanticFewerThan runs the semantic layer when fewer than
	// SemanticMaxExisting matches were found by earlier layers.
	SemanticFewerThan SemanticTrigger = "fewer_than"
	// SemanticOff disables the semantic layer.
	SemanticOff SemanticTrigger = "off"
)

// Config tunes the cascade. The multiplicative bonus constants have no
// derivation beyond observed precision on real filings; treat them as
// tunable, not correct.
type Config struct {
	// Layer A.
	ExactWeight      float64 `json:"exact_weight"`
	NgramLengthBonus float64 `json:"ngram_length_bonus"`
	AcronymWeight    float64 `json:"acronym_weight"`
	MinNgram         int     `json:"min_ngram"`
	MaxNgram         int     `json:"max_ngram"`

	// Layer B.
	FuzzyTrigger         FuzzyTrigger `json:"fuzzy_trigger"`
	FuzzyThreshold       int          `json:"fuzzy_threshold"`
	FuzzyWeight          float64      `json:"fuzzy_weight"`
	PartialThreshold     int          `json:"partial_threshold"`
	MinKeywordLenFuzzy   int          `json:"min_keyword_len_fuzzy"`
	MinKeywordLenPartial int          `json:"min_keyword_len_partial"`

	// Layer C.
	SemanticTrigger     SemanticTrigger `json:"semantic_trigger"`
	SemanticMaxExisting int             `json:"semantic_max_existing"`
	SemanticThreshold   float64         `json:"semantic_threshold"`
	SemanticWeight      float64         `json:"semantic_weight"`

	// Layer D and scoring.
	PreferSpecific   bool    `json:"prefer_specific"`
	SpecificityBonus float64 `json:"specificity_bonus"`

	// Document matching.
	Workers int `json:"workers"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		ExactWeight:      1.0,
		NgramLengthBonus: 0.1,
		AcronymWeight:    0.95,
		MinNgram:         2,
		MaxNgram:         6,

		FuzzyTrigger:         FuzzyOnNoMatches,
		FuzzyThreshold:       85,
		FuzzyWeight:          0.7,
		PartialThreshold:     90,
		MinKeywordLenFuzzy:   4,
		MinKeywordLenPartial: 6,

		SemanticTrigger:     SemanticFewerThan,
		SemanticMaxExisting: 2,
		SemanticThreshold:   0.75,
		SemanticWeight:      0.5,

		PreferSpecific:   true,
		SpecificityBonus: 0.2,

		Workers: 4,
	}
}

// Validate rejects thresholds and weights outside their working ranges.
func (c Config) Validate() error {
	switch c.FuzzyTrigger {
	case FuzzyOnNoMatches, FuzzyAlways, FuzzyOff:
	default:
		return fmt.Errorf("%w: unknown fuzzy trigger %q", ErrConfiguration, c.FuzzyTrigger)
	}
	switch c.SemanticTrigger {
	case SemanticFewerThan, SemanticOff:
	default:
		return fmt.Errorf("%w: unknown semantic trigger %q", ErrConfiguration, c.SemanticTrigger)
	}

	if c.ExactWeight <= 0 {
		return fmt.Errorf("%w: exact weight %v must be positive", ErrConfiguration, c.ExactWeight)
	}
	if c.AcronymWeight <= 0 || c.AcronymWeight > c.ExactWeight {
		return fmt.Errorf("%w: acronym weight %v must be in (0, %v]", ErrConfiguration, c.AcronymWeight, c.ExactWeight)
	}
	if c.NgramLengthBonus < 0 || c.SpecificityBonus < 0 {
		return fmt.Errorf("%w: bonus factors must be non-negative", ErrConfiguration)
	}
	if c.MinNgram < 1 || c.MaxNgram < c.MinNgram || c.MaxNgram > 8 {
		return fmt.Errorf("%w: ngram range [%d, %d] must satisfy 1 <= min <= max <= 8",
			ErrConfiguration, c.MinNgram, c.MaxNgram)
	}
	if c.FuzzyTrigger != FuzzyOff {
		if c.FuzzyThreshold < 1 || c.FuzzyThreshold > 100 {
			return fmt.Errorf("%w: fuzzy threshold %d outside [1, 100]", ErrConfiguration, c.FuzzyThreshold)
		}
		if c.PartialThreshold < c.FuzzyThreshold || c.PartialThreshold > 100 {
			return fmt.Errorf("%w: partial threshold %d outside [%d, 100]",
				ErrConfiguration, c.PartialThreshold, c.FuzzyThreshold)
		}
		if c.FuzzyWeight <= 0 || c.FuzzyWeight > 1 {
			return fmt.Errorf("%w: fuzzy weight %v outside (0, 1]", ErrConfiguration, c.FuzzyWeight)
		}
	}
	if c.SemanticTrigger != SemanticOff {
		if c.SemanticThreshold <= 0 || c.SemanticThreshold >= 1 {
			return fmt.Errorf("%w: semantic threshold %v outside (0, 1)", ErrConfiguration, c.SemanticThreshold)
		}
		if c.SemanticWeight <= 0 || c.SemanticWeight > 1 {
			return fmt.Errorf("%w: semantic weight %v outside (0, 1]", ErrConfiguration, c.SemanticWeight)
		}
		if c.SemanticMaxExisting < 1 {
			return fmt.Errorf("%w: semantic max existing %d must be >= 1", ErrConfiguration, c.SemanticMaxExisting)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be >= 1", ErrConfiguration, c.Workers)
	}
	return nil
}

// LoadConfig reads HJSON overrides on top of the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := hjson.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
