// Package terminology holds the canonical term catalog and the immutable
// keyword/acronym indexes the matching engine looks terms up in.
package terminology

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrData marks a malformed catalog or relationship entry. Load fails fast;
// a bad catalog is never partially used.
var ErrData = errors.New("terminology: invalid data")

// Sign conventions a term can declare for its reported values.
const (
	SignPositive = "positive"
	SignNegative = "negative"
)

// Term is one canonical financial concept. Immutable after load.
type Term struct {
	Key            string              `yaml:"key" json:"key"`
	Label          string              `yaml:"label" json:"label"`
	Category       string              `yaml:"category" json:"category"`
	Boost          float64             `yaml:"boost" json:"boost"`
	Keywords       []string            `yaml:"keywords" json:"keywords"`
	SignConvention string              `yaml:"sign_convention" json:"sign_convention,omitempty"`
	FormulaInputs  []string            `yaml:"formula_inputs" json:"formula_inputs,omitempty"`
	Standards      map[string][]string `yaml:"standards" json:"standards,omitempty"`
}

// Catalog is the loaded, validated term set.
type Catalog struct {
	terms []Term
	byKey map[string]*Term
}

type catalogFile struct {
	Terms []Term `yaml:"terms"`
}

//go:embed terms.yaml
var defaultCatalogYAML []byte

// DefaultCatalog loads the embedded term catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(strings.NewReader(string(defaultCatalogYAML)))
}

// LoadCatalog parses and validates a YAML term catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing catalog: %v", ErrData, err)
	}
	return NewCatalog(file.Terms)
}

// NewCatalog validates terms and builds the lookup map. Defaults are filled
// in here: boost 1.0, sign convention positive.
func NewCatalog(terms []Term) (*Catalog, error) {
	byKey := make(map[string]*Term, len(terms))
	out := make([]Term, len(terms))
	copy(out, terms)

	for i := range out {
		t := &out[i]
		if t.Key == "" {
			return nil, fmt.Errorf("%w: term %d has no key", ErrData, i)
		}
		if t.Label == "" {
			return nil, fmt.Errorf("%w: term %q has no label", ErrData, t.Key)
		}
		if len(t.Keywords) == 0 {
			return nil, fmt.Errorf("%w: term %q has no keywords", ErrData, t.Key)
		}
		if _, dup := byKey[t.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate term key %q", ErrData, t.Key)
		}
		if t.Boost == 0 {
			t.Boost = 1.0
		}
		if t.Boost < 0 {
			return nil, fmt.Errorf("%w: term %q has negative boost", ErrData, t.Key)
		}
		if t.SignConvention == "" {
			t.SignConvention = SignPositive
		}
		if t.SignConvention != SignPositive && t.SignConvention != SignNegative {
			return nil, fmt.Errorf("%w: term %q has unknown sign convention %q", ErrData, t.Key, t.SignConvention)
		}
		byKey[t.Key] = t
	}

	return &Catalog{terms: out, byKey: byKey}, nil
}

// Term returns the term for a key, or nil.
func (c *Catalog) Term(key string) *Term {
	return c.byKey[key]
}

// Terms returns all terms in catalog order.
func (c *Catalog) Terms() []Term {
	return c.terms
}

// Has reports whether a term key exists.
func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// Len returns the number of terms.
func (c *Catalog) Len() int {
	return len(c.terms)
}
