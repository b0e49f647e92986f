package terminology

import (
	"sort"

	"finmatch/pkg/core/normalize"
)

// Descriptor is the per-keyword view of a term stored in the index. The
// matching engine copies these fields straight into match results.
type Descriptor struct {
	TermKey        string
	Label          string
	Category       string
	Boost          float64
	FormulaInputs  []string
	SignConvention string
	Keyword        string // the keyword (or acronym source) that owns this entry
}

// Index maps canonicalized keywords and generated acronyms to term
// descriptors. Built once, read-only afterwards; lookups are map access.
type Index struct {
	keywords map[string][]Descriptor
	acronyms map[string][]Descriptor
	sorted   []string // all keyword forms, sorted for deterministic iteration
}

// NewIndex builds the keyword and acronym indexes from a catalog. Keywords
// are stored in canonical form so they compare equal to preprocessed text.
func NewIndex(cat *Catalog, n *normalize.Normalizer) *Index {
	if n == nil {
		n = normalize.NewNormalizer(nil)
	}

	idx := &Index{
		keywords: make(map[string][]Descriptor),
		acronyms: make(map[string][]Descriptor),
	}

	for _, t := range cat.Terms() {
		base := Descriptor{
			TermKey:        t.Key,
			Label:          t.Label,
			Category:       t.Category,
			Boost:          t.Boost,
			FormulaInputs:  t.FormulaInputs,
			SignConvention: t.SignConvention,
		}

		for _, kw := range t.Keywords {
			canonical := n.Canonicalize(kw)
			if canonical == "" {
				continue
			}
			d := base
			d.Keyword = canonical
			idx.keywords[canonical] = append(idx.keywords[canonical], d)
		}

		// Acronyms come from the label and every keyword, including the
		// and-stripped variants ("Property, Plant and Equipment" -> ppe).
		sources := append([]string{t.Label}, t.Keywords...)
		for _, src := range sources {
			for _, acr := range normalize.GenerateAcronyms(src) {
				if containsTerm(idx.acronyms[acr], t.Key) {
					continue
				}
				d := base
				d.Keyword = acr
				idx.acronyms[acr] = append(idx.acronyms[acr], d)
			}
		}
	}

	idx.sorted = make([]string, 0, len(idx.keywords))
	for kw := range idx.keywords {
		idx.sorted = append(idx.sorted, kw)
	}
	sort.Strings(idx.sorted)

	return idx
}

func containsTerm(ds []Descriptor, key string) bool {
	for _, d := range ds {
		if d.TermKey == key {
			return true
		}
	}
	return false
}

// Lookup returns the descriptors for an exact canonical keyword.
func (i *Index) Lookup(keyword string) []Descriptor {
	return i.keywords[keyword]
}

// LookupAcronym returns the descriptors registered under an acronym.
func (i *Index) LookupAcronym(word string) []Descriptor {
	return i.acronyms[word]
}

// Keywords returns every indexed keyword in sorted order.
func (i *Index) Keywords() []string {
	return i.sorted
}

// Size returns the number of distinct indexed keywords.
func (i *Index) Size() int {
	return len(i.keywords)
}
