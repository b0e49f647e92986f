package match

import fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

// StringSimilarity scores two strings 0-100. It backs the fuzzy layer and is
// injected at construction; absence degrades the layer to a no-op.
type StringSimilarity interface {
	// TokenSetRatio compares token sets, tolerant of word order and
	// repetition.
	TokenSetRatio(a, b string) int
	// PartialRatio scores the best matching substring alignment.
	PartialRatio(a, b string) int
}

// FuzzWuzzy is the production StringSimilarity backend.
type FuzzWuzzy struct{}

func (FuzzWuzzy) TokenSetRatio(a, b string) int { return fuzzy.TokenSetRatio(a, b) }
func (FuzzWuzzy) PartialRatio(a, b string) int  { return fuzzy.PartialRatio(a, b) }

// NoSimilarity is the null backend: the fuzzy layer never fires.
type NoSimilarity struct{}

func (NoSimilarity) TokenSetRatio(a, b string) int { return 0 }
func (NoSimilarity) PartialRatio(a, b string) int  { return 0 }
