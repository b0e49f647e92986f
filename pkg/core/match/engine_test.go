// Package match - Test Suite for the matching cascade
package match

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"finmatch/pkg/core/hierarchy"
	"finmatch/pkg/core/terminology"
)

// =============================================================================
// TEST BACKENDS
// =============================================================================

// stubSim returns canned scores per keyword and 0 otherwise.
type stubSim struct {
	tokenSet map[string]int
	partial  map[string]int
}

func (s stubSim) TokenSetRatio(a, b string) int { return s.tokenSet[b] }
func (s stubSim) PartialRatio(a, b string) int  { return s.partial[b] }

// countingSim records how many times each ratio is computed.
type countingSim struct {
	mu       sync.Mutex
	tokenSet int
	partial  int
}

func (s *countingSim) TokenSetRatio(a, b string) int {
	s.mu.Lock()
	s.tokenSet++
	s.mu.Unlock()
	return 0
}

func (s *countingSim) PartialRatio(a, b string) int {
	s.mu.Lock()
	s.partial++
	s.mu.Unlock()
	return 0
}

// stubEmbedder returns canned vectors per text, with a far-away default.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, cfg Config, sim StringSimilarity, emb TextEmbedder) *Engine {
	t.Helper()
	cat, err := terminology.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error: %v", err)
	}
	rel, err := hierarchy.DefaultMapper()
	if err != nil {
		t.Fatalf("DefaultMapper() error: %v", err)
	}
	e, err := NewEngine(context.Background(), cat, rel, cfg, sim, emb)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return e
}

func findTerm(results []MatchResult, key string) *MatchResult {
	for i := range results {
		if results[i].TermKey == key {
			return &results[i]
		}
	}
	return nil
}

// =============================================================================
// CASCADE SCENARIOS
// =============================================================================

func TestMatchTextExact(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	results := e.MatchText(context.Background(), "Property, Plant and Equipment", 1)
	m := findTerm(results, "property_plant_equipment")
	if m == nil {
		t.Fatalf("no property_plant_equipment in %+v", results)
	}
	if m.MatchType != TypeExact {
		t.Errorf("match type = %q, want %q", m.MatchType, TypeExact)
	}
	if m.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", m.Confidence)
	}
}

func TestMatchTextAcronym(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	results := e.MatchText(context.Background(), "PPE", 1)
	m := findTerm(results, "property_plant_equipment")
	if m == nil {
		t.Fatalf("no property_plant_equipment in %+v", results)
	}
	if m.MatchType != TypeAcronym {
		t.Errorf("match type = %q, want %q", m.MatchType, TypeAcronym)
	}
}

func TestMatchTextNoteReference(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	results := e.MatchText(context.Background(), "Trade Receivables (Note 12)", 5)
	m := findTerm(results, "trade_receivables")
	if m == nil {
		t.Fatalf("no trade_receivables in %+v", results)
	}
	if m.CanonicalText != "trade receivables" {
		t.Errorf("canonical = %q, want %q", m.CanonicalText, "trade receivables")
	}
	if m.LineNumber != 5 {
		t.Errorf("line = %d, want 5", m.LineNumber)
	}
}

func TestMatchTextParentheticalValue(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	pre := e.Normalizer().Preprocess("Loss (1,234)", 1)
	if !strings.Contains(pre.Canonical, "-1234") {
		t.Errorf("canonical %q does not contain -1234", pre.Canonical)
	}
}

func TestMatchTextFuzzy(t *testing.T) {
	sim := stubSim{
		tokenSet: map[string]int{"trade receivables": 95},
		partial:  map[string]int{},
	}
	e := newTestEngine(t, DefaultConfig(), sim, NoEmbedder{})

	results := e.MatchText(context.Background(), "Trade Recievables", 1)
	m := findTerm(results, "trade_receivables")
	if m == nil {
		t.Fatalf("no trade_receivables in %+v", results)
	}
	if m.MatchType != TypeFuzzy {
		t.Errorf("match type = %q, want %q", m.MatchType, TypeFuzzy)
	}
	if m.FuzzyScore != 95 {
		t.Errorf("fuzzy score = %d, want 95", m.FuzzyScore)
	}

	// boost 2.2, score 0.95, weight 0.7, then two-word specificity 1.2.
	want := 0.95 * 0.7 * 2.2 * 1.2
	if diff := m.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", m.Confidence, want)
	}
}

func TestFuzzySkippedAfterExact(t *testing.T) {
	sim := stubSim{
		tokenSet: map[string]int{"trade receivables": 100},
	}
	e := newTestEngine(t, DefaultConfig(), sim, NoEmbedder{})

	// The exact layer resolves this line, so the trigger must keep the
	// fuzzy layer out.
	results := e.MatchText(context.Background(), "Trade Receivables", 1)
	for _, r := range results {
		if r.MatchType == TypeFuzzy || r.MatchType == TypeFuzzyPartial {
			t.Errorf("fuzzy result %+v produced despite exact matches", r)
		}
	}
}

func TestFuzzyAlwaysTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FuzzyTrigger = FuzzyAlways
	sim := stubSim{
		tokenSet: map[string]int{"sundry debtors": 90},
	}
	e := newTestEngine(t, cfg, sim, NoEmbedder{})

	// Exact layer matches trade_receivables via "trade receivables"; the
	// forced fuzzy pass must still be able to add nothing new for the same
	// term but run without harm.
	results := e.MatchText(context.Background(), "Trade Receivables", 1)
	m := findTerm(results, "trade_receivables")
	if m == nil {
		t.Fatal("trade_receivables missing")
	}
	if m.MatchType != TypeExact {
		t.Errorf("kept match type = %q, want exact to win dedupe", m.MatchType)
	}
}

func TestFuzzyScoresMemoized(t *testing.T) {
	sim := &countingSim{}
	e := newTestEngine(t, DefaultConfig(), sim, NoEmbedder{})

	// A line no exact keyword covers, so both fuzzy passes sweep the index.
	line := "miscellaneous sundry adjustments"
	e.MatchText(context.Background(), line, 1)

	sim.mu.Lock()
	tokenSet, partial := sim.tokenSet, sim.partial
	sim.mu.Unlock()
	if tokenSet == 0 || partial == 0 {
		t.Fatalf("fuzzy layer never ran: tokenSet=%d partial=%d", tokenSet, partial)
	}

	// Same line again: every score must come from the cache.
	e.MatchText(context.Background(), line, 2)

	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.tokenSet != tokenSet {
		t.Errorf("token set ratio recomputed: %d calls, want %d", sim.tokenSet, tokenSet)
	}
	if sim.partial != partial {
		t.Errorf("partial ratio recomputed: %d calls, want %d", sim.partial, partial)
	}
}

func TestMatchTextSemantic(t *testing.T) {
	emb := stubEmbedder{vectors: map[string][]float32{
		"Trade Receivables":            {1, 0},
		"customer collections pending": {1, 0},
	}}
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, emb)

	results := e.MatchText(context.Background(), "customer collections pending", 1)
	m := findTerm(results, "trade_receivables")
	if m == nil {
		t.Fatalf("no semantic trade_receivables in %+v", results)
	}
	if m.MatchType != TypeSemantic {
		t.Errorf("match type = %q, want %q", m.MatchType, TypeSemantic)
	}
	if m.SemanticScore < 0.99 {
		t.Errorf("semantic score = %v, want ~1.0", m.SemanticScore)
	}
}

func TestSemanticSkippedWhenEnoughMatches(t *testing.T) {
	emb := stubEmbedder{vectors: map[string][]float32{
		"Goodwill":                       {1, 0},
		"goodwill and intangible assets": {1, 0},
	}}
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, emb)

	// Two exact matches already exist, so the semantic layer must not run.
	results := e.MatchText(context.Background(), "goodwill and intangible assets", 1)
	for _, r := range results {
		if r.MatchType == TypeSemantic {
			t.Errorf("semantic result %+v despite %d prior matches", r, len(results))
		}
	}
}

func TestEmbedderFailureDisablesLayer(t *testing.T) {
	emb := stubEmbedder{err: errors.New("backend down")}
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, emb)

	// Construction survived; matching still works without semantics.
	results := e.MatchText(context.Background(), "Trade Receivables", 1)
	if findTerm(results, "trade_receivables") == nil {
		t.Error("exact matching broken after semantic degradation")
	}
}

// =============================================================================
// HIERARCHY AND SCORING
// =============================================================================

func TestHierarchicalSuppression(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	results := e.MatchText(context.Background(), "Goodwill 10,000", 1)
	if findTerm(results, "goodwill") == nil {
		t.Fatalf("no goodwill in %+v", results)
	}
	if findTerm(results, "intangible_assets") != nil {
		t.Errorf("parent intangible_assets kept alongside child goodwill: %+v", results)
	}
}

func TestHierarchicalSuppressionTotalOverride(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	results := e.MatchText(context.Background(), "Total goodwill and intangible assets", 1)
	if findTerm(results, "goodwill") == nil {
		t.Fatalf("no goodwill in %+v", results)
	}
	if findTerm(results, "intangible_assets") == nil {
		t.Errorf("total line should retain the parent term: %+v", results)
	}
}

func TestUniqueTermKeys(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	lines := []string{
		"Cash and cash equivalents and cash on hand",
		"Total revenue and revenue from operations and turnover",
		"Goodwill and goodwill on consolidation",
	}
	for _, line := range lines {
		results := e.MatchText(context.Background(), line, 1)
		seen := map[string]bool{}
		for _, r := range results {
			if seen[r.TermKey] {
				t.Errorf("line %q: duplicate term key %q", line, r.TermKey)
			}
			seen[r.TermKey] = true
		}
	}
}

func TestSpecificityMonotonic(t *testing.T) {
	cat, err := terminology.NewCatalog([]terminology.Term{
		{Key: "t", Label: "T", Keywords: []string{"alpha", "alpha beta gamma"}},
	})
	if err != nil {
		t.Fatalf("NewCatalog error: %v", err)
	}
	rel, err := hierarchy.NewMapper(hierarchy.Relationships{})
	if err != nil {
		t.Fatalf("NewMapper error: %v", err)
	}
	e, err := NewEngine(context.Background(), cat, rel, DefaultConfig(), NoSimilarity{}, NoEmbedder{})
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	short := e.MatchText(context.Background(), "alpha", 1)
	long := e.MatchText(context.Background(), "alpha beta gamma", 1)
	if len(short) != 1 || len(long) != 1 {
		t.Fatalf("expected single matches, got %d and %d", len(short), len(long))
	}
	if long[0].Confidence < short[0].Confidence {
		t.Errorf("longer keyword confidence %v < shorter %v",
			long[0].Confidence, short[0].Confidence)
	}
	if long[0].MatchedKeyword != "alpha beta gamma" {
		t.Errorf("kept keyword = %q, want the longer one", long[0].MatchedKeyword)
	}
}

func TestMatchTextDeterministic(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})
	line := "Total goodwill, intangible assets and trade receivables (Note 3)"

	first := e.MatchText(context.Background(), line, 9)
	for run := 0; run < 20; run++ {
		again := e.MatchText(context.Background(), line, 9)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d results vs %d", run, len(again), len(first))
		}
		for i := range first {
			if again[i].TermKey != first[i].TermKey || again[i].Confidence != first[i].Confidence {
				t.Fatalf("run %d diverged at %d: %+v vs %+v", run, i, again[i], first[i])
			}
		}
	}
}

// =============================================================================
// DOCUMENT MATCHING
// =============================================================================

func TestMatchDocument(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	lines := []string{
		"Property, Plant and Equipment 1,200",
		"",
		"xyz123 qqq",
		"Trade Receivables 200",
	}
	session, err := e.MatchDocument(context.Background(), lines, "balance_sheet_assets")
	if err != nil {
		t.Fatalf("MatchDocument error: %v", err)
	}

	if session.ID == "" {
		t.Error("session has no id")
	}
	if session.SectionType != "balance_sheet_assets" {
		t.Errorf("section type = %q", session.SectionType)
	}
	if session.Stats.TotalLines != 4 {
		t.Errorf("total lines = %d, want 4", session.Stats.TotalLines)
	}
	if session.Stats.MatchedLines != 2 {
		t.Errorf("matched lines = %d, want 2", session.Stats.MatchedLines)
	}
	if len(session.Unmatched) != 1 || session.Unmatched[0].LineNumber != 3 {
		t.Errorf("unmatched = %+v, want line 3 only", session.Unmatched)
	}

	// Results come back in line order.
	for i := 1; i < len(session.Results); i++ {
		if session.Results[i].LineNumber < session.Results[i-1].LineNumber {
			t.Errorf("results out of line order: %+v", session.Results)
		}
	}

	if findTerm(session.Results, "property_plant_equipment") == nil {
		t.Error("document results missing property_plant_equipment")
	}
	if findTerm(session.Results, "trade_receivables") == nil {
		t.Error("document results missing trade_receivables")
	}
}

func TestSessionSummary(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), NoSimilarity{}, NoEmbedder{})

	session, err := e.MatchDocument(context.Background(), []string{
		"Goodwill 10,000",
		"Revenue from operations 5,000",
	}, "")
	if err != nil {
		t.Fatalf("MatchDocument error: %v", err)
	}

	sum := session.Summary()
	if sum.SessionID != session.ID {
		t.Errorf("summary id = %q, want %q", sum.SessionID, session.ID)
	}
	if sum.TotalMatches != len(session.Results) {
		t.Errorf("total matches = %d, want %d", sum.TotalMatches, len(session.Results))
	}
	if sum.UniqueTerms == 0 {
		t.Error("no unique terms counted")
	}
	total := sum.ConfidenceHigh + sum.ConfidenceMedium + sum.ConfidenceLow
	if total != sum.TotalMatches {
		t.Errorf("confidence buckets sum %d != total %d", total, sum.TotalMatches)
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestConfigValidate(t *testing.T) {
	mutate := func(f func(*Config)) Config {
		c := DefaultConfig()
		f(&c)
		return c
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"Bad fuzzy trigger", mutate(func(c *Config) { c.FuzzyTrigger = "sometimes" })},
		{"Bad semantic trigger", mutate(func(c *Config) { c.SemanticTrigger = "maybe" })},
		{"Zero exact weight", mutate(func(c *Config) { c.ExactWeight = 0 })},
		{"Acronym above exact", mutate(func(c *Config) { c.AcronymWeight = 2 })},
		{"Ngram max too high", mutate(func(c *Config) { c.MaxNgram = 9 })},
		{"Ngram min above max", mutate(func(c *Config) { c.MinNgram = 7 })},
		{"Fuzzy threshold range", mutate(func(c *Config) { c.FuzzyThreshold = 150 })},
		{"Partial below fuzzy", mutate(func(c *Config) { c.PartialThreshold = 50 })},
		{"Semantic threshold range", mutate(func(c *Config) { c.SemanticThreshold = 1.5 })},
		{"Zero workers", mutate(func(c *Config) { c.Workers = 0 })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v is not ErrConfiguration", err)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	src := `{
	  // tuned for noisy OCR input
	  fuzzy_threshold: 80
	  fuzzy_trigger: always
	  workers: 8
	}`

	cfg, err := LoadConfig(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.FuzzyThreshold != 80 {
		t.Errorf("fuzzy threshold = %d, want 80", cfg.FuzzyThreshold)
	}
	if cfg.FuzzyTrigger != FuzzyAlways {
		t.Errorf("fuzzy trigger = %q, want always", cfg.FuzzyTrigger)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Workers)
	}
	// Untouched fields keep their defaults.
	if cfg.SemanticThreshold != DefaultConfig().SemanticThreshold {
		t.Errorf("semantic threshold = %v, want default", cfg.SemanticThreshold)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(strings.NewReader(`{ workers: 0 }`))
	if err == nil {
		t.Fatal("expected error for invalid override")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error %v is not ErrConfiguration", err)
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cat, _ := terminology.DefaultCatalog()
	rel, _ := hierarchy.DefaultMapper()

	cfg := DefaultConfig()
	cfg.Workers = 0
	if _, err := NewEngine(context.Background(), cat, rel, cfg, NoSimilarity{}, NoEmbedder{}); err == nil {
		t.Error("expected configuration error")
	}

	if _, err := NewEngine(context.Background(), nil, rel, DefaultConfig(), NoSimilarity{}, NoEmbedder{}); err == nil {
		t.Error("expected error for nil catalog")
	}
}
