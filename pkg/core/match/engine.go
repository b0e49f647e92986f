package match

import (
	"context"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"finmatch/pkg/core/hierarchy"
	"finmatch/pkg/core/normalize"
	"finmatch/pkg/core/terminology"
)

// Engine runs the matching cascade. All lookup state is built once in
// NewEngine and read-only afterwards; Engine is safe for concurrent use.
type Engine struct {
	cfg        Config
	catalog    *terminology.Catalog
	index      *terminology.Index
	relations  *hierarchy.Mapper
	normalizer *normalize.Normalizer

	sim             StringSimilarity
	fuzzyEnabled    bool
	embedder        TextEmbedder
	semanticEnabled bool

	// Term-label embeddings in catalog order, computed once at startup.
	termKeys       []string
	termEmbeddings [][]float32

	// Word-boundary patterns per indexed keyword.
	boundary map[string]*regexp.Regexp

	mu         sync.Mutex
	fuzzyCache map[string]int
}

// NewEngine builds an engine over a validated catalog and relationship
// tables. The similarity and embedding backends are optional: passing nil or
// a null backend permanently disables the corresponding layer, logged once
// here rather than per line.
func NewEngine(
	ctx context.Context,
	catalog *terminology.Catalog,
	relations *hierarchy.Mapper,
	cfg Config,
	sim StringSimilarity,
	embedder TextEmbedder,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil || relations == nil {
		return nil, ErrConfiguration
	}

	normalizer := normalize.NewNormalizer(nil)
	e := &Engine{
		cfg:        cfg,
		catalog:    catalog,
		index:      terminology.NewIndex(catalog, normalizer),
		relations:  relations,
		normalizer: normalizer,
		sim:        sim,
		embedder:   embedder,
		boundary:   make(map[string]*regexp.Regexp),
		fuzzyCache: make(map[string]int),
	}

	for _, kw := range e.index.Keywords() {
		e.boundary[kw] = regexp.MustCompile(`(^|[\s\-])` + regexp.QuoteMeta(kw) + `([\s\-]|$)`)
	}

	e.fuzzyEnabled = cfg.FuzzyTrigger != FuzzyOff && sim != nil
	if _, null := sim.(NoSimilarity); null {
		e.fuzzyEnabled = false
	}
	if cfg.FuzzyTrigger != FuzzyOff && !e.fuzzyEnabled {
		log.Printf("[match] fuzzy backend unavailable, layer disabled")
	}

	e.semanticEnabled = cfg.SemanticTrigger != SemanticOff && embedder != nil
	if _, null := embedder.(NoEmbedder); null {
		e.semanticEnabled = false
	}
	if cfg.SemanticTrigger != SemanticOff && !e.semanticEnabled {
		log.Printf("[match] embedding backend unavailable, layer disabled")
	}

	if e.semanticEnabled {
		if err := e.embedTermLabels(ctx); err != nil {
			log.Printf("[match] term embedding failed, semantic layer disabled: %v", err)
			e.semanticEnabled = false
		}
	}

	return e, nil
}

// embedTermLabels caches one embedding per term label, in catalog order.
func (e *Engine) embedTermLabels(ctx context.Context) error {
	terms := e.catalog.Terms()
	labels := make([]string, len(terms))
	e.termKeys = make([]string, len(terms))
	for i, t := range terms {
		labels[i] = t.Label
		e.termKeys[i] = t.Key
	}

	vecs, err := e.embedder.Embed(ctx, labels)
	if err != nil {
		return err
	}
	e.termEmbeddings = vecs
	return nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Normalizer exposes the engine's text normalizer for callers that need the
// same canonical forms (cross-reference resolution, value parsing).
func (e *Engine) Normalizer() *normalize.Normalizer {
	return e.normalizer
}

// MatchText runs the full cascade on one line and returns at most one result
// per term key, sorted by descending confidence. A blank line yields nil.
func (e *Engine) MatchText(ctx context.Context, text string, lineNumber int) []MatchResult {
	pre := e.normalizer.Preprocess(text, lineNumber)
	if pre.Canonical == "" {
		return nil
	}

	seen := make(map[string]bool)

	results := e.layerExact(pre, seen)

	if e.fuzzyEnabled && (e.cfg.FuzzyTrigger == FuzzyAlways || len(results) == 0) {
		results = append(results, e.layerFuzzy(pre, seen)...)
	}

	if e.semanticEnabled && len(results) < e.cfg.SemanticMaxExisting {
		results = append(results, e.layerSemantic(ctx, pre, seen)...)
	}

	results = e.resolveHierarchy(results, pre.Original)
	return e.dedupeAndScore(results)
}

// layerExact covers direct whole-keyword hits, sliding n-grams, and acronym
// tokens. Direct hits may produce several entries per term (one per matching
// keyword); the later phases skip terms already found.
func (e *Engine) layerExact(pre normalize.Result, seen map[string]bool) []MatchResult {
	var results []MatchResult
	canonical := pre.Canonical

	for _, kw := range e.index.Keywords() {
		if !e.boundary[kw].MatchString(canonical) {
			continue
		}
		for _, d := range e.index.Lookup(kw) {
			results = append(results, e.newResult(d, pre, TypeExact, e.cfg.ExactWeight*d.Boost))
		}
	}
	for _, r := range results {
		seen[r.TermKey] = true
	}

	words := strings.Fields(canonical)
	maxN := e.cfg.MaxNgram
	if len(words) < maxN {
		maxN = len(words)
	}
	for n := maxN; n >= e.cfg.MinNgram; n-- {
		for i := 0; i+n <= len(words); i++ {
			ngram := strings.Join(words[i:i+n], " ")
			for _, d := range e.index.Lookup(ngram) {
				if seen[d.TermKey] {
					continue
				}
				seen[d.TermKey] = true
				conf := e.cfg.ExactWeight * d.Boost * (1 + e.cfg.NgramLengthBonus*float64(n))
				results = append(results, e.newResult(d, pre, TypeExactNgram, conf))
			}
		}
	}

	for _, token := range acronymTokens(pre) {
		for _, d := range e.index.LookupAcronym(token) {
			if seen[d.TermKey] {
				continue
			}
			seen[d.TermKey] = true
			results = append(results, e.newResult(d, pre, TypeAcronym, e.cfg.AcronymWeight*d.Boost))
		}
	}

	return results
}

// acronymTokens yields candidate acronym tokens from both the canonical form
// and the cleaned form. The cleaned form still carries "&", so forms like
// "pp&e" survive for lookup.
func acronymTokens(pre normalize.Result) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tok string) {
		tok = strings.Trim(strings.ToLower(tok), ".,:;()[]")
		if tok != "" && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	for _, tok := range strings.Fields(pre.Canonical) {
		add(tok)
	}
	for _, tok := range strings.Fields(pre.Cleaned) {
		add(tok)
	}
	return out
}

// layerFuzzy scores the canonical text against every indexed keyword: a
// token-set pass for word-order variations, then a stricter partial pass for
// substring hits. Scores are memoized across lines.
func (e *Engine) layerFuzzy(pre normalize.Result, seen map[string]bool) []MatchResult {
	var results []MatchResult
	canonical := pre.Canonical

	for _, kw := range e.index.Keywords() {
		if len(kw) < e.cfg.MinKeywordLenFuzzy {
			continue
		}
		score := e.cachedRatio("token_set", canonical, kw, e.sim.TokenSetRatio)
		if score < e.cfg.FuzzyThreshold {
			continue
		}
		for _, d := range e.index.Lookup(kw) {
			if seen[d.TermKey] {
				continue
			}
			seen[d.TermKey] = true
			conf := float64(score) / 100 * e.cfg.FuzzyWeight * d.Boost
			r := e.newResult(d, pre, TypeFuzzy, conf)
			r.FuzzyScore = score
			results = append(results, r)
		}
	}

	for _, kw := range e.index.Keywords() {
		if len(kw) < e.cfg.MinKeywordLenPartial {
			continue
		}
		score := e.cachedRatio("partial", canonical, kw, e.sim.PartialRatio)
		if score < e.cfg.PartialThreshold {
			continue
		}
		for _, d := range e.index.Lookup(kw) {
			if seen[d.TermKey] {
				continue
			}
			seen[d.TermKey] = true
			conf := float64(score) / 100 * e.cfg.FuzzyWeight * d.Boost
			r := e.newResult(d, pre, TypeFuzzyPartial, conf)
			r.FuzzyScore = score
			results = append(results, r)
		}
	}

	return results
}

// cachedRatio memoizes similarity scores across lines. The pass name is part
// of the key so token-set and partial scores never collide.
func (e *Engine) cachedRatio(pass, text, keyword string, ratio func(a, b string) int) int {
	key := pass + "\x00" + text + "\x00" + keyword
	e.mu.Lock()
	score, ok := e.fuzzyCache[key]
	e.mu.Unlock()
	if ok {
		return score
	}

	score = ratio(text, keyword)

	e.mu.Lock()
	e.fuzzyCache[key] = score
	e.mu.Unlock()
	return score
}

// layerSemantic embeds the line and compares it against the cached term-label
// vectors. An embedding failure degrades this line only.
func (e *Engine) layerSemantic(ctx context.Context, pre normalize.Result, seen map[string]bool) []MatchResult {
	vecs, err := e.embedder.Embed(ctx, []string{pre.Canonical})
	if err != nil || len(vecs) == 0 {
		log.Printf("[match] line %d: embedding failed: %v", pre.LineNumber, err)
		return nil
	}
	lineVec := vecs[0]

	var results []MatchResult
	for i, termVec := range e.termEmbeddings {
		similarity := cosineSimilarity(lineVec, termVec)
		if similarity < e.cfg.SemanticThreshold {
			continue
		}
		key := e.termKeys[i]
		if seen[key] {
			continue
		}
		term := e.catalog.Term(key)
		if term == nil {
			continue
		}
		seen[key] = true

		r := MatchResult{
			TermKey:        term.Key,
			TermLabel:      term.Label,
			MatchedKeyword: term.Label,
			MatchType:      TypeSemantic,
			Confidence:     similarity * e.cfg.SemanticWeight * term.Boost,
			OriginalText:   pre.Original,
			CanonicalText:  pre.Canonical,
			LineNumber:     pre.LineNumber,
			Category:       term.Category,
			Boost:          term.Boost,
			FormulaInputs:  term.FormulaInputs,
			SignConvention: term.SignConvention,
			SemanticScore:  similarity,
		}
		results = append(results, r)
	}
	return results
}

// resolveHierarchy drops a parent term when one of its children matched the
// same line, unless the line literally reads "total".
func (e *Engine) resolveHierarchy(results []MatchResult, original string) []MatchResult {
	if !e.cfg.PreferSpecific || len(results) < 2 {
		return results
	}

	matched := make(map[string]bool, len(results))
	for _, r := range results {
		matched[r.TermKey] = true
	}

	drop := make(map[string]bool)
	for key := range matched {
		parent, ok := e.relations.Parent(key)
		if !ok || !matched[parent] {
			continue
		}
		if e.relations.PreferChild(key, parent, original) {
			drop[parent] = true
		}
	}
	if len(drop) == 0 {
		return results
	}

	kept := results[:0]
	for _, r := range results {
		if !drop[r.TermKey] {
			kept = append(kept, r)
		}
	}
	return kept
}

// dedupeAndScore keeps the best entry per term key, applies the specificity
// bonus for multi-word keywords, and orders by descending confidence. Ties
// break on term key so output order is deterministic.
func (e *Engine) dedupeAndScore(results []MatchResult) []MatchResult {
	if len(results) == 0 {
		return nil
	}

	best := make(map[string]MatchResult)
	var order []string
	for _, r := range results {
		cur, ok := best[r.TermKey]
		if !ok {
			best[r.TermKey] = r
			order = append(order, r.TermKey)
			continue
		}
		if betterMatch(r, cur) {
			best[r.TermKey] = r
		}
	}

	out := make([]MatchResult, 0, len(order))
	for _, key := range order {
		r := best[key]
		words := len(strings.Fields(r.MatchedKeyword))
		if words > 1 {
			r.Confidence *= 1 + e.cfg.SpecificityBonus*float64(words-1)
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].TermKey < out[j].TermKey
	})
	return out
}

// betterMatch prefers higher confidence, then the longer matched keyword.
func betterMatch(a, b MatchResult) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	aw := len(strings.Fields(a.MatchedKeyword))
	bw := len(strings.Fields(b.MatchedKeyword))
	if aw != bw {
		return aw > bw
	}
	return a.MatchedKeyword < b.MatchedKeyword
}

func (e *Engine) newResult(d terminology.Descriptor, pre normalize.Result, matchType string, confidence float64) MatchResult {
	return MatchResult{
		TermKey:        d.TermKey,
		TermLabel:      d.Label,
		MatchedKeyword: d.Keyword,
		MatchType:      matchType,
		Confidence:     confidence,
		OriginalText:   pre.Original,
		CanonicalText:  pre.Canonical,
		LineNumber:     pre.LineNumber,
		Category:       d.Category,
		Boost:          d.Boost,
		FormulaInputs:  d.FormulaInputs,
		SignConvention: d.SignConvention,
	}
}

// MatchDocument matches every non-blank line, in parallel up to
// Config.Workers, and assembles a session in line order. A panicking line is
// recorded unmatched; the document always completes.
func (e *Engine) MatchDocument(ctx context.Context, lines []string, sectionType string) (*Session, error) {
	session := NewSession(sectionType)
	session.Stats.TotalLines = len(lines)

	perLine := make([][]MatchResult, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		i, line := i, line
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[match] line %d: %v: recovered from %v", i+1, ErrMatching, r)
					perLine[i] = nil
				}
			}()
			perLine[i] = e.MatchText(gctx, line, i+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		matches := perLine[i]
		if len(matches) == 0 {
			session.Unmatched = append(session.Unmatched, UnmatchedLine{LineNumber: i + 1, Text: line})
			session.Stats.UnmatchedLines++
			continue
		}
		session.Results = append(session.Results, matches...)
		session.Stats.MatchedLines++
		for _, m := range matches {
			switch m.MatchType {
			case TypeExact, TypeExactNgram:
				session.Stats.ExactMatches++
			case TypeAcronym:
				session.Stats.AcronymMatches++
			case TypeFuzzy, TypeFuzzyPartial:
				session.Stats.FuzzyMatches++
			case TypeSemantic:
				session.Stats.SemanticMatches++
			}
		}
	}

	return session, nil
}
