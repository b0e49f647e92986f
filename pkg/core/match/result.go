package match

import (
	"time"

	"github.com/google/uuid"
)

// Match types, in cascade order.
const (
	TypeExact        = "exact"
	TypeExactNgram   = "exact_ngram"
	TypeAcronym      = "acronym"
	TypeFuzzy        = "fuzzy"
	TypeFuzzyPartial = "fuzzy_partial"
	TypeSemantic     = "semantic"
)

// MatchResult is one resolved term on one line. Confidence is an unbounded
// positive score, not a probability: boosts and bonuses push it past 1.
type MatchResult struct {
	TermKey        string   `json:"term_key"`
	TermLabel      string   `json:"term_label"`
	MatchedKeyword string   `json:"matched_keyword"`
	MatchType      string   `json:"match_type"`
	Confidence     float64  `json:"confidence_score"`
	OriginalText   string   `json:"original_text"`
	CanonicalText  string   `json:"canonical_text"`
	LineNumber     int      `json:"line_number"`
	Category       string   `json:"category"`
	Boost          float64  `json:"boost"`
	FormulaInputs  []string `json:"formula_inputs,omitempty"`
	SignConvention string   `json:"sign_convention"`
	FuzzyScore     int      `json:"fuzzy_score,omitempty"`
	SemanticScore  float64  `json:"semantic_score,omitempty"`
}

// UnmatchedLine records a non-blank line no layer could resolve.
type UnmatchedLine struct {
	LineNumber int    `json:"line_number"`
	Text       string `json:"text"`
}

// Stats are the per-document aggregate counters.
type Stats struct {
	TotalLines      int `json:"total_lines"`
	MatchedLines    int `json:"matched_lines"`
	UnmatchedLines  int `json:"unmatched_lines"`
	ExactMatches    int `json:"exact_matches"`
	AcronymMatches  int `json:"acronym_matches"`
	FuzzyMatches    int `json:"fuzzy_matches"`
	SemanticMatches int `json:"semantic_matches"`
}

// Session is the full outcome of matching one document. Every non-blank
// input line lands in Results or Unmatched.
type Session struct {
	ID          string          `json:"session_id"`
	CreatedAt   time.Time       `json:"created_at"`
	SectionType string          `json:"section_type,omitempty"`
	Results     []MatchResult   `json:"results"`
	Unmatched   []UnmatchedLine `json:"unmatched_lines"`
	Stats       Stats           `json:"stats"`
}

// NewSession allocates an empty session with a fresh id.
func NewSession(sectionType string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		SectionType: sectionType,
	}
}

// SessionSummary condenses a session for reporting and persistence.
type SessionSummary struct {
	SessionID        string         `json:"session_id"`
	TotalMatches     int            `json:"total_matches"`
	UniqueTerms      int            `json:"unique_terms"`
	MatchTypes       map[string]int `json:"match_types"`
	ConfidenceHigh   int            `json:"confidence_high"`
	ConfidenceMedium int            `json:"confidence_medium"`
	ConfidenceLow    int            `json:"confidence_low"`
	Stats            Stats          `json:"stats"`
}

// Summary aggregates match counts, unique terms, and a coarse confidence
// distribution (>=0.8 high, >=0.5 medium, rest low).
func (s *Session) Summary() SessionSummary {
	sum := SessionSummary{
		SessionID:    s.ID,
		TotalMatches: len(s.Results),
		MatchTypes:   make(map[string]int),
		Stats:        s.Stats,
	}

	terms := make(map[string]bool)
	for _, r := range s.Results {
		terms[r.TermKey] = true
		sum.MatchTypes[r.MatchType]++
		switch {
		case r.Confidence >= 0.8:
			sum.ConfidenceHigh++
		case r.Confidence >= 0.5:
			sum.ConfidenceMedium++
		default:
			sum.ConfidenceLow++
		}
	}
	sum.UniqueTerms = len(terms)
	return sum
}
