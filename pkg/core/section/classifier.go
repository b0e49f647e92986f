// Package section classifies blocks of statement lines into section
// categories (assets, liabilities, equity, income statement, cash flow,
// notes) so callers can boost term confidence by context.
package section

import (
	"regexp"
	"strings"
	"unicode"
)

// Section categories.
const (
	BalanceSheetAssets      = "balance_sheet_assets"
	BalanceSheetLiabilities = "balance_sheet_liabilities"
	BalanceSheetEquity      = "balance_sheet_equity"
	IncomeStatement         = "income_statement"
	CashFlow                = "cash_flow"
	Notes                   = "notes"
)

// Context describes one classified section of a document.
type Context struct {
	SectionType string   `json:"section_type"`
	Confidence  float64  `json:"confidence"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	HeaderText  string   `json:"header_text,omitempty"`
	Indicators  []string `json:"indicators,omitempty"`
	BoostTerms  []string `json:"boost_terms,omitempty"`
}

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

type sectionProfile struct {
	name       string
	patterns   []weightedPattern
	headers    []*regexp.Regexp
	boostTerms []string
	// Expected relative position of the section within a filing.
	position float64
}

// Classifier scores sections against fixed pattern profiles. Immutable after
// construction and safe for concurrent use.
type Classifier struct {
	profiles      []sectionProfile
	headerHints   []*regexp.Regexp
	sectionBreaks []*regexp.Regexp

	// MinConfidence is the classification floor; below it a block stays
	// unclassified.
	MinConfidence float64
	// HeaderWeight multiplies pattern hits on likely header lines.
	HeaderWeight float64
	// HeaderBonus is added for an explicit section-header phrase.
	HeaderBonus float64
	// Boost is the multiplier SectionBoost returns for in-section terms.
	Boost float64
}

func pat(expr string, weight float64) weightedPattern {
	return weightedPattern{regexp.MustCompile(expr), weight}
}

func mustHeaders(ps ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(ps))
	for i, p := range ps {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// NewClassifier builds the classifier with its built-in section profiles.
func NewClassifier() *Classifier {
	return &Classifier{
		MinConfidence: 0.3,
		HeaderWeight:  2.0,
		HeaderBonus:   3.0,
		Boost:         1.5,
		profiles: []sectionProfile{
			{
				name:     BalanceSheetAssets,
				position: 0.1,
				patterns: []weightedPattern{
					pat(`\bassets?\b`, 1.0),
					pat(`\bnon[-\s]?current\s+assets?\b`, 2.0),
					pat(`\bcurrent\s+assets?\b`, 2.0),
					pat(`\bproperty[\s,]+plant[\s,]+(and\s+)?equipment\b`, 2.5),
					pat(`\bppe\b`, 2.0),
					pat(`\binventor(y|ies)\b`, 1.5),
					pat(`\breceivables?\b`, 1.5),
					pat(`\bcash\s+and\s+cash\s+equivalents\b`, 2.0),
					pat(`\btotal\s+assets\b`, 2.5),
					pat(`\bfixed\s+assets?\b`, 2.0),
					pat(`\bintangible\s+assets?\b`, 2.0),
					pat(`\bgoodwill\b`, 1.5),
					pat(`\bcapital\s+work[-\s]in[-\s]progress\b`, 1.5),
				},
				headers: mustHeaders(
					`\bassets?\b`,
					`\bnon[-\s]?current\s+assets?\b`,
					`\bcurrent\s+assets?\b`,
				),
				boostTerms: []string{
					"total_assets", "property_plant_equipment", "inventories",
					"trade_receivables", "cash", "investments",
					"intangible_assets", "goodwill", "capital_work_in_progress",
				},
			},
			{
				name:     BalanceSheetLiabilities,
				position: 0.2,
				patterns: []weightedPattern{
					pat(`\bliabilit(y|ies)\b`, 1.0),
					pat(`\bnon[-\s]?current\s+liabilit(y|ies)\b`, 2.0),
					pat(`\bcurrent\s+liabilit(y|ies)\b`, 2.0),
					pat(`\bborrowings?\b`, 1.5),
					pat(`\blong[-\s]?term\s+borrowings?\b`, 2.0),
					pat(`\bshort[-\s]?term\s+borrowings?\b`, 2.0),
					pat(`\btrade\s+payables?\b`, 2.0),
					pat(`\bprovisions?\b`, 1.5),
					pat(`\bdeferred\s+tax\b`, 2.0),
					pat(`\btotal\s+liabilit(y|ies)\b`, 2.5),
				},
				headers: mustHeaders(
					`\bliabilit(y|ies)\b`,
					`\bequity\s+and\s+liabilit(y|ies)\b`,
				),
				boostTerms: []string{
					"borrowings", "trade_payables", "provisions", "deferred_tax",
					"total_liabilities",
				},
			},
			{
				name:     BalanceSheetEquity,
				position: 0.25,
				patterns: []weightedPattern{
					pat(`\bequity\b`, 1.0),
					pat(`\bshareholders?\s+(equity|funds?)\b`, 2.5),
					pat(`\bshare\s+capital\b`, 2.0),
					pat(`\breserves?\s+and\s+surplus\b`, 2.0),
					pat(`\bretained\s+earnings?\b`, 2.0),
					pat(`\bother\s+comprehensive\s+income\b`, 2.0),
					pat(`\btotal\s+equity\b`, 2.5),
					pat(`\bowners?\s+equity\b`, 2.0),
				},
				headers: mustHeaders(
					`\bequity\b`,
					`\bshareholders?\s+funds?\b`,
				),
				boostTerms: []string{
					"share_capital", "reserves", "retained_earnings", "total_equity",
				},
			},
			{
				name:     IncomeStatement,
				position: 0.4,
				patterns: []weightedPattern{
					pat(`\brevenue\b`, 1.5),
					pat(`\brevenue\s+from\s+operations\b`, 2.5),
					pat(`\bsales\b`, 1.5),
					pat(`\bturnover\b`, 1.5),
					pat(`\bexpenses?\b`, 1.0),
					pat(`\bcost\s+of\s+(goods\s+sold|revenue)\b`, 2.0),
					pat(`\bgross\s+profit\b`, 2.0),
					pat(`\boperating\s+profit\b`, 2.0),
					pat(`\bebitda\b`, 2.5),
					pat(`\bprofit\s+before\s+tax\b`, 2.0),
					pat(`\btax\s+expense\b`, 1.5),
					pat(`\bprofit\s+for\s+the\s+year\b`, 2.5),
					pat(`\bnet\s+(profit|income)\b`, 2.5),
					pat(`\bearnings?\s+per\s+share\b`, 2.0),
				},
				headers: mustHeaders(
					`\bstatement\s+of\s+profit\s+and\s+loss\b`,
					`\bprofit\s+and\s+loss\b`,
					`\bincome\s+statement\b`,
					`\bstatement\s+of\s+income\b`,
				),
				boostTerms: []string{
					"revenue", "profit", "ebitda", "cost_of_goods_sold",
					"tax_expense", "earnings_per_share", "employee_benefits",
					"finance_costs", "depreciation",
				},
			},
			{
				name:     CashFlow,
				position: 0.6,
				patterns: []weightedPattern{
					pat(`\bcash\s+flow\b`, 2.0),
					pat(`\boperating\s+activities\b`, 2.0),
					pat(`\binvesting\s+activities\b`, 2.0),
					pat(`\bfinancing\s+activities\b`, 2.0),
					pat(`\bnet\s+cash\s+from\b`, 2.0),
					pat(`\bcapital\s+expenditure\b`, 1.5),
					pat(`\bdividends?\s+paid\b`, 1.5),
					pat(`\bcash\s+and\s+cash\s+equivalents\s+at\s+(end|beginning)\b`, 2.5),
				},
				headers: mustHeaders(
					`\bcash\s+flow\s+statement\b`,
					`\bstatement\s+of\s+cash\s+flows?\b`,
				),
				boostTerms: []string{
					"cash_from_operations", "cash_from_investing",
					"cash_from_financing", "capital_expenditure",
					"dividends_paid", "cash_at_end",
				},
			},
			{
				name:     Notes,
				position: 0.8,
				patterns: []weightedPattern{
					pat(`\bnote\s*\d+\b`, 1.5),
					pat(`\bnotes\s+to\s+(the\s+)?accounts\b`, 2.5),
					pat(`\bsignificant\s+accounting\s+policies\b`, 2.0),
					pat(`\bdisclosures?\b`, 1.0),
					pat(`\bcontingent\s+liabilit(y|ies)\b`, 1.5),
					pat(`\bcommitments?\b`, 1.0),
					pat(`\brelated\s+part(y|ies)\b`, 1.5),
					pat(`\bsegment\s+reporting\b`, 1.5),
				},
				headers: mustHeaders(
					`\bnotes\s+to\s+the\s+accounts\b`,
					`\bsignificant\s+accounting\s+policies\b`,
					`^note\s*\d+`,
				),
				boostTerms: []string{
					"contingent_liabilities", "related_party", "commitments",
				},
			},
		},
		headerHints: mustHeaders(
			`^assets?$`,
			`^liabilit(y|ies)$`,
			`^equity$`,
			`^income$`,
			`^revenue$`,
			`^expenses?$`,
			`^note\s*\d+$`,
			`^cash\s+flow$`,
		),
		sectionBreaks: mustHeaders(
			`^\s*assets?\s*$`,
			`^\s*liabilit(y|ies)\s*$`,
			`^\s*equity\s*$`,
			`^\s*income\s*$`,
			`^\s*revenue\s*$`,
			`^\s*expenses?\s*$`,
			`^\s*cash\s+flow\s*$`,
			`^\s*notes?\s+to\s+`,
			`^\s*statement\s+of\s+`,
			`^\s*note\s*\d+\s*$`,
			`^\s*significant\s+accounting\s+policies\s*$`,
		),
	}
}

// ClassifySection scores one block of lines against every profile and returns
// the best category, or nil when nothing clears the confidence floor.
func (c *Classifier) ClassifySection(lines []string, startLine int) *Context {
	if len(lines) == 0 {
		return nil
	}

	scores := make([]float64, len(c.profiles))
	indicators := make([][]string, len(c.profiles))

	for i, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" {
			continue
		}

		weight := 1.0
		if c.isLikelyHeader(line, i) {
			weight = c.HeaderWeight
		}

		for p, prof := range c.profiles {
			for _, wp := range prof.patterns {
				if wp.re.MatchString(lower) {
					scores[p] += wp.weight * weight
					indicators[p] = append(indicators[p], wp.re.String())
				}
			}
			for _, h := range prof.headers {
				if h.MatchString(lower) {
					scores[p] += c.HeaderBonus
				}
			}
		}
	}

	// Per-line normalization plus a prior on where the section usually
	// sits in a filing.
	relative := float64(startLine) / 1000
	best, bestScore := -1, 0.0
	for p, prof := range c.profiles {
		score := scores[p] / float64(len(lines))
		diff := relative - prof.position
		if diff < 0 {
			diff = -diff
		}
		penalty := 1.0 - diff*2
		if penalty < 0 {
			penalty = 0
		}
		score *= 0.8 + 0.2*penalty

		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if best < 0 {
		return nil
	}

	const maxPerLine = 5.0
	confidence := bestScore / maxPerLine
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < c.MinConfidence {
		return nil
	}

	header := ""
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if c.isLikelyHeader(line, i) {
			header = strings.TrimSpace(line)
			break
		}
	}

	ind := indicators[best]
	if len(ind) > 10 {
		ind = ind[:10]
	}

	return &Context{
		SectionType: c.profiles[best].name,
		Confidence:  confidence,
		StartLine:   startLine,
		EndLine:     startLine + len(lines) - 1,
		HeaderText:  header,
		Indicators:  ind,
		BoostTerms:  c.profiles[best].boostTerms,
	}
}

// ClassifyDocument splits a document on section-break lines and classifies
// each block. Blocks shorter than minSectionLines are ignored.
func (c *Classifier) ClassifyDocument(lines []string) []Context {
	const minSectionLines = 3

	var sections []Context
	var block []string
	blockStart := 0

	flush := func() {
		if len(block) < minSectionLines {
			return
		}
		if ctx := c.ClassifySection(block, blockStart); ctx != nil {
			sections = append(sections, *ctx)
		}
	}

	for i, line := range lines {
		if c.isSectionBreak(strings.TrimSpace(line)) {
			flush()
			block = []string{line}
			blockStart = i
		} else {
			block = append(block, line)
		}
	}
	flush()

	return sections
}

// SectionBoost returns the confidence multiplier for a term matched inside a
// classified section: >1 when the term belongs to that section, 1 otherwise.
func (c *Classifier) SectionBoost(termKey, sectionType string) float64 {
	if sectionType == "" {
		return 1.0
	}
	key := strings.ToLower(termKey)
	for _, prof := range c.profiles {
		if prof.name != sectionType {
			continue
		}
		for _, bt := range prof.boostTerms {
			if strings.Contains(key, bt) {
				return c.Boost
			}
		}
	}
	return 1.0
}

// isLikelyHeader reports whether a raw line looks like a section header:
// near the top of the block, short, and either fully capitalized, title
// cased, or matching a known header phrase.
func (c *Classifier) isLikelyHeader(line string, position int) bool {
	if position > 3 {
		return false
	}
	trimmed := strings.TrimSpace(line)
	words := strings.Fields(trimmed)
	if len(words) == 0 || len(words) > 6 {
		return false
	}

	if isAllUpper(trimmed) || isTitleCase(words) {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, h := range c.headerHints {
		if h.MatchString(lower) {
			return true
		}
	}
	return false
}

func (c *Classifier) isSectionBreak(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	for _, re := range c.sectionBreaks {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func isTitleCase(words []string) bool {
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
