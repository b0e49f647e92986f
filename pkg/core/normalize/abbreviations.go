package normalize

import (
	"regexp"
	"strings"
)

// =============================================================================
// ABBREVIATION TABLES
// Shared by the normalizer (expansion) and the terminology index (acronyms).
// =============================================================================

// Abbreviations holds the static abbreviation-to-expansion tables used during
// preprocessing. Single-token entries are expanded word by word; multi-word
// entries are expanded before tokenization so phrases like "ind as" survive.
type Abbreviations struct {
	Single    map[string]string
	MultiWord map[string]string
}

// DefaultAbbreviations returns the built-in financial abbreviation map.
//
// Note: pure first-letter acronyms that the terminology index derives from
// term labels (ppe, pp&e) are deliberately absent here; those are resolved by
// the acronym matching layer instead of textual expansion.
func DefaultAbbreviations() *Abbreviations {
	return &Abbreviations{
		Single: map[string]string{
			// General accounting
			"acc":  "accounts",
			"acct": "accounts",

			// Assets & equipment
			"cwip":  "capital work in progress",
			"cip":   "construction in progress",
			"rou":   "right of use",
			"capex": "capital expenditure",
			"opex":  "operating expenditure",

			// Financial instruments
			"ecl":   "expected credit loss",
			"fvtpl": "fair value through profit loss",
			"fvoci": "fair value through other comprehensive income",
			"oci":   "other comprehensive income",
			"htm":   "held to maturity",
			"afs":   "available for sale",

			// Earnings & performance
			"ebitda": "earnings before interest tax depreciation amortization",
			"ebit":   "earnings before interest tax",
			"ebt":    "earnings before tax",
			"eps":    "earnings per share",
			"bvps":   "book value per share",
			"nav":    "net asset value",
			"cogs":   "cost of goods sold",

			// Statements & reporting
			"bs":   "balance sheet",
			"pl":   "profit loss",
			"pnl":  "profit and loss",
			"cfs":  "cash flow statement",
			"soce": "statement of changes in equity",
			"sofp": "statement of financial position",
			"socf": "statement of cash flows",
			"fy":   "financial year",

			// Taxation
			"dtl": "deferred tax liability",
			"dta": "deferred tax asset",
			"mat": "minimum alternate tax",
			"gst": "goods and services tax",
			"tds": "tax deducted at source",
			"vat": "value added tax",

			// Equity & capital
			"nci":  "non controlling interest",
			"kmp":  "key management personnel",
			"esop": "employee stock option plan",

			// Inventory & valuation
			"nrv":  "net realisable value",
			"fifo": "first in first out",
			"lifo": "last in first out",
			"wip":  "work in progress",

			// Periods
			"yoy": "year on year",
			"qoq": "quarter on quarter",
			"ytd": "year to date",
		},
		MultiWord: map[string]string{
			"ind as": "indian accounting standard",
			"indas":  "indian accounting standard",
			"ifrs":   "international financial reporting standard",
			"gaap":   "generally accepted accounting principles",
			"sebi":   "securities and exchange board of india",
			"rbi":    "reserve bank of india",
		},
	}
}

// Expand returns the expansion for a cleaned lowercase token, or the token
// itself when no expansion exists.
func (a *Abbreviations) Expand(token string) string {
	if exp, ok := a.Single[token]; ok {
		return exp
	}
	return token
}

// =============================================================================
// SIGN CONVENTION INDICATORS
// =============================================================================

// signIndicator marks a leading token that forces the sign of a line.
// Multiplier follows accounting convention: credits reduce, debits add.
type signIndicator struct {
	prefix     string
	multiplier int
}

// Ordered so longer, more specific prefixes are checked first.
var signIndicators = []signIndicator{
	{"less:", -1},
	{"less", -1},
	{"(-)", -1},
	{"(cr)", -1},
	{"(cr.)", -1},
	{"cr.", -1},
	{"credit", -1},
	{"(dr)", 1},
	{"(dr.)", 1},
	{"dr.", 1},
	{"debit", 1},
}

// =============================================================================
// ACRONYM GENERATION
// =============================================================================

// Predefined acronyms that first-letter generation alone would miss.
var acronymPatterns = map[string][]string{
	"property plant and equipment": {"ppe", "pp&e"},
	"property plant equipment":     {"ppe", "pp&e"},
	"capital work in progress":     {"cwip"},
	"other comprehensive income":   {"oci"},
	"earnings per share":           {"eps"},
	"net realisable value":         {"nrv"},
	"non controlling interest":     {"nci"},
	"deferred tax liability":       {"dtl"},
	"deferred tax asset":           {"dta"},
	"work in progress":             {"wip"},
	"profit and loss":              {"pl", "pnl"},
	"balance sheet":                {"bs"},
	"cash flow statement":          {"cfs"},
	"earnings before interest tax depreciation amortization": {"ebitda"},
}

var nonWordSpace = regexp.MustCompile(`[^a-z0-9\s]`)

// GenerateAcronyms produces the plausible acronym forms of a term: predefined
// variants, the first-letter acronym, and the first-letter acronym with
// "and"/"&" stripped (so "Property, Plant and Equipment" yields "ppe").
func GenerateAcronyms(term string) []string {
	normalized := nonWordSpace.ReplaceAllString(strings.ToLower(term), "")
	normalized = strings.Join(strings.Fields(normalized), " ")

	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}

	for _, a := range acronymPatterns[normalized] {
		add(a)
	}

	words := strings.Fields(normalized)
	if len(words) > 1 {
		var b strings.Builder
		for _, w := range words {
			b.WriteByte(w[0])
		}
		add(b.String())

		// Variant with connective words removed: "x and y" -> "xy".
		if strings.Contains(normalized, " and ") {
			var alt strings.Builder
			for _, w := range words {
				if w == "and" {
					continue
				}
				alt.WriteByte(w[0])
			}
			add(alt.String())
		}
	}

	return out
}
