// Package normalize standardizes raw financial-statement lines for term
// matching: sign conventions, note references, abbreviations, dates, number
// formats, and a canonical lowercase form.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Result is the output of the preprocessing pipeline for one line.
type Result struct {
	Original       string              `json:"original_text"`
	Cleaned        string              `json:"cleaned_text"`
	Canonical      string              `json:"canonical_form"`
	SignMultiplier int                 `json:"sign_multiplier"`
	Abbreviations  []string            `json:"detected_abbreviations,omitempty"`
	Removed        map[string][]string `json:"removed_elements,omitempty"`
	LineNumber     int                 `json:"line_number"`
	OriginalLen    int                 `json:"original_length"`
	CleanedLen     int                 `json:"cleaned_length"`
	CanonicalLen   int                 `json:"canonical_length"`
}

type multiWordRule struct {
	abbr      string
	pattern   *regexp.Regexp
	expansion string
}

// Normalizer runs the preprocessing pipeline. It is stateless after
// construction and safe for concurrent use.
type Normalizer struct {
	abbr      *Abbreviations
	multiWord []multiWordRule

	noteRefs     *regexp.Regexp
	dotLeaders   *regexp.Regexp
	whitespace   *regexp.Regexp
	parenNumbers *regexp.Regexp
	dateFormats  *regexp.Regexp
	thousandSep  *regexp.Regexp
	decimalGuard *regexp.Regexp
	nonCanonical *regexp.Regexp
	tokenClean   *regexp.Regexp
	signedNumber *regexp.Regexp
}

// NewNormalizer builds a normalizer around the given abbreviation tables.
// Passing nil uses DefaultAbbreviations.
func NewNormalizer(abbr *Abbreviations) *Normalizer {
	if abbr == nil {
		abbr = DefaultAbbreviations()
	}

	// Multi-word rules are applied in sorted order so output is stable.
	abbrs := make([]string, 0, len(abbr.MultiWord))
	for a := range abbr.MultiWord {
		abbrs = append(abbrs, a)
	}
	sort.Strings(abbrs)
	rules := make([]multiWordRule, 0, len(abbrs))
	for _, a := range abbrs {
		rules = append(rules, multiWordRule{
			abbr:      a,
			pattern:   regexp.MustCompile(`\b` + regexp.QuoteMeta(a) + `\b`),
			expansion: abbr.MultiWord[a],
		})
	}

	return &Normalizer{
		abbr:      abbr,
		multiWord: rules,
		noteRefs: regexp.MustCompile(
			`(?i)\bnote\s*(?:no\.?)?\s*\d+\b|\(see\s+note\s*\d+\)|\(note\s*\d+\)|\bschedule\s*[a-z]\d*\b|\(\d+\)`),
		dotLeaders:   regexp.MustCompile(`\.{3,}`),
		whitespace:   regexp.MustCompile(`\s+`),
		parenNumbers: regexp.MustCompile(`\((\d{1,3}(?:,\d{3})*(?:\.\d+)?)\)`),
		dateFormats:  regexp.MustCompile(`\b(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})\b`),
		thousandSep:  regexp.MustCompile(`(\d),(\d{3})`),
		decimalGuard: regexp.MustCompile(`(\d)\.(\d)`),
		nonCanonical: regexp.MustCompile(`[^a-z0-9\s.\-]`),
		tokenClean:   regexp.MustCompile(`[^a-z0-9]`),
		signedNumber: regexp.MustCompile(`(^|\s)(\d+(?:\.\d+)?)`),
	}
}

// Preprocess executes the full pipeline on a single raw line.
// The pipeline is pure: identical input yields identical output.
func (n *Normalizer) Preprocess(text string, lineNumber int) Result {
	original := strings.TrimSpace(text)
	removed := map[string][]string{}

	// Sign must be read off the raw text: parenthetical numbers and leading
	// markers are destroyed by later steps.
	sign := n.DetectSign(original)
	if sign == -1 {
		removed["sign_indicators"] = append(removed["sign_indicators"], "negative_indicator")
	}

	cleaned, noteRefs := n.stripNoteReferences(original)
	for _, ref := range noteRefs {
		if strings.Contains(strings.ToLower(ref), "schedule") {
			removed["schedules"] = append(removed["schedules"], ref)
		} else {
			removed["notes"] = append(removed["notes"], ref)
		}
	}

	cleaned = n.cleanFormatting(cleaned)

	cleaned, converted := n.convertParentheticalNumbers(cleaned)
	removed["numbers"] = append(removed["numbers"], converted...)

	cleaned, abbrs := n.expandAbbreviations(cleaned)

	canonical := n.Canonicalize(cleaned)

	canonical, dates := n.normalizeDates(canonical)
	removed["dates"] = append(removed["dates"], dates...)

	canonical = n.normalizeNumbers(canonical)

	if sign == -1 {
		canonical = n.applySignToNumbers(canonical)
	}

	return Result{
		Original:       original,
		Cleaned:        cleaned,
		Canonical:      canonical,
		SignMultiplier: sign,
		Abbreviations:  abbrs,
		Removed:        removed,
		LineNumber:     lineNumber,
		OriginalLen:    len(original),
		CleanedLen:     len(cleaned),
		CanonicalLen:   len(canonical),
	}
}

// DetectSign reports -1 when a line carries a negative convention (leading
// "less:", credit markers, or a parenthesized number) and 1 otherwise.
func (n *Normalizer) DetectSign(text string) int {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, ind := range signIndicators {
		if !strings.HasPrefix(lower, ind.prefix) {
			continue
		}
		rest := lower[len(ind.prefix):]
		// Alphabetic markers must end at a word boundary so "creditors"
		// does not read as "credit".
		if isAlpha(ind.prefix) && rest != "" && !strings.ContainsAny(rest[:1], " :\t") {
			continue
		}
		return ind.multiplier
	}

	// "- (" prefix form, e.g. "- (impairment reversal)".
	if strings.HasPrefix(lower, "-") && strings.HasPrefix(strings.TrimSpace(lower[1:]), "(") {
		return -1
	}

	if n.parenNumbers.MatchString(text) {
		return -1
	}
	return 1
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// stripNoteReferences removes note/schedule citations, returning what was cut.
func (n *Normalizer) stripNoteReferences(text string) (string, []string) {
	matches := n.noteRefs.FindAllString(text, -1)
	cleaned := n.noteRefs.ReplaceAllString(text, "")
	var refs []string
	for _, m := range matches {
		refs = append(refs, strings.TrimSpace(m))
	}
	return cleaned, refs
}

// cleanFormatting lowercases and collapses dot leaders and runs of whitespace.
func (n *Normalizer) cleanFormatting(text string) string {
	text = strings.ToLower(text)
	text = n.dotLeaders.ReplaceAllString(text, " ")
	text = n.whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// convertParentheticalNumbers rewrites "(1,234)" as "-1234".
func (n *Normalizer) convertParentheticalNumbers(text string) (string, []string) {
	var converted []string
	result := n.parenNumbers.ReplaceAllStringFunc(text, func(m string) string {
		inner := n.parenNumbers.FindStringSubmatch(m)[1]
		converted = append(converted, inner)
		return "-" + strings.ReplaceAll(inner, ",", "")
	})
	return result, converted
}

// expandAbbreviations expands multi-word abbreviations first, then each token
// against the single-token table. Returns the abbreviations that fired.
func (n *Normalizer) expandAbbreviations(text string) (string, []string) {
	var detected []string

	for _, rule := range n.multiWord {
		if rule.pattern.MatchString(text) {
			detected = append(detected, rule.abbr)
			text = rule.pattern.ReplaceAllString(text, rule.expansion)
		}
	}

	words := strings.Fields(text)
	expanded := make([]string, 0, len(words))
	for _, word := range words {
		clean := n.tokenClean.ReplaceAllString(strings.ToLower(word), "")
		if exp, ok := n.abbr.Single[clean]; ok {
			detected = append(detected, clean)
			expanded = append(expanded, exp)
		} else {
			expanded = append(expanded, word)
		}
	}
	return strings.Join(expanded, " "), detected
}

// Canonicalize produces the canonical matching form: NFKD-normalized,
// lowercase, "&" mapped to "and", separators mapped to space, everything
// else non-alphanumeric stripped (dashes and periods survive for dates and
// decimals), whitespace collapsed. Canonicalize is idempotent.
func (n *Normalizer) Canonicalize(text string) string {
	text = norm.NFKD.String(text)
	text = strings.ToLower(text)

	replacer := strings.NewReplacer(
		"‘", "'", "’", "'", "“", `"`, "”", `"`,
		"–", " ", "—", " ", "−", " ",
		" ", " ", " ", " ", " ", " ",
		"&", " and ",
		"/", " ",
		"_", " ",
	)
	text = replacer.Replace(text)

	text = n.nonCanonical.ReplaceAllString(text, "")
	text = n.whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// normalizeDates rewrites d-m-y forms to ISO yyyy-mm-dd. Two-digit years
// pivot at 50: 50-99 are 19xx, 00-49 are 20xx.
func (n *Normalizer) normalizeDates(text string) (string, []string) {
	var normalized []string
	result := n.dateFormats.ReplaceAllStringFunc(text, func(m string) string {
		parts := n.dateFormats.FindStringSubmatch(m)
		day, _ := strconv.Atoi(parts[1])
		month, _ := strconv.Atoi(parts[2])
		yearStr := parts[3]

		if len(yearStr) == 2 {
			y, _ := strconv.Atoi(yearStr)
			if y >= 50 {
				yearStr = "19" + yearStr
			} else {
				yearStr = "20" + yearStr
			}
		}
		year, _ := strconv.Atoi(yearStr)

		if !validDate(year, month, day) {
			return m
		}
		iso := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
		normalized = append(normalized, iso)
		return iso
	})
	return result, normalized
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month && t.Year() == year
}

// normalizeNumbers strips thousand-group separators, looping so regional
// groupings like 1,00,000 collapse fully. Decimal points are preserved.
func (n *Normalizer) normalizeNumbers(text string) string {
	const guard = "\x00DECIMAL\x00"
	text = n.decimalGuard.ReplaceAllString(text, "${1}"+guard+"${2}")

	for {
		next := n.thousandSep.ReplaceAllString(text, "${1}${2}")
		if next == text {
			break
		}
		text = next
	}

	return strings.ReplaceAll(text, guard, ".")
}

// applySignToNumbers prefixes unsigned numbers with a minus when the line's
// sign convention is negative.
func (n *Normalizer) applySignToNumbers(text string) string {
	return n.signedNumber.ReplaceAllString(text, "${1}-${2}")
}

// CleanNumeric parses a raw value string, handling parenthetical negatives
// and thousand separators. Returns the absolute value and a ±1 multiplier.
func (n *Normalizer) CleanNumeric(value string) (float64, int) {
	if m := n.parenNumbers.FindStringSubmatch(value); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, 1
		}
		return v, -1
	}

	trimmed := strings.TrimSpace(value)
	neg := strings.HasPrefix(trimmed, "-")
	clean := strings.NewReplacer(",", "", "-", "", " ", "").Replace(trimmed)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, 1
	}
	if neg {
		return v, -1
	}
	return v, 1
}
