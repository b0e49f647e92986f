package xref

import (
	"fmt"
	"strings"

	"finmatch/pkg/core/match"
)

// Issue severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Issue is one inter-statement inconsistency.
type Issue struct {
	Type     string  `json:"type"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	TermKey  string  `json:"term_key,omitempty"`
	Expected float64 `json:"expected,omitempty"`
	Actual   float64 `json:"actual,omitempty"`
}

// Terms that belong on the balance sheet; seeing them among income-statement
// matches is a classification smell.
var balanceSheetOnly = []string{
	"total_assets",
	"property_plant_equipment",
	"inventories",
}

// ValidateConsistency cross-checks reconciling figures between statements:
// revenue between income statement and cash flow within FlowTolerance, cash
// between balance sheet and cash flow within BalanceTolerance, and
// balance-sheet terms leaking into income-statement matches.
func (r *Resolver) ValidateConsistency(balanceSheet, incomeStatement, cashFlow []match.MatchResult) []Issue {
	var issues []Issue

	isRevenue, isOK := r.findTermValue(incomeStatement, "total_revenue")
	cfRevenue, cfOK := r.findTermValue(cashFlow, "total_revenue")
	if isOK && cfOK {
		base := isRevenue
		if base < 1 {
			base = 1
		}
		diff := isRevenue - cfRevenue
		if diff < 0 {
			diff = -diff
		}
		if diff/base > r.FlowTolerance {
			issues = append(issues, Issue{
				Type:     "revenue_mismatch",
				Severity: SeverityWarning,
				Message: fmt.Sprintf("revenue mismatch: income statement (%v) vs cash flow (%v)",
					isRevenue, cfRevenue),
				Expected: isRevenue,
				Actual:   cfRevenue,
			})
		}
	}

	bsCash, bsOK := r.findTermValue(balanceSheet, "cash_and_equivalents")
	cfCash, cfEndOK := r.findTermValue(cashFlow, "cash_at_end")
	if bsOK && cfEndOK {
		diff := bsCash - cfCash
		if diff < 0 {
			diff = -diff
		}
		if diff > r.BalanceTolerance {
			issues = append(issues, Issue{
				Type:     "cash_mismatch",
				Severity: SeverityError,
				Message: fmt.Sprintf("cash mismatch: balance sheet (%v) vs cash flow (%v)",
					bsCash, cfCash),
				Expected: bsCash,
				Actual:   cfCash,
			})
		}
	}

	for _, m := range incomeStatement {
		for _, bsKey := range balanceSheetOnly {
			if m.TermKey != bsKey {
				continue
			}
			issues = append(issues, Issue{
				Type:     "wrong_section",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("balance sheet term %q found in income statement", m.TermLabel),
				TermKey:  m.TermKey,
			})
		}
	}

	return issues
}

// findTermValue locates the first match for a term key and parses the last
// numeric figure on its line, honoring the line's sign convention.
func (r *Resolver) findTermValue(matches []match.MatchResult, termKey string) (float64, bool) {
	for _, m := range matches {
		if !strings.Contains(strings.ToLower(m.TermKey), termKey) {
			continue
		}
		nums := r.numbers.FindAllString(m.OriginalText, -1)
		if len(nums) == 0 {
			continue
		}
		value, sign := r.normalizer.CleanNumeric(nums[len(nums)-1])
		if value == 0 && nums[len(nums)-1] != "0" {
			continue
		}
		return value * float64(sign), true
	}
	return 0, false
}
