// Package xref extracts note and schedule citations from statement lines,
// links note references to their note-section bodies, and cross-checks
// figures between statements.
package xref

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"finmatch/pkg/core/match"
	"finmatch/pkg/core/normalize"
)

// CrossReference is one citation found in the document body.
type CrossReference struct {
	RefType    string `json:"ref_type"` // note | schedule
	RefNumber  string `json:"ref_number"`
	RefLabel   string `json:"ref_label"`
	SourceLine int    `json:"source_line"`
	SourceText string `json:"source_text"`
	Resolved   bool   `json:"resolved"`
	// Context carries the resolved note header once Resolved is set.
	Context string `json:"target_context,omitempty"`
}

// NoteSection is one "Note N ..." block with its body lines.
type NoteSection struct {
	Number    string              `json:"note_number"`
	Header    string              `json:"header"`
	StartLine int                 `json:"start_line"`
	EndLine   int                 `json:"end_line"`
	Content   []string            `json:"content"`
	Matches   []match.MatchResult `json:"extracted_terms,omitempty"`
}

// TermMatcher is the slice of the matching engine the resolver needs.
type TermMatcher interface {
	MatchDocument(ctx context.Context, lines []string, sectionType string) (*match.Session, error)
}

// Resolver holds the citation patterns. Immutable after construction.
type Resolver struct {
	notePatterns     []*regexp.Regexp
	schedulePatterns []*regexp.Regexp
	noteHeader       *regexp.Regexp
	numbers          *regexp.Regexp
	normalizer       *normalize.Normalizer

	// FlowTolerance is the relative tolerance for flow-figure checks.
	FlowTolerance float64
	// BalanceTolerance is the absolute tolerance for balance checks.
	BalanceTolerance float64
}

// NewResolver builds a resolver with the standard citation patterns.
func NewResolver() *Resolver {
	return &Resolver{
		notePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\(see\s+note\s*(?:no\.?)?\s*(\d+)\)`),
			regexp.MustCompile(`(?i)\(note\s*(?:no\.?)?\s*(\d+)\)`),
			regexp.MustCompile(`(?i)\bnote\s*(?:no\.?)?\s*(\d+)\b`),
			regexp.MustCompile(`(?i)\brefer\s+to\s+note\s*(?:no\.?)?\s*(\d+)\b`),
		},
		schedulePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\(see\s+schedule\s*([a-z0-9]+)\)`),
			regexp.MustCompile(`(?i)\(schedule\s*([a-z0-9]+)\)`),
			regexp.MustCompile(`(?i)\bschedule\s*([a-z0-9]+)\b`),
			regexp.MustCompile(`(?i)\bas\s+per\s+schedule\s*([a-z0-9]+)\b`),
		},
		noteHeader: regexp.MustCompile(`(?i)^(?:note|notes)\s*(?:no\.?)?\s*(\d+)[:\s.\-]*(.*)$`),
		numbers:    regexp.MustCompile(`\(?\d{1,3}(?:,\d{2,3})*(?:\.\d+)?\)?`),
		normalizer: normalize.NewNormalizer(nil),

		FlowTolerance:    0.05,
		BalanceTolerance: 0.01,
	}
}

// ExtractReferences scans every line for note and schedule citations,
// deduplicated by (type, number, source line). Line numbers are 1-based.
func (r *Resolver) ExtractReferences(lines []string) []CrossReference {
	type key struct {
		refType, number string
		line            int
	}
	seen := make(map[key]bool)
	var refs []CrossReference

	add := func(refType, number, label string, line int, text string) {
		k := key{refType, number, line}
		if seen[k] {
			return
		}
		seen[k] = true
		if len(text) > 100 {
			text = text[:100]
		}
		refs = append(refs, CrossReference{
			RefType:    refType,
			RefNumber:  number,
			RefLabel:   label,
			SourceLine: line,
			SourceText: text,
		})
	}

	for i, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		for _, p := range r.notePatterns {
			for _, m := range p.FindAllStringSubmatch(text, -1) {
				add("note", m[1], "Note "+m[1], i+1, text)
			}
		}
		for _, p := range r.schedulePatterns {
			for _, m := range p.FindAllStringSubmatch(text, -1) {
				num := strings.ToUpper(m[1])
				add("schedule", num, "Schedule "+num, i+1, text)
			}
		}
	}
	return refs
}

// ExtractNoteSections detects note headers and accumulates body lines until
// the next header or a blank line. Sections come back in document order.
func (r *Resolver) ExtractNoteSections(lines []string) []NoteSection {
	var notes []NoteSection
	var current *NoteSection

	flush := func(endLine int) {
		if current == nil {
			return
		}
		current.EndLine = endLine
		notes = append(notes, *current)
		current = nil
	}

	for i, line := range lines {
		text := strings.TrimSpace(line)

		if m := r.noteHeader.FindStringSubmatch(text); m != nil {
			flush(i)
			current = &NoteSection{
				Number:    m[1],
				Header:    strings.TrimSpace(m[2]),
				StartLine: i + 1,
				Content:   []string{text},
			}
			continue
		}

		if current == nil {
			continue
		}
		if text == "" {
			flush(i)
			continue
		}
		current.Content = append(current.Content, text)
	}
	flush(len(lines))

	return notes
}

// ResolveReferences extracts citations and note sections, then re-runs the
// matcher over each cited note's body. Every note citation whose number has
// a section ends up resolved; the rest stay unresolved.
func (r *Resolver) ResolveReferences(ctx context.Context, matcher TermMatcher, lines []string) ([]CrossReference, []NoteSection, error) {
	refs := r.ExtractReferences(lines)
	notes := r.ExtractNoteSections(lines)

	byNumber := make(map[string]*NoteSection, len(notes))
	for i := range notes {
		if _, dup := byNumber[notes[i].Number]; !dup {
			byNumber[notes[i].Number] = &notes[i]
		}
	}

	for i := range refs {
		ref := &refs[i]
		if ref.RefType != "note" {
			continue
		}
		note, ok := byNumber[ref.RefNumber]
		if !ok {
			continue
		}

		if note.Matches == nil {
			session, err := matcher.MatchDocument(ctx, note.Content, "notes")
			if err != nil {
				return nil, nil, fmt.Errorf("resolving note %s: %w", note.Number, err)
			}
			note.Matches = session.Results
		}

		ref.Context = note.Header
		ref.Resolved = true
	}

	return refs, notes, nil
}

// Report condenses extraction and resolution outcomes.
type Report struct {
	TotalReferences      int            `json:"total_references"`
	ResolvedReferences   int            `json:"resolved_references"`
	UnresolvedReferences int            `json:"unresolved_references"`
	ResolutionRate       float64        `json:"resolution_rate"`
	ByType               map[string]int `json:"by_type"`
	NotesExtracted       int            `json:"notes_extracted"`
}

// BuildReport summarizes a resolution pass.
func BuildReport(refs []CrossReference, notes []NoteSection) Report {
	rep := Report{
		TotalReferences: len(refs),
		ByType:          make(map[string]int),
		NotesExtracted:  len(notes),
	}
	for _, ref := range refs {
		rep.ByType[ref.RefType]++
		if ref.Resolved {
			rep.ResolvedReferences++
		}
	}
	rep.UnresolvedReferences = rep.TotalReferences - rep.ResolvedReferences
	if rep.TotalReferences > 0 {
		rep.ResolutionRate = float64(rep.ResolvedReferences) / float64(rep.TotalReferences)
	}
	return rep
}
