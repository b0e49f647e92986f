// Package ingest turns raw statement documents (plain text, HTML, Markdown)
// into the ordered line slices the matching pipeline consumes.
package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// LinesFromText splits plain text into lines. Blank lines are preserved:
// note-section boundaries depend on them.
func LinesFromText(content string) []string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

// LinesFromHTML extracts one line per heading, paragraph, list item, and
// table row. Cells within a row are joined with single spaces so a statement
// row reads like its printed form.
func LinesFromHTML(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, p, li, tr").Each(func(_ int, sel *goquery.Selection) {
		var parts []string
		if sel.Is("tr") {
			sel.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				if t := collapse(cell.Text()); t != "" {
					parts = append(parts, t)
				}
			})
		} else if t := collapse(sel.Text()); t != "" {
			parts = append(parts, t)
		}

		if line := strings.Join(parts, " "); line != "" {
			lines = append(lines, line)
		}
	})
	return lines, nil
}

// LinesFromMarkdown extracts one line per heading, paragraph, and tight list
// entry from a Markdown document.
func LinesFromMarkdown(source []byte) []string {
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var lines []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			segments := n.Lines()
			var parts []string
			for i := 0; i < segments.Len(); i++ {
				seg := segments.At(i)
				if t := collapse(string(seg.Value(source))); t != "" {
					parts = append(parts, t)
				}
			}
			if line := strings.Join(parts, " "); line != "" {
				lines = append(lines, line)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return lines
}

// collapse trims a string and squeezes internal whitespace runs.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
