// Package hierarchy provides the static relationship tables between financial
// terms: synonym groups, the parent-child forest, and cross-standard
// equivalences. Tables are loaded once, validated, and read-only afterwards.
package hierarchy

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"finmatch/pkg/core/terminology"
)

// SynonymGroup ties a canonical term key to interchangeable labels.
type SynonymGroup struct {
	Canonical string   `yaml:"canonical"`
	Members   []string `yaml:"members"`
}

// Edge declares one parent and its direct children in the forest.
type Edge struct {
	Parent   string   `yaml:"parent"`
	Children []string `yaml:"children"`
}

// StandardMapping links one Ind AS standard to its US GAAP and IFRS
// counterparts and the term keys governed by it.
type StandardMapping struct {
	IndAS string   `yaml:"indas"`
	GAAP  []string `yaml:"gaap"`
	IFRS  []string `yaml:"ifrs"`
	Terms []string `yaml:"terms"`
}

// Relationships is the raw table file before validation.
type Relationships struct {
	Synonyms  []SynonymGroup    `yaml:"synonyms"`
	Hierarchy []Edge            `yaml:"hierarchy"`
	Standards []StandardMapping `yaml:"standards"`
}

//go:embed relationships.yaml
var defaultRelationshipsYAML []byte

// Mapper answers relationship queries. Immutable after construction and safe
// for concurrent use.
type Mapper struct {
	groupOf  map[string]*SynonymGroup
	parentOf map[string]string
	children map[string][]string
	byTerm   map[string][]StandardMapping
}

// DefaultMapper loads the embedded relationship tables.
func DefaultMapper() (*Mapper, error) {
	return LoadMapper(strings.NewReader(string(defaultRelationshipsYAML)))
}

// LoadMapper parses and validates relationship tables from YAML.
func LoadMapper(r io.Reader) (*Mapper, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading relationships: %w", err)
	}
	var rel Relationships
	if err := yaml.Unmarshal(raw, &rel); err != nil {
		return nil, fmt.Errorf("%w: parsing relationships: %v", terminology.ErrData, err)
	}
	return NewMapper(rel)
}

// NewMapper validates the tables and builds the reverse lookup maps. The
// hierarchy must form a forest: one parent per child and no cycles.
func NewMapper(rel Relationships) (*Mapper, error) {
	m := &Mapper{
		groupOf:  make(map[string]*SynonymGroup),
		parentOf: make(map[string]string),
		children: make(map[string][]string),
		byTerm:   make(map[string][]StandardMapping),
	}

	for i := range rel.Synonyms {
		g := &rel.Synonyms[i]
		if g.Canonical == "" {
			return nil, fmt.Errorf("%w: synonym group %d has no canonical key", terminology.ErrData, i)
		}
		for _, key := range append([]string{g.Canonical}, g.Members...) {
			if prev, dup := m.groupOf[key]; dup && prev != g {
				return nil, fmt.Errorf("%w: term %q appears in two synonym groups", terminology.ErrData, key)
			}
			m.groupOf[key] = g
		}
	}

	for _, e := range rel.Hierarchy {
		if e.Parent == "" {
			return nil, fmt.Errorf("%w: hierarchy edge has no parent", terminology.ErrData)
		}
		for _, child := range e.Children {
			if prev, dup := m.parentOf[child]; dup {
				return nil, fmt.Errorf("%w: term %q has two parents (%q, %q)",
					terminology.ErrData, child, prev, e.Parent)
			}
			m.parentOf[child] = e.Parent
			m.children[e.Parent] = append(m.children[e.Parent], child)
		}
	}
	if err := m.checkAcyclic(); err != nil {
		return nil, err
	}

	for _, s := range rel.Standards {
		for _, term := range s.Terms {
			m.byTerm[term] = append(m.byTerm[term], s)
		}
	}

	return m, nil
}

// checkAcyclic walks every node to the root; a forest walk that revisits a
// node has hit a cycle.
func (m *Mapper) checkAcyclic() error {
	for start := range m.parentOf {
		seen := map[string]bool{start: true}
		for cur := start; ; {
			parent, ok := m.parentOf[cur]
			if !ok {
				break
			}
			if seen[parent] {
				return fmt.Errorf("%w: hierarchy cycle through %q", terminology.ErrData, parent)
			}
			seen[parent] = true
			cur = parent
		}
	}
	return nil
}

// Synonyms returns the other terms in the key's synonym group, in table order.
func (m *Mapper) Synonyms(key string) []string {
	g, ok := m.groupOf[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.Members))
	for _, s := range append([]string{g.Canonical}, g.Members...) {
		if s != key {
			out = append(out, s)
		}
	}
	return out
}

// Canonical returns the canonical key for a synonym, or "" when unknown.
func (m *Mapper) Canonical(synonym string) string {
	if g, ok := m.groupOf[synonym]; ok {
		return g.Canonical
	}
	return ""
}

// Children returns the direct children of a parent term.
func (m *Mapper) Children(parent string) []string {
	return m.children[parent]
}

// Parent returns the parent of a term and whether one exists.
func (m *Mapper) Parent(child string) (string, bool) {
	p, ok := m.parentOf[child]
	return p, ok
}

// Ancestors returns the chain of parents from immediate parent to root.
func (m *Mapper) Ancestors(key string) []string {
	var out []string
	for {
		parent, ok := m.parentOf[key]
		if !ok {
			return out
		}
		out = append(out, parent)
		key = parent
	}
}

// StandardsFor returns the cross-standard mappings that govern a term.
func (m *Mapper) StandardsFor(term string) []StandardMapping {
	return m.byTerm[term]
}

// Equivalents returns the equivalent standard references for a term in the
// target standard family ("gaap" or "ifrs").
func (m *Mapper) Equivalents(term, target string) []string {
	var out []string
	for _, s := range m.byTerm[term] {
		switch target {
		case "gaap":
			out = append(out, s.GAAP...)
		case "ifrs":
			out = append(out, s.IFRS...)
		}
	}
	return out
}

// PreferChild reports whether a matched child term should displace its
// matched parent on the same line. Lines that literally read "total"
// legitimately refer to the aggregate, so the parent survives there.
func (m *Mapper) PreferChild(child, parent, lineText string) bool {
	actual, ok := m.parentOf[child]
	if !ok || actual != parent {
		return false
	}
	if strings.Contains(strings.ToLower(lineText), "total") {
		return false
	}
	return true
}

// Specificity scores how specific a term is: deeper nodes and leaves score
// higher.
func (m *Mapper) Specificity(key string) int {
	score := len(m.Ancestors(key)) * 10
	if len(m.children[key]) == 0 {
		score += 5
	}
	return score
}

// FindRelated performs a bounded breadth-first walk over synonym, parent,
// and child edges. The result is sorted so traversal order never leaks.
func (m *Mapper) FindRelated(key string, maxDistance int) []string {
	type node struct {
		key  string
		dist int
	}

	visited := map[string]bool{key: true}
	var related []string
	queue := []node{{key, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.dist >= maxDistance {
			continue
		}

		var neighbors []string
		neighbors = append(neighbors, m.Synonyms(cur.key)...)
		if parent, ok := m.parentOf[cur.key]; ok {
			neighbors = append(neighbors, parent)
		}
		neighbors = append(neighbors, m.children[cur.key]...)

		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			related = append(related, n)
			queue = append(queue, node{n, cur.dist + 1})
		}
	}

	sort.Strings(related)
	return related
}
