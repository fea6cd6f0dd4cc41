// Package dictionary implements the data-dictionary port over a YAML
// catalogue of field definitions. Exact lookups are case-insensitive on the
// field name; when nothing matches, a token-overlap similarity search over
// names and descriptions ranks the closest fields.
package dictionary

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/epivigil/epivigil/pkg/domain"
)

type catalogueEntry struct {
	Name        string            `yaml:"name"`
	DisplayName string            `yaml:"display_name"`
	Description string            `yaml:"description"`
	Values      map[string]string `yaml:"values"`
}

type catalogue struct {
	Fields []catalogueEntry `yaml:"fields"`
}

// Dictionary holds the loaded catalogue. Safe for concurrent reads.
type Dictionary struct {
	fields []domain.FieldDef
	byName map[string]domain.FieldDef
}

// Load reads a YAML catalogue from disk.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary file: %w", err)
	}
	return Parse(data)
}

// Parse builds a dictionary from YAML bytes.
func Parse(data []byte) (*Dictionary, error) {
	var cat catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary yaml: %w", err)
	}

	d := &Dictionary{byName: make(map[string]domain.FieldDef, len(cat.Fields))}
	for _, e := range cat.Fields {
		def := domain.FieldDef{
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Description: e.Description,
			Values:      e.Values,
		}
		d.fields = append(d.fields, def)
		d.byName[strings.ToUpper(e.Name)] = def
	}
	return d, nil
}

// Lookup returns the exact field definition, if present.
func (d *Dictionary) Lookup(_ context.Context, field string) (domain.FieldDef, bool, error) {
	def, ok := d.byName[strings.ToUpper(strings.TrimSpace(field))]
	return def, ok, nil
}

// Search ranks fields by token overlap between the query and each field's
// name, display name and description, returning the top k with scores.
func (d *Dictionary) Search(_ context.Context, query string, k int) ([]domain.FieldDef, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		def   domain.FieldDef
		score float64
	}
	var matches []scored
	for _, def := range d.fields {
		fieldTokens := tokenize(def.Name + " " + def.DisplayName + " " + def.Description)
		score := overlap(queryTokens, fieldTokens)
		if score > 0 {
			matches = append(matches, scored{def: def, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > k {
		matches = matches[:k]
	}

	out := make([]domain.FieldDef, 0, len(matches))
	for _, m := range matches {
		def := m.def
		def.Similarity = m.score
		out = append(out, def)
	}
	return out, nil
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && !(r >= 'à' && r <= 'ÿ')
	}) {
		if len(t) >= 2 {
			tokens[t] = struct{}{}
		}
	}
	return tokens
}

// overlap is the share of query tokens present in the field tokens.
func overlap(query, field map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := field[t]; ok {
			hits++
			continue
		}
		// Prefix match tolerates inflection (vacina vs vacinação).
		for ft := range field {
			if strings.HasPrefix(ft, t) || strings.HasPrefix(t, ft) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(query))
}
