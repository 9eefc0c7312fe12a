// Package platform maps transaction text to known gig-economy platforms.
package platform

import (
	"fmt"
	"strings"

	"github.com/Veraticus/gigproof/internal/model"
)

// Platform is a gig platform label and the keywords that identify it.
type Platform struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
}

// Table is an ordered list of platforms. Order is significant: when keywords
// of several platforms match, the earliest platform wins.
type Table struct {
	platforms []Platform
}

// NewTable builds an immutable table from the given platforms. Keywords are
// lower-cased once here so matching does not repeat the work.
func NewTable(platforms []Platform) (Table, error) {
	seen := make(map[string]bool, len(platforms))
	copied := make([]Platform, 0, len(platforms))

	for i, p := range platforms {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return Table{}, fmt.Errorf("platform at index %d has no name", i)
		}
		if seen[name] {
			return Table{}, fmt.Errorf("platform %q listed twice", name)
		}
		seen[name] = true

		keywords := make([]string, 0, len(p.Keywords))
		for _, kw := range p.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			return Table{}, fmt.Errorf("platform %q has no keywords", name)
		}

		copied = append(copied, Platform{Name: name, Keywords: keywords})
	}

	return Table{platforms: copied}, nil
}

// MustNewTable is NewTable for tables known to be valid at compile time.
func MustNewTable(platforms []Platform) Table {
	t, err := NewTable(platforms)
	if err != nil {
		panic(err)
	}
	return t
}

// Platforms returns a copy of the table's entries in order.
func (t Table) Platforms() []Platform {
	out := make([]Platform, len(t.platforms))
	for i, p := range t.platforms {
		out[i] = Platform{Name: p.Name, Keywords: append([]string(nil), p.Keywords...)}
	}
	return out
}

// Len returns the number of platforms in the table.
func (t Table) Len() int {
	return len(t.platforms)
}

// Matcher resolves text to the first matching platform in its table.
type Matcher struct {
	table Table
}

// NewMatcher creates a matcher over table.
func NewMatcher(table Table) *Matcher {
	return &Matcher{table: table}
}

// Match returns the first platform, in table order, with a keyword contained
// in text (case-insensitive). The second result is false when nothing matched.
func (m *Matcher) Match(text string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", false
	}

	for _, p := range m.table.platforms {
		for _, kw := range p.Keywords {
			if strings.Contains(normalized, kw) {
				return p.Name, true
			}
		}
	}

	return "", false
}

// MatchTransaction matches a transaction's description and merchant name.
func (m *Matcher) MatchTransaction(tx model.Transaction) *string {
	name, ok := m.Match(tx.MatchText())
	if !ok {
		return nil
	}
	return &name
}
