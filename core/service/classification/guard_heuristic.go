// Package classification implements the content classification strategies,
// the dispatcher that chooses between them and the decision policy.
package classification

import (
	"context"
	"strings"

	"guard_server/core/domain"
)

// =============================================================================
// Heuristic Keyword Classifier
// =============================================================================

// HeuristicClassifier scores categories by keyword hits. It is deterministic
// for fixed tables and never returns an error.
type HeuristicClassifier struct {
	tables []keywordTable
}

type keywordTable struct {
	category domain.Category
	keywords []string
}

// NewHeuristicClassifier builds a classifier over tables. A nil map uses
// DefaultKeywordTables.
func NewHeuristicClassifier(tables map[domain.Category][]string) *HeuristicClassifier {
	if tables == nil {
		tables = DefaultKeywordTables()
	}

	c := &HeuristicClassifier{}
	// canonical categories first so the output order is stable
	seen := make(map[domain.Category]bool, len(tables))
	for _, cat := range domain.AllCategories {
		if kws, ok := tables[cat]; ok {
			c.add(cat, kws)
			seen[cat] = true
		}
	}
	for cat, kws := range tables {
		if !seen[cat] {
			c.add(cat, kws)
		}
	}
	return c
}

func (c *HeuristicClassifier) add(cat domain.Category, keywords []string) {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	if len(kws) == 0 {
		return
	}
	c.tables = append(c.tables, keywordTable{category: cat, keywords: kws})
}

// Name returns the classifier name.
func (c *HeuristicClassifier) Name() string {
	return "heuristic"
}

// Classify returns one label per category with at least one keyword hit.
func (c *HeuristicClassifier) Classify(_ context.Context, text string) ([]domain.Label, error) {
	return c.Score(text), nil
}

// Score is Classify without the context and error.
func (c *HeuristicClassifier) Score(text string) []domain.Label {
	lower := strings.ToLower(text)
	labels := make([]domain.Label, 0, len(c.tables))

	for _, t := range c.tables {
		hits := 0
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		labels = append(labels, domain.NewLabel(t.category, float64(hits)/float64(len(t.keywords))))
	}
	return labels
}
