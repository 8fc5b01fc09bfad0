package domain

import "strings"

// Category is a content risk category.
type Category string

const (
	CategoryMisinformation   Category = "misinformation"
	CategoryViolence         Category = "violence"
	CategorySexual           Category = "sexual"
	CategoryPolitics         Category = "politics"
	CategoryFamilyRestricted Category = "family-restricted"
)

// AllCategories is the fixed candidate set, in canonical order.
var AllCategories = []Category{
	CategoryMisinformation,
	CategoryViolence,
	CategorySexual,
	CategoryPolitics,
	CategoryFamilyRestricted,
}

// CategoryNames returns AllCategories as plain strings.
func CategoryNames() []string {
	names := make([]string, len(AllCategories))
	for i, c := range AllCategories {
		names[i] = string(c)
	}
	return names
}

// ParseCategory accepts a category name case-insensitively.
// Underscores are treated as hyphens so "family_restricted" is accepted.
func ParseCategory(s string) (Category, bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for _, c := range AllCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
