package domain

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

const (
	DefaultThreshold = 0.7
	DefaultMaxLabels = 3
)

// CategorySet is the set of enabled categories.
type CategorySet map[Category]bool

// NewCategorySet builds a set from the given categories.
func NewCategorySet(categories ...Category) CategorySet {
	set := make(CategorySet, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return set
}

// Has reports whether c is enabled.
func (s CategorySet) Has(c Category) bool {
	return s[c]
}

// List returns the enabled categories, known ones in canonical order first.
func (s CategorySet) List() []Category {
	out := make([]Category, 0, len(s))
	seen := make(map[Category]bool, len(s))
	for _, c := range AllCategories {
		if s[c] {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []Category
	for c, on := range s {
		if on && !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// MarshalJSON encodes the set as an array of names.
func (s CategorySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON accepts either ["violence", ...] or {"violence": true, ...}.
func (s *CategorySet) UnmarshalJSON(data []byte) error {
	set := make(CategorySet)

	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		for _, n := range names {
			set[normalizeCategory(n)] = true
		}
		*s = set
		return nil
	}

	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("enabledCategories must be an array or a map of booleans: %w", err)
	}
	for n, on := range flags {
		if on {
			set[normalizeCategory(n)] = true
		}
	}
	*s = set
	return nil
}

func normalizeCategory(name string) Category {
	if c, ok := ParseCategory(name); ok {
		return c
	}
	return Category(name)
}

// Settings is the policy snapshot the decision step reads.
type Settings struct {
	Enabled           bool        `json:"enabled"`
	EnabledCategories CategorySet `json:"enabledCategories"`
	Threshold         float64     `json:"threshold"`
	UseRemote         bool        `json:"useRemote"`
	APIToken          string      `json:"apiToken"`
}

// DefaultSettings enables every category at threshold 0.7 with the heuristic strategy.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		EnabledCategories: NewCategorySet(AllCategories...),
		Threshold:         DefaultThreshold,
		UseRemote:         false,
		APIToken:          "",
	}
}

// IsCategoryEnabled reports whether decisions may act on c.
func (s Settings) IsCategoryEnabled(c Category) bool {
	return s.EnabledCategories.Has(c)
}

// HasRemote reports whether the remote strategy can be used.
func (s Settings) HasRemote() bool {
	return s.UseRemote && s.APIToken != ""
}

// Clone returns a copy that shares nothing with s.
func (s Settings) Clone() Settings {
	out := s
	out.EnabledCategories = make(CategorySet, len(s.EnabledCategories))
	for c, on := range s.EnabledCategories {
		out.EnabledCategories[c] = on
	}
	return out
}

// MaskedToken replaces a non-empty API token in client-facing copies.
const MaskedToken = "****"

// Masked returns a copy safe to show to clients.
func (s Settings) Masked() Settings {
	out := s.Clone()
	if out.APIToken != "" {
		out.APIToken = MaskedToken
	}
	return out
}

// Validate checks ranges.
func (s Settings) Validate() error {
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("threshold %.3f out of range [0,1]", s.Threshold)
	}
	return nil
}

// settingsWire lists every accepted key. The snake_case names are the ones
// the browser extension stored.
type settingsWire struct {
	Enabled          *bool        `json:"enabled"`
	ExtensionEnabled *bool        `json:"extensionEnabled"`
	Categories       *CategorySet `json:"enabledCategories"`
	LegacyCategories *CategorySet `json:"enabled_categories"`
	Threshold        *float64     `json:"threshold"`
	LegacyThreshold  *float64     `json:"confidence_threshold"`
	UseRemote        *bool        `json:"useRemote"`
	LegacyUseRemote  *bool        `json:"use_api"`
	APIToken         *string      `json:"apiToken"`
	LegacyAPIToken   *string      `json:"hf_token"`
}

// UnmarshalJSON applies only the keys present in data on top of the
// current value, so decoding into DefaultSettings() fills the gaps with defaults.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var w settingsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if v := firstBool(w.Enabled, w.ExtensionEnabled); v != nil {
		s.Enabled = *v
	}
	if w.Categories != nil {
		s.EnabledCategories = *w.Categories
	} else if w.LegacyCategories != nil {
		s.EnabledCategories = *w.LegacyCategories
	}
	if w.Threshold != nil {
		s.Threshold = *w.Threshold
	} else if w.LegacyThreshold != nil {
		s.Threshold = *w.LegacyThreshold
	}
	if v := firstBool(w.UseRemote, w.LegacyUseRemote); v != nil {
		s.UseRemote = *v
	}
	if w.APIToken != nil {
		s.APIToken = *w.APIToken
	} else if w.LegacyAPIToken != nil {
		s.APIToken = *w.LegacyAPIToken
	}
	if s.EnabledCategories == nil {
		s.EnabledCategories = make(CategorySet)
	}
	return nil
}

func firstBool(vals ...*bool) *bool {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
