package classification

import (
	"testing"

	"guard_server/core/domain"
)

func settingsWith(threshold float64, cats ...domain.Category) domain.Settings {
	s := domain.DefaultSettings()
	s.Threshold = threshold
	s.EnabledCategories = domain.NewCategorySet(cats...)
	return s
}

func TestDecisionEngine_Decide(t *testing.T) {
	engine := NewDecisionEngine()

	tests := []struct {
		name     string
		labels   []domain.Label
		settings domain.Settings
		want     domain.Action
	}{
		{
			name: "highest qualifying score wins regardless of input order",
			labels: []domain.Label{
				{Category: domain.CategoryViolence, Score: 0.9},
				{Category: domain.CategoryPolitics, Score: 0.95},
			},
			settings: settingsWith(0.7, domain.CategoryViolence, domain.CategoryPolitics),
			want:     domain.Suppress(domain.CategoryPolitics, 0.95),
		},
		{
			name: "disabled top label is skipped",
			labels: []domain.Label{
				{Category: domain.CategoryPolitics, Score: 0.95},
				{Category: domain.CategoryViolence, Score: 0.8},
			},
			settings: settingsWith(0.7, domain.CategoryViolence),
			want:     domain.Suppress(domain.CategoryViolence, 0.8),
		},
		{
			name: "below threshold",
			labels: []domain.Label{
				{Category: domain.CategoryViolence, Score: 0.69},
			},
			settings: settingsWith(0.7, domain.CategoryViolence),
			want:     domain.NoAction(),
		},
		{
			name: "threshold is inclusive",
			labels: []domain.Label{
				{Category: domain.CategorySexual, Score: 0.7},
			},
			settings: settingsWith(0.7, domain.CategorySexual),
			want:     domain.Suppress(domain.CategorySexual, 0.7),
		},
		{
			name:     "no labels",
			labels:   nil,
			settings: domain.DefaultSettings(),
			want:     domain.NoAction(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Decide(tt.labels, tt.settings); got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecisionEngine_NothingEnabled(t *testing.T) {
	engine := NewDecisionEngine()
	labels := []domain.Label{
		{Category: domain.CategoryViolence, Score: 1},
		{Category: domain.CategoryPolitics, Score: 1},
		{Category: domain.CategorySexual, Score: 0.99},
	}

	settings := []domain.Settings{
		settingsWith(0),
		settingsWith(0.1, domain.CategoryMisinformation),
		settingsWith(0.5, domain.CategoryFamilyRestricted, domain.CategoryMisinformation),
	}
	for _, s := range settings {
		if got := engine.Decide(labels, s); got.IsSuppress() {
			t.Errorf("Decide() with %v enabled = %+v, want None", s.EnabledCategories.List(), got)
		}
	}
}

func TestDecisionEngine_DoesNotReorderInput(t *testing.T) {
	labels := []domain.Label{
		{Category: domain.CategoryViolence, Score: 0.1},
		{Category: domain.CategoryPolitics, Score: 0.9},
	}
	NewDecisionEngine().Decide(labels, domain.DefaultSettings())

	if labels[0].Category != domain.CategoryViolence {
		t.Error("Decide must not mutate the caller's slice")
	}
}
