package mongodb

import (
	"testing"
	"time"

	"guard_server/core/domain"
)

func TestDecisionDocument_RoundTrip(t *testing.T) {
	a := &DecisionAdapter{retention: time.Hour}
	result := domain.ClassificationResult{
		Labels:     []domain.Label{{Category: domain.CategoryViolence, Score: 0.8}},
		Provenance: domain.ProvenanceHeuristic,
	}
	rec := domain.NewDecisionRecord("u1", domain.Suppress(domain.CategoryViolence, 0.8), result, 0.7)

	doc := a.toDocument(rec)
	if !doc.ExpiresAt.Equal(rec.DecidedAt.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", doc.ExpiresAt)
	}

	back := doc.toDomain()
	if back.ID != rec.ID || back.UnitID != rec.UnitID || back.Action != rec.Action {
		t.Errorf("toDomain() = %+v, want %+v", back, rec)
	}
	if len(back.Labels) != 1 || back.Labels[0] != rec.Labels[0] {
		t.Errorf("labels = %v", back.Labels)
	}
}
