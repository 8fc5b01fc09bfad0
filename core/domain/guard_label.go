package domain

import "sort"

// Label is a (category, confidence) pair with the score kept in [0,1].
type Label struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"`
}

// NewLabel builds a label with its score clamped to [0,1].
func NewLabel(category Category, score float64) Label {
	return Label{Category: category, Score: ClampScore(score)}
}

// ClampScore bounds s to [0,1]. NaN maps to 0.
func ClampScore(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// SortLabels orders labels by descending score. Equal scores keep their input order.
func SortLabels(labels []Label) {
	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Score > labels[j].Score
	})
}

// Provenance records which strategy produced a result.
type Provenance string

const (
	ProvenanceNone      Provenance = "none"
	ProvenanceRemote    Provenance = "remote"
	ProvenanceHeuristic Provenance = "heuristic"
)

// ClassificationResult is an ordered label list plus its provenance.
// Values stored in the cache are never mutated; use Clone before handing one out.
type ClassificationResult struct {
	Labels     []Label    `json:"labels"`
	Provenance Provenance `json:"provenance"`
}

// EmptyResult is returned for skipped input.
func EmptyResult() ClassificationResult {
	return ClassificationResult{Labels: []Label{}, Provenance: ProvenanceNone}
}

// Clone returns a deep copy.
func (r ClassificationResult) Clone() ClassificationResult {
	labels := make([]Label, len(r.Labels))
	copy(labels, r.Labels)
	return ClassificationResult{Labels: labels, Provenance: r.Provenance}
}

// AboveThreshold returns the labels whose score is >= threshold, preserving order.
func (r ClassificationResult) AboveThreshold(threshold float64) []Label {
	out := make([]Label, 0, len(r.Labels))
	for _, l := range r.Labels {
		if l.Score >= threshold {
			out = append(out, l)
		}
	}
	return out
}
