package classification

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"guard_server/core/domain"
)

// =============================================================================
// Remote Response Decoding
// =============================================================================

// attributeAliases maps provider attribute names onto our categories.
var attributeAliases = map[string]domain.Category{
	"THREAT":            domain.CategoryViolence,
	"TOXICITY":          domain.CategoryViolence,
	"SEVERE_TOXICITY":   domain.CategoryViolence,
	"SEXUALLY_EXPLICIT": domain.CategorySexual,
	"INSULT":            domain.CategoryFamilyRestricted,
	"PROFANITY":         domain.CategoryFamilyRestricted,
}

// CategoryForName resolves a provider label to a category. Unknown names are
// lower-cased and kept so they can still be enabled explicitly.
func CategoryForName(name string) domain.Category {
	if c, ok := attributeAliases[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return c
	}
	if c, ok := domain.ParseCategory(name); ok {
		return c
	}
	return domain.Category(strings.ToLower(strings.TrimSpace(name)))
}

// flexScore decodes a bare number, a numeric string, {"value": n},
// {"summaryScore": {"value": n}} or {"score": {"value": n}}. Anything else is 0.
type flexScore float64

func (f *flexScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*f = 0
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexScore(v)
		}
		return nil
	case '{':
		var nested struct {
			Value        *flexScore `json:"value"`
			SummaryScore *flexScore `json:"summaryScore"`
			Score        *flexScore `json:"score"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil
		}
		switch {
		case nested.SummaryScore != nil:
			*f = *nested.SummaryScore
		case nested.Score != nil:
			*f = *nested.Score
		case nested.Value != nil:
			*f = *nested.Value
		}
		return nil
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err == nil {
			*f = flexScore(v)
		}
		return nil
	}
}

type labeledScore struct {
	Label    string    `json:"label"`
	Category string    `json:"category"`
	Score    flexScore `json:"score"`
}

func (l labeledScore) name() string {
	if l.Label != "" {
		return l.Label
	}
	return l.Category
}

type remoteEnvelope struct {
	Labels          []string             `json:"labels"`
	Scores          json.RawMessage      `json:"scores"`
	AttributeScores map[string]flexScore `json:"attributeScores"`
	Results         []labeledScore       `json:"results"`
}

// DecodeRemoteLabels converts a provider body into labels.
//
// A body that is not JSON returns ErrTransportFailure. A JSON body without
// any recognised score collection returns ErrMalformedResponse. Scores are
// clamped, and repeated categories keep their highest score.
func DecodeRemoteLabels(body []byte) ([]domain.Label, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, fmt.Errorf("%w: undecodable response body", domain.ErrTransportFailure)
	}

	acc := newLabelAccumulator()
	found, err := decodeInto(acc, body, 0)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Label{}, domain.ErrMalformedResponse
	}
	return acc.labels(), nil
}

func decodeInto(acc *labelAccumulator, body []byte, depth int) (bool, error) {
	if depth > 2 {
		return false, nil
	}

	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
		}
		found := false
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 {
				continue
			}
			if item[0] == '[' {
				ok, err := decodeInto(acc, item, depth+1)
				if err != nil {
					return false, err
				}
				found = found || ok
				continue
			}
			if item[0] != '{' {
				continue
			}
			var ls labeledScore
			if err := json.Unmarshal(item, &ls); err == nil && ls.name() != "" {
				acc.add(ls.name(), float64(ls.Score))
				found = true
				continue
			}
			ok, err := decodeInto(acc, item, depth+1)
			if err != nil {
				return false, err
			}
			found = found || ok
		}
		return found, nil

	case '{':
		var env remoteEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
		}
		found := false

		scores := bytes.TrimSpace(env.Scores)
		if len(scores) > 0 {
			switch scores[0] {
			case '[':
				var list []flexScore
				if err := json.Unmarshal(scores, &list); err == nil {
					for i, name := range env.Labels {
						if i < len(list) {
							acc.add(name, float64(list[i]))
						}
					}
					found = len(env.Labels) > 0
				}
			case '{':
				var byName map[string]flexScore
				if err := json.Unmarshal(scores, &byName); err == nil {
					for name, v := range byName {
						acc.add(name, float64(v))
					}
					found = true
				}
			}
		}
		for name, v := range env.AttributeScores {
			acc.add(name, float64(v))
			found = true
		}
		for _, ls := range env.Results {
			if ls.name() != "" {
				acc.add(ls.name(), float64(ls.Score))
				found = true
			}
		}
		if env.AttributeScores != nil || env.Results != nil {
			found = true
		}
		return found, nil
	}
	return false, nil
}

type labelAccumulator struct {
	order  []domain.Category
	scores map[domain.Category]float64
}

func newLabelAccumulator() *labelAccumulator {
	return &labelAccumulator{scores: make(map[domain.Category]float64)}
}

func (a *labelAccumulator) add(name string, score float64) {
	if strings.TrimSpace(name) == "" {
		return
	}
	cat := CategoryForName(name)
	score = domain.ClampScore(score)
	prev, ok := a.scores[cat]
	if !ok {
		a.order = append(a.order, cat)
		a.scores[cat] = score
		return
	}
	if score > prev {
		a.scores[cat] = score
	}
}

func (a *labelAccumulator) labels() []domain.Label {
	out := make([]domain.Label, 0, len(a.order))
	for _, c := range a.order {
		out = append(out, domain.Label{Category: c, Score: a.scores[c]})
	}
	return out
}
