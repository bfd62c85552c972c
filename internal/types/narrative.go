package types

import (
	"encoding/json"
	"strings"
)

// The inference model returns themes and risk indicators either as bare
// strings or as structured objects depending on the prompt revision.
// Both shapes are normalized here, at the ingestion boundary, so nothing
// downstream ever branches on the raw form.

type Theme struct {
	Term   string   `json:"term"`
	Weight *float64 `json:"weight,omitempty"`
}

func (t *Theme) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Term = strings.TrimSpace(s)
		t.Weight = nil
		return nil
	}
	type themeObject Theme
	var obj themeObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Term = strings.TrimSpace(obj.Term)
	t.Weight = obj.Weight
	return nil
}

type RiskIndicator struct {
	Term     string `json:"term"`
	Type     string `json:"type,omitempty"`
	Severity string `json:"severity,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (r *RiskIndicator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Term = strings.TrimSpace(s)
		r.Type, r.Severity, r.Detail = "", "", ""
		return nil
	}
	type riskObject RiskIndicator
	var obj riskObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = RiskIndicator(obj)
	return nil
}

// ThemeTerms returns the deduplicated set of non-empty terms, lowercased
// so set comparisons ignore the model's inconsistent casing.
func ThemeTerms(themes []Theme) map[string]bool {
	out := make(map[string]bool, len(themes))
	for _, t := range themes {
		if term := strings.ToLower(t.Term); term != "" {
			out[term] = true
		}
	}
	return out
}

// ThemeWeights maps each lowercased term to its weight; terms without a
// weight are absent from the result.
func ThemeWeights(themes []Theme) map[string]float64 {
	out := make(map[string]float64, len(themes))
	for _, t := range themes {
		if term := strings.ToLower(t.Term); term != "" && t.Weight != nil {
			out[term] = *t.Weight
		}
	}
	return out
}
