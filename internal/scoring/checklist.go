package scoring

import (
	"math"

	"github.com/opensource-finance/discern/internal/domain"
)

// ChecklistScorer turns weighted sign selections into a percentage of the
// catalog's total weight.
type ChecklistScorer struct{}

func (ChecklistScorer) Name() string { return StrategyChecklist }

// Evaluate scores the selected sign indices. Duplicate indices count once.
// The denominator is the weight of every sign, not only the selected ones.
func (ChecklistScorer) Evaluate(def *domain.PatternDefinition, in Input) (*domain.Verdict, error) {
	cfg, ok := def.Content.(*domain.ChecklistConfig)
	if !ok {
		return nil, mismatch(def, domain.ModeChecklist)
	}

	score := 0
	var warnings []string
	seen := make(map[int]struct{}, len(in.Selected))
	for _, i := range in.Selected {
		if i < 0 || i >= len(cfg.Signs) {
			return nil, domain.Invalid("selected", "index %d out of range [0,%d)", i, len(cfg.Signs))
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		score += cfg.Signs[i].Weight
		warnings = append(warnings, cfg.Signs[i].Text)
	}

	maxPossible := cfg.MaxWeight()
	pct := Percentage(score, maxPossible)

	v := &domain.Verdict{
		DefinitionID: def.ID,
		Strategy:     StrategyChecklist,
		Score:        score,
		Count:        len(warnings),
		Matched:      warnings,
		Checklist: &domain.ChecklistDetail{
			Percentage:  pct,
			MaxPossible: maxPossible,
			Warnings:    truncate(warnings, maxWarnings),
		},
	}
	if v.Matched == nil {
		v.Matched = []string{}
	}

	switch {
	case pct <= 20:
		v.Tier, v.Label, v.Description = domain.TierLow, "LOW CONCERN", "Few warning signs detected"
	case pct <= 50:
		v.Tier, v.Label, v.Description = domain.TierMedium, "MODERATE CONCERN", "Multiple warning signs present"
	default:
		v.Tier, v.Label, v.Description = domain.TierHigh, "HIGH ALERT", "Significant pattern detected"
	}

	v.Guidance = guidance(def, pct)
	v.Realities = realities(def, nil)

	return v, nil
}

// Percentage returns round(score/maxPossible*100), or 0 when maxPossible is 0.
func Percentage(score, maxPossible int) int {
	if maxPossible <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(maxPossible) * 100))
}

func guidance(def *domain.PatternDefinition, pct int) []string {
	var out []string
	switch {
	case pct > 50 && len(def.HighGuidance) > 0:
		out = append(out, def.HighGuidance...)
	case pct > 20 && len(def.MediumGuidance) > 0:
		out = append(out, def.MediumGuidance...)
	}
	out = append(out, def.DefaultGuidance...)
	return truncate(out, maxGuidance)
}
