package scoring

import (
	"fmt"

	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/lexical"
)

// TacticMatch is a tactic with at least one marker present in the input.
type TacticMatch struct {
	Tactic  domain.Tactic
	Markers []string
}

// FindTactics returns the tactics found in the input, in catalog order.
func FindTactics(cfg *domain.FreeTextConfig, in lexical.Input) []TacticMatch {
	var found []TacticMatch
	for _, t := range cfg.Tactics {
		if m := in.Match(t.Markers); len(m) > 0 {
			found = append(found, TacticMatch{Tactic: t, Markers: m})
		}
	}
	return found
}

// TextScorer classifies free text by how many distinct tactics it contains.
type TextScorer struct{}

func (TextScorer) Name() string { return StrategyText }

// Evaluate maps the found-tactic count to a tier: 0 Clear, 1-2 Warn, 3+ Danger.
func (TextScorer) Evaluate(def *domain.PatternDefinition, in Input) (*domain.Verdict, error) {
	cfg, ok := def.Content.(*domain.FreeTextConfig)
	if !ok {
		return nil, mismatch(def, domain.ModeFreeText)
	}

	text := lexical.NewInput(in.Text)
	found := FindTactics(cfg, text)

	v := &domain.Verdict{
		DefinitionID: def.ID,
		Strategy:     StrategyText,
		Count:        len(found),
		Score:        len(found),
		Matched:      make([]string, 0, len(found)),
		Turns:        text.Turns(lexical.VariantDetector),
	}

	switch n := len(found); {
	case n == 0:
		v.Tier = domain.TierClear
		v.Label = orDefault(def.ClearLabel, "NO PATTERNS DETECTED")
		v.Description = orDefault(def.ClearDesc, "No manipulation patterns found")
	case n <= 2:
		v.Tier = domain.TierWarn
		v.Label = orDefault(def.WarnLabel, "WARNING SIGNS")
		v.Description = fmt.Sprintf("%d tactic(s) detected", n)
	default:
		v.Tier = domain.TierDanger
		v.Label = orDefault(def.DangerLabel, "HIGH ALERT")
		v.Description = fmt.Sprintf("%d tactics - serious concern", n)
	}

	var extraRealities []string
	seen := make(map[string]struct{}, len(found))
	for _, f := range found {
		v.Matched = append(v.Matched, f.Tactic.Name)
		extraRealities = append(extraRealities, f.Tactic.Reality)

		r := orDefault(f.Tactic.Response, f.Tactic.Reality)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		v.Guidance = append(v.Guidance, r)
	}
	v.Guidance = truncate(v.Guidance, maxResponses)

	switch {
	case len(found) == 0:
		v.Guidance = []string{orDefault(def.DefaultResponse, FallbackResponse)}
	case v.Guidance == nil:
		v.Guidance = []string{}
	}
	v.Realities = realities(def, extraRealities)

	return v, nil
}
