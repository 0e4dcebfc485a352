package scoring

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/lexical"
)

// Threat recommendations by level.
const (
	RecommendHigh   = "Strong manipulation detected. Apply Pattern Theory neutralization protocols."
	RecommendMedium = "Moderate manipulation. Verify claims independently before acting."
	RecommendLow    = "Minor manipulation indicators. Stay aware but no immediate concern."
	RecommendClear  = "No significant manipulation patterns detected."
)

// ThreatScorer applies the linear point formula over the threat categories:
// every matched marker is worth 10 points, capped at 100.
type ThreatScorer struct {
	// Now stamps reports. Defaults to time.Now.
	Now func() time.Time
}

func (ThreatScorer) Name() string { return StrategyThreat }

// Evaluate returns the threat result as a generic verdict.
func (s ThreatScorer) Evaluate(def *domain.PatternDefinition, in Input) (*domain.Verdict, error) {
	cfg, ok := def.Content.(*domain.FreeTextConfig)
	if !ok {
		return nil, mismatch(def, domain.ModeFreeText)
	}

	text := lexical.NewInput(in.Text)
	score, cats, order := threatCategories(cfg, text)
	level, rec := ThreatLevel(score)

	return &domain.Verdict{
		DefinitionID: def.ID,
		Strategy:     StrategyThreat,
		Tier:         level,
		Label:        string(level),
		Description:  rec,
		Score:        score,
		Count:        len(order),
		Matched:      order,
		Guidance:     protocols(cfg, cats),
		Turns:        text.Turns(lexical.VariantDetector),
		Categories:   cats,
	}, nil
}

// Report builds the full detection report for text.
func (s ThreatScorer) Report(def *domain.PatternDefinition, text string) (*domain.ThreatReport, error) {
	v, err := s.Evaluate(def, Input{Text: text})
	if err != nil {
		return nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	return &domain.ThreatReport{
		TextLength:              utf8.RuneCountInString(text),
		ManipulationScore:       v.Score,
		ThreatLevel:             v.Tier,
		PatternsDetected:        v.Count,
		DetectedPatterns:        v.Categories,
		NeutralizationProtocols: v.Guidance,
		Recommendation:          v.Description,
		ImmunityBoost:           fmt.Sprintf("Awareness of %d patterns increases manipulation immunity", v.Count),
		PatternTheoryFormula:    domain.FormulaAnnotation,
		Turns:                   v.Turns,
		Timestamp:               now().UTC(),
	}, nil
}

func threatCategories(cfg *domain.FreeTextConfig, text lexical.Input) (int, map[string]domain.CategoryMatch, []string) {
	cats := make(map[string]domain.CategoryMatch)
	order := []string{}
	total := 0
	for _, t := range cfg.Tactics {
		found := text.Match(t.Markers)
		if len(found) == 0 {
			continue
		}
		cats[t.Name] = domain.CategoryMatch{
			Count:    len(found),
			Examples: truncate(found, maxExamples),
			Severity: CategorySeverity(len(found)),
		}
		order = append(order, t.Name)
		total += len(found) * 10
	}
	return min(100, total), cats, order
}

func protocols(cfg *domain.FreeTextConfig, cats map[string]domain.CategoryMatch) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, t := range cfg.Tactics {
		if _, hit := cats[t.Name]; !hit || t.Response == "" {
			continue
		}
		if _, dup := seen[t.Response]; dup {
			continue
		}
		seen[t.Response] = struct{}{}
		out = append(out, t.Response)
	}
	return out
}

// CategorySeverity maps a per-category match count to a severity.
func CategorySeverity(count int) domain.Tier {
	switch {
	case count >= 3:
		return domain.TierHigh
	case count == 2:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// ThreatLevel maps a manipulation score to a level and recommendation.
func ThreatLevel(score int) (domain.Tier, string) {
	switch {
	case score >= 70:
		return domain.TierHigh, RecommendHigh
	case score >= 40:
		return domain.TierMedium, RecommendMedium
	case score > 0:
		return domain.TierLow, RecommendLow
	default:
		return domain.TierClear, RecommendClear
	}
}
