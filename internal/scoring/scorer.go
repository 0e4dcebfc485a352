// Package scoring turns lexical matches and checklist selections into verdicts.
//
// Each formula is a Scorer strategy. All strategies are pure: the same
// definition and input always produce the same verdict.
package scoring

import (
	"fmt"

	"github.com/opensource-finance/discern/internal/domain"
)

// Strategy names.
const (
	StrategyText      = "text"
	StrategyChecklist = "checklist"
	StrategyThreat    = "threat"
	StrategyDiscourse = "discourse"
)

// Input is the material evaluated by a Scorer.
// Text is used by free-text strategies, Selected by the checklist strategy.
type Input struct {
	Text     string
	Selected []int
}

// Scorer evaluates one definition against one input.
type Scorer interface {
	Name() string
	Evaluate(def *domain.PatternDefinition, in Input) (*domain.Verdict, error)
}

// ForDefinition returns the detector scorer matching the definition's input mode.
func ForDefinition(def *domain.PatternDefinition) (Scorer, error) {
	switch def.Content.(type) {
	case *domain.FreeTextConfig:
		return TextScorer{}, nil
	case *domain.ChecklistConfig:
		return ChecklistScorer{}, nil
	}
	return nil, fmt.Errorf("scoring: definition %q has no content", def.ID)
}

func mismatch(def *domain.PatternDefinition, want domain.InputMode) error {
	return &domain.ValidationError{
		Field:   "input_mode",
		Message: fmt.Sprintf("detector %q is %s, not %s", def.ID, def.Mode(), want),
		Err:     domain.ErrModeMismatch,
	}
}

// Caps on generated lists.
const (
	maxResponses = 4
	maxRealities = 4
	maxGuidance  = 5
	maxWarnings  = 5
	maxExamples  = 3
)

// FallbackResponse is used when nothing was found and the definition has no default response.
const FallbackResponse = `"Trust your perception"`

// BaselineRealities is used when a definition has no default realities.
var BaselineRealities = []string{
	"Your perception is valid",
	"Trust your instincts",
	"Healthy relationships feel safe",
}

func realities(def *domain.PatternDefinition, extra []string) []string {
	base := def.DefaultRealities
	if len(base) == 0 {
		base = BaselineRealities
	}
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, r := range extra {
		if r != "" {
			out = append(out, r)
		}
	}
	return truncate(out, maxRealities)
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
