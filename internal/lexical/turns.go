package lexical

import (
	"regexp"
	"strings"
)

// Variant selects the wording of turn labels.
type Variant int

const (
	// VariantDetector is used by the detector scorers.
	VariantDetector Variant = iota
	// VariantDiscourse is used by truth/deceit discourse scoring.
	VariantDiscourse
)

// Turn labels.
const (
	TurnPivot         = "Pivot detected"
	TurnPivotPositive = "Pivot after positive"
	TurnContradiction = "Contradiction introduced"
	TurnAgreementNeg  = "Agreement negation"
	TurnFalseUrgency  = "False urgency"
)

var (
	urgencyWords    = regexp.MustCompile(`\b(now|immediately|urgent)\b`)
	obligationWords = regexp.MustCompile(`\b(must|need|have to)\b`)
)

// Turns returns the discourse turns present in the input.
// Every rule is evaluated independently; several turns may co-occur.
func (in Input) Turns(v Variant) []string {
	if in.folded == "" {
		return nil
	}

	var turns []string
	if strings.Contains(in.folded, " but ") {
		if v == VariantDiscourse {
			turns = append(turns, TurnPivotPositive)
		} else {
			turns = append(turns, TurnPivot)
		}
	}
	if strings.Contains(in.folded, " however ") {
		turns = append(turns, TurnContradiction)
	}
	if strings.Contains(in.folded, "yes, but") {
		turns = append(turns, TurnAgreementNeg)
	}
	if urgencyWords.MatchString(in.folded) && obligationWords.MatchString(in.folded) {
		turns = append(turns, TurnFalseUrgency)
	}
	return turns
}

// DetectTurns folds text and returns its discourse turns.
func DetectTurns(text string, v Variant) []string {
	return NewInput(text).Turns(v)
}
