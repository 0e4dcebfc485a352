package domain

import "time"

// FormulaAnnotation documents how ManipulationScore is computed.
const FormulaAnnotation = "MS = Σ(pattern_count × 10)"

// ThreatReport is the multi-category detection result returned by /detect.
type ThreatReport struct {
	TextLength              int                      `json:"text_length"`
	ManipulationScore       int                      `json:"manipulation_score"`
	ThreatLevel             Tier                     `json:"threat_level"`
	PatternsDetected        int                      `json:"patterns_detected"`
	DetectedPatterns        map[string]CategoryMatch `json:"detected_patterns"`
	NeutralizationProtocols []string                 `json:"neutralization_protocols"`
	Recommendation          string                   `json:"recommendation"`
	ImmunityBoost           string                   `json:"immunity_boost"`
	PatternTheoryFormula    string                   `json:"pattern_theory_formula"`
	Turns                   []string                 `json:"turns,omitempty"`
	Timestamp               time.Time                `json:"timestamp"`

	AnalysisID string  `json:"analysis_id,omitempty"`
	Alerts     []Alert `json:"alerts,omitempty"`
}
