package domain

// Tier is an ordinal severity classification.
type Tier string

// Text-mode tiers.
const (
	TierClear  Tier = "CLEAR"
	TierWarn   Tier = "WARN"
	TierDanger Tier = "DANGER"
)

// Checklist and threat tiers. Threat reports also use TierClear.
const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Discourse tiers.
const (
	TierTruth   Tier = "TRUTH"
	TierDeceit  Tier = "DECEIT"
	TierNeutral Tier = "NEUTRAL"
)

// Verdict is the result of one scoring strategy.
type Verdict struct {
	DefinitionID string   `json:"definition_id,omitempty"`
	Strategy     string   `json:"strategy"`
	Tier         Tier     `json:"tier"`
	Label        string   `json:"label,omitempty"`
	Description  string   `json:"description,omitempty"`
	Score        int      `json:"score"`
	Count        int      `json:"count"`
	Matched      []string `json:"matched"`
	Guidance     []string `json:"guidance"`
	Realities    []string `json:"realities,omitempty"`
	Turns        []string `json:"turns,omitempty"`

	Checklist  *ChecklistDetail         `json:"checklist,omitempty"`
	Categories map[string]CategoryMatch `json:"categories,omitempty"`
	Discourse  *DiscourseDetail         `json:"discourse,omitempty"`
}

// ChecklistDetail carries the weighted checklist computation.
type ChecklistDetail struct {
	Percentage  int      `json:"percentage"`
	MaxPossible int      `json:"max_possible"`
	Warnings    []string `json:"warnings"`
}

// DiscourseDetail carries the truth/deceit split. Truth and Deceit sum to 100.
type DiscourseDetail struct {
	Truth      int `json:"truth"`
	Deceit     int `json:"deceit"`
	Confidence int `json:"confidence"`
}

// CategoryMatch is the per-category detail of a threat verdict.
type CategoryMatch struct {
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
	Severity Tier     `json:"severity"`
}
