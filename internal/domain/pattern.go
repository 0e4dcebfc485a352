package domain

import "encoding/json"

// InputMode selects how a detector consumes its input.
type InputMode string

const (
	ModeFreeText  InputMode = "free_text"
	ModeChecklist InputMode = "checklist"
)

// Content is the mode-specific part of a PatternDefinition.
// It is either *FreeTextConfig or *ChecklistConfig.
type Content interface {
	Mode() InputMode
	content()
}

// Tactic is one named manipulation pattern inside a free-text detector.
type Tactic struct {
	Name     string   `json:"name" yaml:"name"`
	Markers  []string `json:"markers" yaml:"markers"`
	Desc     string   `json:"desc" yaml:"desc"`
	Response string   `json:"response,omitempty" yaml:"response,omitempty"`
	Reality  string   `json:"reality,omitempty" yaml:"reality,omitempty"`
}

// FreeTextConfig holds tactics in catalog order.
type FreeTextConfig struct {
	Tactics []Tactic
}

func (*FreeTextConfig) Mode() InputMode { return ModeFreeText }
func (*FreeTextConfig) content()        {}

// Sign is one weighted checklist entry.
type Sign struct {
	Text   string `json:"text" yaml:"text"`
	Weight int    `json:"weight" yaml:"weight"`
}

// ChecklistConfig holds signs in display order.
type ChecklistConfig struct {
	Signs []Sign
}

func (*ChecklistConfig) Mode() InputMode { return ModeChecklist }
func (*ChecklistConfig) content()        {}

// MaxWeight returns the weight sum of every sign.
func (c *ChecklistConfig) MaxWeight() int {
	total := 0
	for _, s := range c.Signs {
		total += s.Weight
	}
	return total
}

// PatternDefinition is one detector's configuration.
type PatternDefinition struct {
	ID       string
	Category string
	Title    string
	Subtitle string
	Prompt   string

	Content Content

	ClearLabel  string
	ClearDesc   string
	WarnLabel   string
	DangerLabel string

	DefaultResponse  string
	DefaultRealities []string
	HighGuidance     []string
	MediumGuidance   []string
	DefaultGuidance  []string
}

// Mode returns the input mode of the definition's content.
func (d *PatternDefinition) Mode() InputMode {
	if d.Content == nil {
		return ""
	}
	return d.Content.Mode()
}

// Items returns the number of tactics or signs.
func (d *PatternDefinition) Items() int {
	switch c := d.Content.(type) {
	case *FreeTextConfig:
		return len(c.Tactics)
	case *ChecklistConfig:
		return len(c.Signs)
	}
	return 0
}

// DetectorSummary is the catalog listing entry of a definition.
type DetectorSummary struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	InputMode InputMode `json:"input_mode"`
	Items     int       `json:"items"`
}

// Summary returns the listing entry for d.
func (d *PatternDefinition) Summary() DetectorSummary {
	return DetectorSummary{
		ID:        d.ID,
		Category:  d.Category,
		Title:     d.Title,
		Subtitle:  d.Subtitle,
		InputMode: d.Mode(),
		Items:     d.Items(),
	}
}

type patternJSON struct {
	ID               string    `json:"id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Subtitle         string    `json:"subtitle,omitempty"`
	Prompt           string    `json:"prompt,omitempty"`
	InputMode        InputMode `json:"input_mode"`
	ClearLabel       string    `json:"clear_label,omitempty"`
	ClearDesc        string    `json:"clear_desc,omitempty"`
	WarnLabel        string    `json:"warn_label,omitempty"`
	DangerLabel      string    `json:"danger_label,omitempty"`
	Tactics          []Tactic  `json:"tactics,omitempty"`
	Signs            []Sign    `json:"signs,omitempty"`
	DefaultResponse  string    `json:"default_response,omitempty"`
	DefaultRealities []string  `json:"default_realities,omitempty"`
	HighGuidance     []string  `json:"high_guidance,omitempty"`
	MediumGuidance   []string  `json:"medium_guidance,omitempty"`
	DefaultGuidance  []string  `json:"default_guidance,omitempty"`
}

// MarshalJSON flattens the content variant into tactics or signs.
func (d *PatternDefinition) MarshalJSON() ([]byte, error) {
	out := patternJSON{
		ID:               d.ID,
		Category:         d.Category,
		Title:            d.Title,
		Subtitle:         d.Subtitle,
		Prompt:           d.Prompt,
		InputMode:        d.Mode(),
		ClearLabel:       d.ClearLabel,
		ClearDesc:        d.ClearDesc,
		WarnLabel:        d.WarnLabel,
		DangerLabel:      d.DangerLabel,
		DefaultResponse:  d.DefaultResponse,
		DefaultRealities: d.DefaultRealities,
		HighGuidance:     d.HighGuidance,
		MediumGuidance:   d.MediumGuidance,
		DefaultGuidance:  d.DefaultGuidance,
	}
	switch c := d.Content.(type) {
	case *FreeTextConfig:
		out.Tactics = c.Tactics
	case *ChecklistConfig:
		out.Signs = c.Signs
	}
	return json.Marshal(out)
}

// DiscourseMarkers holds the marker lists used by truth/deceit scoring.
type DiscourseMarkers struct {
	TruthMarkers  []string `json:"truth_markers" yaml:"truth_markers"`
	DeceitMarkers []string `json:"deceit_markers" yaml:"deceit_markers"`
	QuickTruth    []string `json:"quick_truth" yaml:"quick_truth"`
	QuickDeceit   []string `json:"quick_deceit" yaml:"quick_deceit"`
}
