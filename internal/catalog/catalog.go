// Package catalog loads the pattern catalog: detector definitions, the
// threat categories and the discourse marker lists.
// A catalog is built once at startup and is read-only afterwards.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/discern/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.json
var embedded []byte

type rawDefinition struct {
	ID               string           `json:"id" yaml:"id"`
	Category         string           `json:"category" yaml:"category"`
	Title            string           `json:"title" yaml:"title"`
	Subtitle         string           `json:"subtitle" yaml:"subtitle"`
	Prompt           string           `json:"prompt" yaml:"prompt"`
	InputMode        domain.InputMode `json:"input_mode" yaml:"input_mode"`
	ClearLabel       string           `json:"clear_label" yaml:"clear_label"`
	ClearDesc        string           `json:"clear_desc" yaml:"clear_desc"`
	WarnLabel        string           `json:"warn_label" yaml:"warn_label"`
	DangerLabel      string           `json:"danger_label" yaml:"danger_label"`
	Tactics          []domain.Tactic  `json:"tactics" yaml:"tactics"`
	Signs            []domain.Sign    `json:"signs" yaml:"signs"`
	DefaultResponse  string           `json:"default_response" yaml:"default_response"`
	DefaultRealities []string         `json:"default_realities" yaml:"default_realities"`
	HighGuidance     []string         `json:"high_guidance" yaml:"high_guidance"`
	MediumGuidance   []string         `json:"medium_guidance" yaml:"medium_guidance"`
	DefaultGuidance  []string         `json:"default_guidance" yaml:"default_guidance"`
}

type rawCatalog struct {
	Version     string                  `json:"version" yaml:"version"`
	Definitions []rawDefinition         `json:"definitions" yaml:"definitions"`
	Threat      rawDefinition           `json:"threat" yaml:"threat"`
	Discourse   domain.DiscourseMarkers `json:"discourse" yaml:"discourse"`
}

// Catalog is the immutable set of detector definitions.
// Definitions returned by its getters must not be modified.
type Catalog struct {
	version   string
	defs      []*domain.PatternDefinition
	byID      map[string]*domain.PatternDefinition
	threat    *domain.PatternDefinition
	discourse domain.DiscourseMarkers
}

// Load returns the catalog compiled from the embedded catalog.json.
func Load() (*Catalog, error) {
	var raw rawCatalog
	if err := json.Unmarshal(embedded, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse embedded catalog.json: %w", err)
	}
	return build(raw)
}

// LoadFile reads a catalog from a .json, .yaml or .yml file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var raw rawCatalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("catalog: unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return build(raw)
}

// FromPath loads path when it is set and the embedded catalog otherwise.
func FromPath(path string) (*Catalog, error) {
	if path == "" {
		return Load()
	}
	return LoadFile(path)
}

func build(raw rawCatalog) (*Catalog, error) {
	c := &Catalog{
		version:   raw.Version,
		byID:      make(map[string]*domain.PatternDefinition, len(raw.Definitions)),
		discourse: raw.Discourse,
	}

	for i := range raw.Definitions {
		def, err := compile(raw.Definitions[i])
		if err != nil {
			return nil, err
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate definition id %q", def.ID)
		}
		c.byID[def.ID] = def
		c.defs = append(c.defs, def)
	}

	threat, err := compile(raw.Threat)
	if err != nil {
		return nil, fmt.Errorf("catalog: threat: %w", err)
	}
	if threat.Mode() != domain.ModeFreeText {
		return nil, fmt.Errorf("catalog: threat definition must be free_text")
	}
	c.threat = threat

	if len(c.discourse.TruthMarkers) == 0 || len(c.discourse.DeceitMarkers) == 0 {
		return nil, fmt.Errorf("catalog: discourse truth and deceit markers are required")
	}

	return c, nil
}

func compile(r rawDefinition) (*domain.PatternDefinition, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("catalog: definition without id")
	}

	def := &domain.PatternDefinition{
		ID:               r.ID,
		Category:         r.Category,
		Title:            r.Title,
		Subtitle:         r.Subtitle,
		Prompt:           r.Prompt,
		ClearLabel:       r.ClearLabel,
		ClearDesc:        r.ClearDesc,
		WarnLabel:        r.WarnLabel,
		DangerLabel:      r.DangerLabel,
		DefaultResponse:  r.DefaultResponse,
		DefaultRealities: r.DefaultRealities,
		HighGuidance:     r.HighGuidance,
		MediumGuidance:   r.MediumGuidance,
		DefaultGuidance:  r.DefaultGuidance,
	}

	switch r.InputMode {
	case domain.ModeFreeText:
		if len(r.Signs) > 0 {
			return nil, fmt.Errorf("catalog: %s: free_text definition has signs", r.ID)
		}
		tactics, err := compileTactics(r.ID, r.Tactics)
		if err != nil {
			return nil, err
		}
		def.Content = &domain.FreeTextConfig{Tactics: tactics}
	case domain.ModeChecklist:
		if len(r.Tactics) > 0 {
			return nil, fmt.Errorf("catalog: %s: checklist definition has tactics", r.ID)
		}
		signs, err := compileSigns(r.ID, r.Signs)
		if err != nil {
			return nil, err
		}
		def.Content = &domain.ChecklistConfig{Signs: signs}
	default:
		return nil, fmt.Errorf("catalog: %s: unknown input_mode %q", r.ID, r.InputMode)
	}

	return def, nil
}

func compileTactics(id string, in []domain.Tactic) ([]domain.Tactic, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("catalog: %s: no tactics", id)
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Tactic, 0, len(in))
	for _, t := range in {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog: %s: tactic without name", id)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("catalog: %s: duplicate tactic %q", id, t.Name)
		}
		seen[t.Name] = struct{}{}

		markers := make([]string, 0, len(t.Markers))
		for _, m := range t.Markers {
			if strings.TrimSpace(m) != "" {
				markers = append(markers, m)
			}
		}
		if len(markers) == 0 {
			return nil, fmt.Errorf("catalog: %s: tactic %q has no markers", id, t.Name)
		}
		t.Markers = markers
		out = append(out, t)
	}
	return out, nil
}

func compileSigns(id string, in []domain.Sign) ([]domain.Sign, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("catalog: %s: no signs", id)
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Sign, 0, len(in))
	for i, s := range in {
		if s.Text == "" {
			return nil, fmt.Errorf("catalog: %s: sign %d has no text", id, i)
		}
		if _, dup := seen[s.Text]; dup {
			return nil, fmt.Errorf("catalog: %s: duplicate sign %q", id, s.Text)
		}
		seen[s.Text] = struct{}{}

		switch {
		case s.Weight < 0:
			return nil, fmt.Errorf("catalog: %s: sign %q has negative weight", id, s.Text)
		case s.Weight == 0:
			s.Weight = 1
		}
		out = append(out, s)
	}
	return out, nil
}

// Version returns the catalog document version.
func (c *Catalog) Version() string { return c.version }

// Len returns the number of detector definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (*domain.PatternDefinition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// List returns every detector definition in catalog order.
func (c *Catalog) List() []*domain.PatternDefinition {
	out := make([]*domain.PatternDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Summaries returns the listing entry of every definition in catalog order.
func (c *Catalog) Summaries() []domain.DetectorSummary {
	out := make([]domain.DetectorSummary, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.Summary()
	}
	return out
}

// Threat returns the multi-category threat definition.
func (c *Catalog) Threat() *domain.PatternDefinition { return c.threat }

// Discourse returns the truth/deceit marker lists.
func (c *Catalog) Discourse() domain.DiscourseMarkers { return c.discourse }
