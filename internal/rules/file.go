package rules

import (
	"fmt"
	"os"

	"github.com/opensource-finance/discern/internal/domain"
	"gopkg.in/yaml.v3"
)

type fileRule struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Expression  string      `yaml:"expression"`
	Severity    domain.Tier `yaml:"severity"`
	Enabled     *bool       `yaml:"enabled"`
}

type ruleFile struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadFile reads escalation rules from a YAML document of the form
//
//	rules:
//	  - id: scarcity-pressure
//	    expression: '"scarcity_pressure" in categories && categories["scarcity_pressure"] >= 2'
//	    severity: HIGH
//
// Rules are enabled unless they say otherwise.
func LoadFile(path string) ([]*domain.EscalationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}

	out := make([]*domain.EscalationRule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rules: %s: rule %d has no id", path, i)
		}
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		out = append(out, &domain.EscalationRule{
			ID:          r.ID,
			TenantID:    Global,
			Name:        r.Name,
			Description: r.Description,
			Expression:  r.Expression,
			Severity:    r.Severity,
			Enabled:     enabled,
		})
	}
	return out, nil
}
