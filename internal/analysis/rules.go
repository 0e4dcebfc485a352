package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/discern/internal/domain"
)

// ErrNoRulesEngine is returned by rule management when escalation rules are disabled.
var ErrNoRulesEngine = errors.New("escalation rules not configured")

// ListRules returns the escalation rules that apply to tenantID.
func (s *Service) ListRules(tenantID string) []*domain.EscalationRule {
	if s.rules == nil {
		return []*domain.EscalationRule{}
	}
	return s.rules.Rules(tenantID)
}

// CreateRule compiles rule, stores it for tenantID and loads it.
// The rule is rejected with a ValidationError if its expression does not compile.
func (s *Service) CreateRule(ctx context.Context, tenantID string, rule *domain.EscalationRule) error {
	if s.rules == nil {
		return ErrNoRulesEngine
	}

	rule.TenantID = tenantID
	rule.CreatedAt = s.now().UTC()
	if _, err := s.rules.Compile(rule); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.SaveRule(ctx, tenantID, rule); err != nil {
			return fmt.Errorf("save rule %s: %w", rule.ID, err)
		}
	}
	return s.rules.AddRule(tenantID, rule)
}

// ReloadRules replaces the tenant's loaded rules with those stored in the
// repository and returns how many are enabled.
func (s *Service) ReloadRules(ctx context.Context, tenantID string) (int, error) {
	if s.rules == nil {
		return 0, ErrNoRulesEngine
	}
	if s.repo == nil {
		return 0, ErrNoRepository
	}

	stored, err := s.repo.ListRules(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}
	if err := s.rules.LoadRules(tenantID, stored); err != nil {
		return 0, err
	}

	enabled := 0
	for _, r := range stored {
		if r.Enabled {
			enabled++
		}
	}
	return enabled, nil
}
