// Package rules provides the CEL-Go based escalation rule engine.
//
// Escalation rules are boolean CEL expressions evaluated against a threat
// report. A rule that evaluates to true raises an alert.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/discern/internal/domain"
)

// Global scopes rules that apply to every tenant, such as those loaded
// from the rules file.
const Global = "*"

// Engine is the CEL-based escalation rule engine.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      map[string][]*CompiledRule
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.EscalationRule
	Program cel.Program
}

// NewEngine creates a new rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("level", cel.StringType),
		cel.Variable("patterns", cel.IntType),
		cel.Variable("text_length", cel.IntType),
		cel.Variable("categories", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("turns", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		rules:      make(map[string][]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// Compile validates and compiles a rule without loading it.
// Problems with the rule itself are reported as *domain.ValidationError.
func (e *Engine) Compile(rule *domain.EscalationRule) (*CompiledRule, error) {
	if rule == nil {
		return nil, domain.Invalid("rule", "is required")
	}
	if rule.ID == "" {
		return nil, domain.Invalid("id", "is required")
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	switch rule.Severity {
	case "":
		rule.Severity = domain.TierMedium
	case domain.TierLow, domain.TierMedium, domain.TierHigh:
	default:
		return nil, domain.Invalid("severity", "must be LOW, MEDIUM or HIGH, got %q", rule.Severity)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, domain.Invalid("expression", "rule %s: %v", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, domain.Invalid("expression", "rule %s must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

// LoadRules compiles rules and replaces the set held for scope.
// Disabled rules are skipped. Nothing changes if any rule fails to compile.
func (e *Engine) LoadRules(scope string, rules []*domain.EscalationRule) error {
	compiled := make([]*CompiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if seen[r.ID] {
			return domain.Invalid("id", "duplicate rule %s", r.ID)
		}
		seen[r.ID] = true

		c, err := e.Compile(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(compiled) == 0 {
		delete(e.rules, scope)
		return nil
	}
	e.rules[scope] = compiled
	return nil
}

// AddRule compiles rule and upserts it into scope, keeping its position
// when a rule with the same id is already loaded.
func (e *Engine) AddRule(scope string, rule *domain.EscalationRule) error {
	c, err := e.Compile(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.rules[scope]
	for i, existing := range list {
		if existing.Rule.ID == rule.ID {
			next := append([]*CompiledRule(nil), list...)
			if rule.Enabled {
				next[i] = c
			} else {
				next = append(next[:i], next[i+1:]...)
			}
			e.rules[scope] = next
			return nil
		}
	}
	if rule.Enabled {
		e.rules[scope] = append(append([]*CompiledRule(nil), list...), c)
	}
	return nil
}

// Rules returns the rules that apply to tenantID: global rules first,
// then the tenant's own.
func (e *Engine) Rules(tenantID string) []*domain.EscalationRule {
	compiled := e.applicable(tenantID)
	out := make([]*domain.EscalationRule, len(compiled))
	for i, c := range compiled {
		out[i] = c.Rule
	}
	return out
}

// Len returns the total number of loaded rules across scopes.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, list := range e.rules {
		n += len(list)
	}
	return n
}

func (e *Engine) applicable(tenantID string) []*CompiledRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	global := e.rules[Global]
	own := e.rules[tenantID]
	if tenantID == Global {
		own = nil
	}
	out := make([]*CompiledRule, 0, len(global)+len(own))
	out = append(out, global...)
	return append(out, own...)
}

// Activation builds the CEL variables for a threat report.
func Activation(report *domain.ThreatReport) map[string]any {
	categories := make(map[string]int64, len(report.DetectedPatterns))
	for name, m := range report.DetectedPatterns {
		categories[name] = int64(m.Count)
	}
	turns := report.Turns
	if turns == nil {
		turns = []string{}
	}
	return map[string]any{
		"score":       int64(report.ManipulationScore),
		"level":       string(report.ThreatLevel),
		"patterns":    int64(report.PatternsDetected),
		"text_length": int64(report.TextLength),
		"categories":  categories,
		"turns":       turns,
	}
}

// EvaluateAll evaluates every rule that applies to tenantID in parallel
// and returns the alerts raised, in rule order. Rules that fail to
// evaluate are logged and skipped.
func (e *Engine) EvaluateAll(ctx context.Context, tenantID string, report *domain.ThreatReport) ([]domain.Alert, error) {
	rules := e.applicable(tenantID)
	if len(rules) == 0 {
		return nil, nil
	}

	activation := Activation(report)
	fired := make([]bool, len(rules))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()
			defer func() { <-sem }()
			fired[idx] = e.evaluateRule(ctx, r, activation)
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var alerts []domain.Alert
	for i, ok := range fired {
		if !ok {
			continue
		}
		r := rules[i].Rule
		alerts = append(alerts, domain.Alert{
			RuleID:   r.ID,
			Name:     r.Name,
			Severity: r.Severity,
			Reason:   reason(r),
		})
	}
	return alerts, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) bool {
	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		slog.Warn("escalation rule evaluation failed",
			"rule_id", rule.Rule.ID,
			"error", err,
		)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func reason(r *domain.EscalationRule) string {
	if r.Description != "" {
		return r.Description
	}
	return "matched " + r.Expression
}

// Close drops all loaded rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[string][]*CompiledRule)
	return nil
}
