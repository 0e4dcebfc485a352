package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/discern/internal/domain"
)

func newEngine(t *testing.T, workers int) *Engine {
	t.Helper()
	engine, err := NewEngine(workers)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func sampleReport() *domain.ThreatReport {
	return &domain.ThreatReport{
		TextLength:        120,
		ManipulationScore: 50,
		ThreatLevel:       domain.TierMedium,
		PatternsDetected:  2,
		DetectedPatterns: map[string]domain.CategoryMatch{
			"scarcity_pressure": {Count: 3, Severity: domain.TierHigh},
			"social_proof":      {Count: 2, Severity: domain.TierMedium},
		},
		Turns: []string{"False urgency"},
	}
}

func TestEngineCreation(t *testing.T) {
	engine := newEngine(t, 5)
	if engine.Len() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.Len())
	}
}

func TestCompile(t *testing.T) {
	engine := newEngine(t, 2)

	tests := []struct {
		name    string
		rule    *domain.EscalationRule
		wantErr bool
	}{
		{name: "bool expression", rule: &domain.EscalationRule{ID: "a", Expression: "score >= 70"}},
		{name: "map access", rule: &domain.EscalationRule{ID: "b", Expression: `"gaslighting" in categories`}},
		{name: "list access", rule: &domain.EscalationRule{ID: "c", Expression: `turns.exists(t, t == "Pivot detected")`}},
		{name: "missing id", rule: &domain.EscalationRule{Expression: "true"}, wantErr: true},
		{name: "syntax error", rule: &domain.EscalationRule{ID: "d", Expression: "this is not valid CEL !!!"}, wantErr: true},
		{name: "non bool", rule: &domain.EscalationRule{ID: "e", Expression: "score + 1"}, wantErr: true},
		{name: "unknown variable", rule: &domain.EscalationRule{ID: "f", Expression: "amount > 10.0"}, wantErr: true},
		{name: "bad severity", rule: &domain.EscalationRule{ID: "g", Expression: "true", Severity: "CRITICAL"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Compile(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestCompileDefaults(t *testing.T) {
	engine := newEngine(t, 2)
	rule := &domain.EscalationRule{ID: "x", Expression: "true"}
	if _, err := engine.Compile(rule); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if rule.Name != "x" || rule.Severity != domain.TierMedium {
		t.Errorf("defaults not applied: %+v", rule)
	}
}

func TestEvaluateAll(t *testing.T) {
	engine := newEngine(t, 3)
	err := engine.LoadRules(Global, []*domain.EscalationRule{
		{ID: "medium-or-worse", Expression: `level != "CLEAR" && level != "LOW"`, Severity: domain.TierMedium, Enabled: true},
		{ID: "scarcity", Expression: `"scarcity_pressure" in categories && categories["scarcity_pressure"] >= 3`, Severity: domain.TierHigh, Enabled: true, Description: "Heavy scarcity pressure"},
		{ID: "high-score", Expression: "score >= 70", Severity: domain.TierHigh, Enabled: true},
		{ID: "urgency-turn", Expression: `"False urgency" in turns`, Severity: domain.TierLow, Enabled: true},
		{ID: "disabled", Expression: "true", Enabled: false},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if engine.Len() != 4 {
		t.Fatalf("expected 4 enabled rules, got %d", engine.Len())
	}

	alerts, err := engine.EvaluateAll(context.Background(), "tenant-001", sampleReport())
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}

	want := []domain.Alert{
		{RuleID: "medium-or-worse", Name: "medium-or-worse", Severity: domain.TierMedium, Reason: `matched level != "CLEAR" && level != "LOW"`},
		{RuleID: "scarcity", Name: "scarcity", Severity: domain.TierHigh, Reason: "Heavy scarcity pressure"},
		{RuleID: "urgency-turn", Name: "urgency-turn", Severity: domain.TierLow, Reason: `matched "False urgency" in turns`},
	}
	if diff := cmp.Diff(want, alerts); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateMissingKeyIsSkipped(t *testing.T) {
	engine := newEngine(t, 2)
	err := engine.LoadRules(Global, []*domain.EscalationRule{
		{ID: "unguarded", Expression: `categories["gaslighting"] > 0`, Enabled: true},
		{ID: "always", Expression: "true", Enabled: true},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	alerts, err := engine.EvaluateAll(context.Background(), "t", sampleReport())
	if err != nil {
		t.Fatalf("EvaluateAll failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].RuleID != "always" {
		t.Errorf("expected only the 'always' alert, got %+v", alerts)
	}
}

func TestTenantScopes(t *testing.T) {
	engine := newEngine(t, 2)
	if err := engine.LoadRules(Global, []*domain.EscalationRule{{ID: "g", Expression: "true", Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	if err := engine.AddRule("tenant-a", &domain.EscalationRule{ID: "a", Expression: "true", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	ids := func(tenant string) []string {
		var out []string
		for _, r := range engine.Rules(tenant) {
			out = append(out, r.ID)
		}
		return out
	}

	if diff := cmp.Diff([]string{"g", "a"}, ids("tenant-a")); diff != "" {
		t.Errorf("tenant-a rules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"g"}, ids("tenant-b")); diff != "" {
		t.Errorf("tenant-b rules mismatch (-want +got):\n%s", diff)
	}

	alerts, _ := engine.EvaluateAll(context.Background(), "tenant-b", sampleReport())
	if len(alerts) != 1 {
		t.Errorf("tenant-b should only see global alerts, got %d", len(alerts))
	}
}

func TestAddRuleUpsert(t *testing.T) {
	engine := newEngine(t, 2)
	for _, id := range []string{"one", "two", "three"} {
		if err := engine.AddRule("t", &domain.EscalationRule{ID: id, Expression: "true", Enabled: true}); err != nil {
			t.Fatal(err)
		}
	}

	if err := engine.AddRule("t", &domain.EscalationRule{ID: "two", Expression: "false", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	rules := engine.Rules("t")
	if len(rules) != 3 || rules[1].ID != "two" || rules[1].Expression != "false" {
		t.Errorf("upsert should keep position, got %+v", rules)
	}

	if err := engine.AddRule("t", &domain.EscalationRule{ID: "one", Expression: "true"}); err != nil {
		t.Fatal(err)
	}
	if got := len(engine.Rules("t")); got != 2 {
		t.Errorf("disabling should remove the rule, have %d", got)
	}
}

func TestLoadRulesAtomic(t *testing.T) {
	engine := newEngine(t, 2)
	good := []*domain.EscalationRule{{ID: "ok", Expression: "true", Enabled: true}}
	if err := engine.LoadRules("t", good); err != nil {
		t.Fatal(err)
	}

	bad := []*domain.EscalationRule{
		{ID: "new", Expression: "true", Enabled: true},
		{ID: "broken", Expression: "score +", Enabled: true},
	}
	if err := engine.LoadRules("t", bad); err == nil {
		t.Fatal("expected compile error")
	}
	rules := engine.Rules("t")
	if len(rules) != 1 || rules[0].ID != "ok" {
		t.Errorf("failed load must keep the previous set, got %+v", rules)
	}

	dup := []*domain.EscalationRule{
		{ID: "same", Expression: "true", Enabled: true},
		{ID: "same", Expression: "false", Enabled: true},
	}
	if err := engine.LoadRules("t", dup); err == nil {
		t.Error("expected duplicate id error")
	}
}

func TestParallelExecution(t *testing.T) {
	engine := newEngine(t, 3)

	var rules []*domain.EscalationRule
	for i := 0; i < 20; i++ {
		rules = append(rules, &domain.EscalationRule{
			ID:         fmt.Sprintf("rule-%02d", i),
			Expression: fmt.Sprintf("score >= %d", i*5),
			Enabled:    true,
		})
	}
	if err := engine.LoadRules(Global, rules); err != nil {
		t.Fatal(err)
	}

	alerts, err := engine.EvaluateAll(context.Background(), "t", sampleReport())
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}
	// score 50 satisfies thresholds 0..50, i.e. rules 0..10.
	if len(alerts) != 11 {
		t.Fatalf("expected 11 alerts, got %d", len(alerts))
	}
	for i, a := range alerts {
		if want := fmt.Sprintf("rule-%02d", i); a.RuleID != want {
			t.Errorf("alert %d = %s, want %s (rule order)", i, a.RuleID, want)
		}
	}
}

func TestEvaluateCancelled(t *testing.T) {
	engine := newEngine(t, 1)
	if err := engine.LoadRules(Global, []*domain.EscalationRule{
		{ID: "a", Expression: "true", Enabled: true},
		{ID: "b", Expression: "true", Enabled: true},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.EvaluateAll(ctx, "t", sampleReport()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `rules:
  - id: high-score
    name: High manipulation score
    expression: score >= 70
    severity: HIGH
  - id: off
    expression: "true"
    enabled: false
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if !rules[0].Enabled || rules[0].Severity != domain.TierHigh || rules[0].Name != "High manipulation score" {
		t.Errorf("unexpected first rule: %+v", rules[0])
	}
	if rules[1].Enabled {
		t.Error("explicit enabled: false must be honored")
	}

	engine := newEngine(t, 2)
	if err := engine.LoadRules(Global, rules); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if engine.Len() != 1 {
		t.Errorf("expected 1 loaded rule, got %d", engine.Len())
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	noID := filepath.Join(dir, "noid.yaml")
	os.WriteFile(noID, []byte("rules:\n  - expression: \"true\"\n"), 0o600)
	if _, err := LoadFile(noID); err == nil {
		t.Error("expected error for rule without id")
	}

	broken := filepath.Join(dir, "broken.yaml")
	os.WriteFile(broken, []byte("rules: [\n"), 0o600)
	if _, err := LoadFile(broken); err == nil {
		t.Error("expected parse error")
	}
}
