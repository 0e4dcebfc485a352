package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/domain"
)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load failed: %v", err)
	}
	return c
}

func mustGet(t *testing.T, c *catalog.Catalog, id string) *domain.PatternDefinition {
	t.Helper()
	def, ok := c.Get(id)
	if !ok {
		t.Fatalf("definition %q not found", id)
	}
	return def
}

func freeText(tactics ...domain.Tactic) *domain.PatternDefinition {
	return &domain.PatternDefinition{ID: "test", Content: &domain.FreeTextConfig{Tactics: tactics}}
}

func TestTextScorer(t *testing.T) {
	c := loadCatalog(t)
	gaslighting := mustGet(t, c, "gaslighting")
	scorer := TextScorer{}

	t.Run("ClearUsesFallbackResponse", func(t *testing.T) {
		v, err := scorer.Evaluate(gaslighting, Input{Text: "Thanks for dinner yesterday."})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if v.Tier != domain.TierClear {
			t.Errorf("expected CLEAR, got %s", v.Tier)
		}
		if diff := cmp.Diff([]string{FallbackResponse}, v.Guidance); diff != "" {
			t.Errorf("guidance mismatch (-want +got):\n%s", diff)
		}
		if v.Label != "NO GASLIGHTING DETECTED" {
			t.Errorf("expected definition clear label, got %q", v.Label)
		}
		if diff := cmp.Diff(gaslighting.DefaultRealities, v.Realities); diff != "" {
			t.Errorf("realities mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("TwoTacticsWarn", func(t *testing.T) {
		v, err := scorer.Evaluate(gaslighting, Input{Text: "That never happened. You're imagining things, you're just paranoid."})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if v.Tier != domain.TierWarn {
			t.Errorf("expected WARN, got %s", v.Tier)
		}
		if diff := cmp.Diff([]string{"Reality Denial", "Perception Invalidation"}, v.Matched); diff != "" {
			t.Errorf("matched mismatch (-want +got):\n%s", diff)
		}
		if v.Description != "2 tactic(s) detected" {
			t.Errorf("unexpected description %q", v.Description)
		}
		if len(v.Guidance) != 2 {
			t.Errorf("expected 2 responses, got %d", len(v.Guidance))
		}
	})

	t.Run("SameTacticCountsOnce", func(t *testing.T) {
		v, _ := scorer.Evaluate(gaslighting, Input{Text: "that never happened, you're imagining"})
		if v.Count != 1 || v.Tier != domain.TierWarn {
			t.Errorf("expected 1 tactic and WARN, got %d and %s", v.Count, v.Tier)
		}
	})

	t.Run("ThreeTacticsDanger", func(t *testing.T) {
		v, _ := scorer.Evaluate(gaslighting, Input{Text: "That never happened, you're too sensitive, and it's your fault."})
		if v.Tier != domain.TierDanger {
			t.Errorf("expected DANGER, got %s", v.Tier)
		}
		if v.Label != "STRONG GASLIGHTING" {
			t.Errorf("unexpected label %q", v.Label)
		}
		if v.Description != "3 tactics - serious concern" {
			t.Errorf("unexpected description %q", v.Description)
		}
	})

	t.Run("ModeMismatch", func(t *testing.T) {
		_, err := scorer.Evaluate(mustGet(t, c, "love-bombing"), Input{Text: "x"})
		if !errors.Is(err, domain.ErrModeMismatch) {
			t.Errorf("expected ErrModeMismatch, got %v", err)
		}
		if !domain.IsValidation(err) {
			t.Error("mode mismatch should be a validation error")
		}
	})
}

func TestTextScorerTierByCount(t *testing.T) {
	def := freeText(
		domain.Tactic{Name: "a", Markers: []string{"alpha"}},
		domain.Tactic{Name: "b", Markers: []string{"bravo"}},
		domain.Tactic{Name: "c", Markers: []string{"charlie"}},
		domain.Tactic{Name: "d", Markers: []string{"delta"}},
	)

	tests := []struct {
		text string
		want domain.Tier
	}{
		{"", domain.TierClear},
		{"nothing here", domain.TierClear},
		{"delta", domain.TierWarn},
		{"alpha charlie", domain.TierWarn},
		{"bravo charlie delta", domain.TierDanger},
		{"alpha bravo charlie delta", domain.TierDanger},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := TextScorer{}.Evaluate(def, Input{Text: tt.text})
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if v.Tier != tt.want {
				t.Errorf("expected %s, got %s", tt.want, v.Tier)
			}
			if v.Label == "" || v.Description == "" {
				t.Error("expected fallback label and description")
			}
		})
	}
}

func TestTextScorerGuidanceAssembly(t *testing.T) {
	def := freeText(
		domain.Tactic{Name: "a", Markers: []string{"a1"}, Response: "same"},
		domain.Tactic{Name: "b", Markers: []string{"b1"}, Response: "same"},
		domain.Tactic{Name: "c", Markers: []string{"c1"}, Reality: "reality c"},
		domain.Tactic{Name: "d", Markers: []string{"d1"}, Response: "resp d", Reality: "reality d"},
		domain.Tactic{Name: "e", Markers: []string{"e1"}, Response: "resp e"},
		domain.Tactic{Name: "f", Markers: []string{"f1"}, Response: "resp f"},
	)

	v, err := TextScorer{}.Evaluate(def, Input{Text: "a1 b1 c1 d1 e1 f1"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	wantGuidance := []string{"same", "reality c", "resp d", "resp e"}
	if diff := cmp.Diff(wantGuidance, v.Guidance); diff != "" {
		t.Errorf("guidance mismatch (-want +got):\n%s", diff)
	}

	wantRealities := append(append([]string{}, BaselineRealities...), "reality c")
	if diff := cmp.Diff(wantRealities, v.Realities); diff != "" {
		t.Errorf("realities mismatch (-want +got):\n%s", diff)
	}

	t.Run("DefaultResponse", func(t *testing.T) {
		def.DefaultResponse = "Stay grounded"
		v, _ := TextScorer{}.Evaluate(def, Input{Text: "zzz"})
		if diff := cmp.Diff([]string{"Stay grounded"}, v.Guidance); diff != "" {
			t.Errorf("guidance mismatch (-want +got):\n%s", diff)
		}
	})
}

func checklist(weights ...int) *domain.PatternDefinition {
	signs := make([]domain.Sign, len(weights))
	for i, w := range weights {
		signs[i] = domain.Sign{Text: string(rune('A' + i)), Weight: w}
	}
	return &domain.PatternDefinition{ID: "check", Content: &domain.ChecklistConfig{Signs: signs}}
}

func TestChecklistScorer(t *testing.T) {
	scorer := ChecklistScorer{}

	t.Run("BoundaryFiftyIsMedium", func(t *testing.T) {
		def := checklist(2, 3, 2, 3)
		v, err := scorer.Evaluate(def, Input{Selected: []int{0, 1}})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if v.Score != 5 || v.Checklist.MaxPossible != 10 || v.Checklist.Percentage != 50 {
			t.Errorf("expected 5/10 = 50%%, got %d/%d = %d%%", v.Score, v.Checklist.MaxPossible, v.Checklist.Percentage)
		}
		if v.Tier != domain.TierMedium {
			t.Errorf("expected MEDIUM, got %s", v.Tier)
		}
	})

	t.Run("Tiers", func(t *testing.T) {
		def := checklist(20, 1, 30, 49)
		tests := []struct {
			selected []int
			pct      int
			tier     domain.Tier
		}{
			{nil, 0, domain.TierLow},
			{[]int{0}, 20, domain.TierLow},
			{[]int{0, 1}, 21, domain.TierMedium},
			{[]int{0, 2}, 50, domain.TierMedium},
			{[]int{0, 1, 2}, 51, domain.TierHigh},
			{[]int{0, 1, 2, 3}, 100, domain.TierHigh},
		}
		for _, tt := range tests {
			v, err := scorer.Evaluate(def, Input{Selected: tt.selected})
			if err != nil {
				t.Fatalf("Evaluate(%v) failed: %v", tt.selected, err)
			}
			if v.Checklist.Percentage != tt.pct || v.Tier != tt.tier {
				t.Errorf("selected %v: expected %d%% %s, got %d%% %s",
					tt.selected, tt.pct, tt.tier, v.Checklist.Percentage, v.Tier)
			}
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := scorer.Evaluate(checklist(1, 1), Input{Selected: []int{2}})
		if !domain.IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("DuplicatesCountOnce", func(t *testing.T) {
		v, _ := scorer.Evaluate(checklist(1, 1, 1, 1), Input{Selected: []int{1, 1, 1}})
		if v.Score != 1 {
			t.Errorf("expected score 1, got %d", v.Score)
		}
	})

	t.Run("WarningsInSelectionOrderCapped", func(t *testing.T) {
		v, _ := scorer.Evaluate(checklist(1, 1, 1, 1, 1, 1, 1), Input{Selected: []int{6, 5, 4, 3, 2, 1}})
		if diff := cmp.Diff([]string{"G", "F", "E", "D", "C"}, v.Checklist.Warnings); diff != "" {
			t.Errorf("warnings mismatch (-want +got):\n%s", diff)
		}
		if v.Count != 6 || v.Score != 6 {
			t.Errorf("scoring must use the full selection, got count %d score %d", v.Count, v.Score)
		}
	})

	t.Run("Monotonic", func(t *testing.T) {
		def := checklist(3, 1, 4, 1, 5)
		prev := -1
		for n := 0; n <= 5; n++ {
			sel := make([]int, n)
			for i := range sel {
				sel[i] = i
			}
			v, _ := scorer.Evaluate(def, Input{Selected: sel})
			if v.Checklist.Percentage < prev {
				t.Errorf("percentage decreased from %d to %d", prev, v.Checklist.Percentage)
			}
			if v.Checklist.Percentage < 0 || v.Checklist.Percentage > 100 {
				t.Errorf("percentage out of range: %d", v.Checklist.Percentage)
			}
			prev = v.Checklist.Percentage
		}
	})

	t.Run("ModeMismatch", func(t *testing.T) {
		_, err := scorer.Evaluate(freeText(domain.Tactic{Name: "a", Markers: []string{"a"}}), Input{})
		if !errors.Is(err, domain.ErrModeMismatch) {
			t.Errorf("expected ErrModeMismatch, got %v", err)
		}
	})
}

func TestChecklistGuidance(t *testing.T) {
	c := loadCatalog(t)
	def := mustGet(t, c, "love-bombing")

	all := make([]int, def.Items())
	for i := range all {
		all[i] = i
	}

	v, err := ChecklistScorer{}.Evaluate(def, Input{Selected: all})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	want := append(append([]string{}, def.HighGuidance...), def.DefaultGuidance[:2]...)
	if diff := cmp.Diff(want, v.Guidance); diff != "" {
		t.Errorf("high guidance mismatch (-want +got):\n%s", diff)
	}

	// 9/27 = 33%
	v, _ = ChecklistScorer{}.Evaluate(def, Input{Selected: []int{0, 1, 2, 3}})
	want = append(append([]string{}, def.MediumGuidance...), def.DefaultGuidance...)
	if diff := cmp.Diff(want, v.Guidance); diff != "" {
		t.Errorf("medium guidance mismatch (-want +got):\n%s", diff)
	}

	v, _ = ChecklistScorer{}.Evaluate(def, Input{})
	if diff := cmp.Diff(def.DefaultGuidance, v.Guidance); diff != "" {
		t.Errorf("default guidance mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(def.DefaultRealities, v.Realities); diff != "" {
		t.Errorf("realities mismatch (-want +got):\n%s", diff)
	}
}

func TestThreatScorer(t *testing.T) {
	c := loadCatalog(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	scorer := ThreatScorer{Now: func() time.Time { return now }}

	t.Run("Clear", func(t *testing.T) {
		r, err := scorer.Report(c.Threat(), "hello there")
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if r.ThreatLevel != domain.TierClear || r.ManipulationScore != 0 {
			t.Errorf("expected CLEAR/0, got %s/%d", r.ThreatLevel, r.ManipulationScore)
		}
		if r.Recommendation != RecommendClear {
			t.Errorf("unexpected recommendation %q", r.Recommendation)
		}
		if r.NeutralizationProtocols == nil || len(r.NeutralizationProtocols) != 0 {
			t.Errorf("expected empty protocol list, got %v", r.NeutralizationProtocols)
		}
	})

	t.Run("AuthorityAppeal", func(t *testing.T) {
		r, _ := scorer.Report(c.Threat(), "Studies show the expert is right.")
		if r.ManipulationScore != 20 || r.ThreatLevel != domain.TierLow {
			t.Errorf("expected 20/LOW, got %d/%s", r.ManipulationScore, r.ThreatLevel)
		}
		got := r.DetectedPatterns["authority_appeal"]
		want := domain.CategoryMatch{Count: 2, Examples: []string{"expert", "studies show"}, Severity: domain.TierMedium}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("category mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"Verify credentials and check for conflicts of interest"}, r.NeutralizationProtocols); diff != "" {
			t.Errorf("protocols mismatch (-want +got):\n%s", diff)
		}
		if r.TextLength != 33 {
			t.Errorf("expected text_length 33, got %d", r.TextLength)
		}
		if !r.Timestamp.Equal(now) {
			t.Errorf("expected timestamp %v, got %v", now, r.Timestamp)
		}
		if r.PatternTheoryFormula != domain.FormulaAnnotation {
			t.Errorf("unexpected formula %q", r.PatternTheoryFormula)
		}
	})

	t.Run("HighWithProtocolOrder", func(t *testing.T) {
		text := "Act now! Limited time, only today, exclusive last chance before the deadline, everyone is running out."
		r, _ := scorer.Report(c.Threat(), text)
		if r.ManipulationScore != 80 || r.ThreatLevel != domain.TierHigh {
			t.Errorf("expected 80/HIGH, got %d/%s", r.ManipulationScore, r.ThreatLevel)
		}
		scarcity := r.DetectedPatterns["scarcity_pressure"]
		if scarcity.Severity != domain.TierHigh || len(scarcity.Examples) != 3 {
			t.Errorf("expected HIGH with 3 examples, got %s with %d", scarcity.Severity, len(scarcity.Examples))
		}
		want := []string{"Pause and recognize artificial urgency", "Question sample sizes and selection bias"}
		if diff := cmp.Diff(want, r.NeutralizationProtocols); diff != "" {
			t.Errorf("protocols mismatch (-want +got):\n%s", diff)
		}
		if r.PatternsDetected != 2 {
			t.Errorf("expected 2 categories, got %d", r.PatternsDetected)
		}
		if r.ImmunityBoost != "Awareness of 2 patterns increases manipulation immunity" {
			t.Errorf("unexpected immunity boost %q", r.ImmunityBoost)
		}
	})

	t.Run("ScoreCapped", func(t *testing.T) {
		text := "act now limited time only exclusive last chance running out deadline " +
			"danger risk warning urgent crisis emergency threat"
		v, _ := scorer.Evaluate(c.Threat(), Input{Text: text})
		if v.Score != 100 {
			t.Errorf("expected score capped at 100, got %d", v.Score)
		}
	})

	t.Run("ScoreFormula", func(t *testing.T) {
		texts := []string{"expert", "expert doctor", "you owe me, how could you", "crisis danger viral"}
		for _, text := range texts {
			v, _ := scorer.Evaluate(c.Threat(), Input{Text: text})
			total := 0
			for _, m := range v.Categories {
				total += m.Count
			}
			if v.Score != min(100, 10*total) {
				t.Errorf("%q: score %d does not match 10 x %d", text, v.Score, total)
			}
		}
	})
}

func TestThreatLevelBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  domain.Tier
	}{
		{0, domain.TierClear},
		{10, domain.TierLow},
		{39, domain.TierLow},
		{40, domain.TierMedium},
		{69, domain.TierMedium},
		{70, domain.TierHigh},
		{100, domain.TierHigh},
	}
	for _, tt := range tests {
		if got, _ := ThreatLevel(tt.score); got != tt.want {
			t.Errorf("ThreatLevel(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}

	if CategorySeverity(1) != domain.TierLow || CategorySeverity(2) != domain.TierMedium || CategorySeverity(5) != domain.TierHigh {
		t.Error("unexpected category severity mapping")
	}
}

func TestDiscourseScorer(t *testing.T) {
	c := loadCatalog(t)
	scorer := DiscourseScorer{Markers: c.Discourse()}

	tests := []struct {
		name       string
		text       string
		tier       domain.Tier
		truth      int
		confidence int
	}{
		{"NoMarkers", "the sky is blue", domain.TierNeutral, 50, 0},
		{"Truth", "Because the evidence shows it, therefore we agree.", domain.TierTruth, 100, 100},
		{"Deceit", "Trust me, it is guaranteed and free.", domain.TierDeceit, 0, 100},
		{"TurnPenaltyAtBoundary", "I think it is fine but it costs more", domain.TierNeutral, 40, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := scorer.Evaluate(nil, Input{Text: tt.text})
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if v.Tier != tt.tier {
				t.Errorf("expected %s, got %s", tt.tier, v.Tier)
			}
			if v.Discourse.Truth != tt.truth {
				t.Errorf("expected truth %d, got %d", tt.truth, v.Discourse.Truth)
			}
			if v.Discourse.Confidence != tt.confidence {
				t.Errorf("expected confidence %d, got %d", tt.confidence, v.Discourse.Confidence)
			}
			if v.Discourse.Truth+v.Discourse.Deceit != 100 {
				t.Errorf("truth and deceit must sum to 100, got %d", v.Discourse.Truth+v.Discourse.Deceit)
			}
		})
	}

	t.Run("Quick", func(t *testing.T) {
		v := scorer.Quick("Trust me, obviously.")
		if v.Score != 34 || v.Tier != domain.TierDeceit || v.Discourse.Confidence != 32 {
			t.Errorf("expected 34/DECEIT/32, got %d/%s/%d", v.Score, v.Tier, v.Discourse.Confidence)
		}

		v = scorer.Quick("because the evidence and data")
		if v.Score != 65 || v.Tier != domain.TierTruth || v.Discourse.Confidence != 30 {
			t.Errorf("expected 65/TRUTH/30, got %d/%s/%d", v.Score, v.Tier, v.Discourse.Confidence)
		}

		v = scorer.Quick("")
		if v.Score != 50 || v.Tier != domain.TierTruth {
			t.Errorf("expected neutral start 50/TRUTH, got %d/%s", v.Score, v.Tier)
		}
	})
}

func TestForDefinition(t *testing.T) {
	c := loadCatalog(t)

	s, err := ForDefinition(mustGet(t, c, "stonewalling"))
	if err != nil || s.Name() != StrategyChecklist {
		t.Errorf("expected checklist scorer, got %v, %v", s, err)
	}
	s, err = ForDefinition(mustGet(t, c, "hoovering"))
	if err != nil || s.Name() != StrategyText {
		t.Errorf("expected text scorer, got %v, %v", s, err)
	}
	if _, err := ForDefinition(&domain.PatternDefinition{ID: "empty"}); err == nil {
		t.Error("expected error for definition without content")
	}
}
