package lexical

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		markers []string
		want    []string
	}{
		{"CaseInsensitive", "That NEVER Happened", []string{"that never happened"}, []string{"that never happened"}},
		{"UpperCaseMarker", "you are paranoid", []string{"PARANOID"}, []string{"PARANOID"}},
		{"SubstringNoWordBoundary", "pass the butter", []string{"but"}, []string{"but"}},
		{"MarkerOrderKept", "crazy and too sensitive", []string{"too sensitive", "crazy"}, []string{"too sensitive", "crazy"}},
		{"DuplicateMarkers", "crazy", []string{"crazy", "crazy"}, []string{"crazy"}},
		{"NoMatch", "a calm message", []string{"crazy"}, nil},
		{"EmptyText", "", []string{"crazy"}, nil},
		{"EmptyMarkers", "crazy", nil, nil},
		{"BlankMarkerIgnored", "crazy", []string{""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.text, tt.markers)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInputReuse(t *testing.T) {
	in := NewInput("Trust me, this is URGENT")

	if !in.Contains("trust me") {
		t.Error("expected 'trust me' to match")
	}
	if in.Count([]string{"urgent", "trust me", "because"}) != 2 {
		t.Errorf("expected 2 matches, got %d", in.Count([]string{"urgent", "trust me", "because"}))
	}
	if in.Empty() {
		t.Error("input should not be empty")
	}
	if !NewInput("").Empty() {
		t.Error("empty text should produce empty input")
	}
}

func TestDetectTurns(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		variant Variant
		want    []string
	}{
		{"None", "I like this plan.", VariantDetector, nil},
		{"Pivot", "That was nice but you forgot", VariantDetector, []string{TurnPivot}},
		{"PivotDiscourseWording", "That was nice but you forgot", VariantDiscourse, []string{TurnPivotPositive}},
		{"PivotNeedsSpaces", "pass the butter please", VariantDetector, nil},
		{"Contradiction", "Fine, however it is late", VariantDetector, []string{TurnContradiction}},
		{"AgreementNegation", "Yes, but not today", VariantDetector, []string{TurnPivot, TurnAgreementNeg}},
		{"AgreementNegationAtEnd", "I said yes,but", VariantDetector, nil},
		{"FalseUrgency", "You must decide NOW", VariantDetector, []string{TurnFalseUrgency}},
		{"UrgencyWithoutObligation", "Call me now", VariantDetector, nil},
		{"UrgencyWordBoundary", "I know you need nothing", VariantDetector, nil},
		{
			"CoOccurring",
			"yes, but it is urgent and you have to act, but however you feel",
			VariantDetector,
			[]string{TurnPivot, TurnContradiction, TurnAgreementNeg, TurnFalseUrgency},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectTurns(tt.text, tt.variant)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DetectTurns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
