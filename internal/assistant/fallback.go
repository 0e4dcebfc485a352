package assistant

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/lexical"
)

// Canned replies for conversational openers.
const (
	GreetingReply = "Welcome. I analyze communication with Pattern Theory. " +
		"What patterns are you seeing? I can help you separate truth from deceit in any message."
	HelpReply = "I analyze communication patterns with Pattern Theory. " +
		"Share any message or statement and I'll break down the truth indicators, " +
		"deceit markers and any manipulation turns I detect."
	PatternReply = "Pattern Theory looks for:\n\n" +
		"• Truth indicators: because, therefore, evidence, specifics\n" +
		"• Deceit markers: trust me, everyone knows, obviously\n" +
		"• Turns: subtle pivots using 'but', 'however', false urgency\n\n" +
		"Share something you'd like me to analyze."
	closingQuestion = "What would you like to explore deeper?"
)

var (
	greetingWords = []string{"hello", "hi", "hey"}
	helpWords     = []string{"help", "how"}
	patternWords  = []string{"pattern", "analyze", "analyse"}
)

// domainHints map message keywords onto the seven life domains.
var domainHints = []struct {
	domain   string
	keywords []string
	hint     string
}{
	{"financial", []string{"money", "debt", "invest", "loan", "salary", "financial"}, "Financial domain: verify numbers and deadlines independently."},
	{"emotional", []string{"relationship", "partner", "love", "feel", "boyfriend", "girlfriend"}, "Emotional domain: notice whether your feelings are being used as leverage."},
	{"social", []string{"work", "boss", "coworker", "team", "friend"}, "Social domain: check whether group pressure is replacing evidence."},
}

// Fallback builds a local reply to message from its quick truth analysis.
// It never returns an empty string.
func Fallback(message string, analysis *domain.Verdict) string {
	words := wordSet(message)

	switch {
	case words.any(greetingWords):
		return GreetingReply
	case words.any(helpWords):
		return HelpReply
	case words.any(patternWords):
		return PatternReply
	}

	var b strings.Builder
	b.WriteString("Pattern Analysis:\n\n")
	if analysis != nil {
		algorithm := "Deceit"
		if analysis.Tier == domain.TierTruth {
			algorithm = "Truth"
		}
		fmt.Fprintf(&b, "Truth Score: %d%%\nAlgorithm: %s\n", analysis.Score, algorithm)
		if len(analysis.Turns) > 0 {
			fmt.Fprintf(&b, "\nDetected turns: %s\n", strings.Join(analysis.Turns, ", "))
		}
	}

	in := lexical.NewInput(message)
	for _, h := range domainHints {
		if len(in.Match(h.keywords)) > 0 {
			fmt.Fprintf(&b, "\n%s", h.hint)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(closingQuestion)
	return b.String()
}

type set map[string]struct{}

func (s set) any(words []string) bool {
	for _, w := range words {
		if _, ok := s[w]; ok {
			return true
		}
	}
	return false
}

// wordSet splits the folded message into letter runs.
func wordSet(message string) set {
	out := make(set)
	for _, w := range strings.FieldsFunc(lexical.Fold(message), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		out[w] = struct{}{}
	}
	return out
}
