// Package lexical implements surface marker matching and discourse turn detection.
//
// Matching is case-insensitive substring containment with no tokenization:
// the marker "but" matches inside "butter". Verdict thresholds downstream
// are tuned against exactly this behavior.
package lexical

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// cases.Caser is stateful and must not be shared between goroutines.
var lowerPool = sync.Pool{
	New: func() any {
		c := cases.Lower(language.Und)
		return &c
	},
}

// Fold lower-cases s.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	c := lowerPool.Get().(*cases.Caser)
	defer lowerPool.Put(c)
	return c.String(s)
}

// Input is folded text prepared for repeated matching.
type Input struct {
	folded string
}

// NewInput folds text once so it can be matched against many marker sets.
func NewInput(text string) Input {
	return Input{folded: Fold(text)}
}

// Empty reports whether the input has no text.
func (in Input) Empty() bool { return in.folded == "" }

// Contains reports whether marker occurs anywhere in the input.
func (in Input) Contains(marker string) bool {
	if in.folded == "" || marker == "" {
		return false
	}
	return strings.Contains(in.folded, Fold(marker))
}

// Match returns the markers present in the input, in marker order.
// Duplicate markers are reported once.
func (in Input) Match(markers []string) []string {
	if in.folded == "" || len(markers) == 0 {
		return nil
	}

	var found []string
	var seen map[string]struct{}
	for _, m := range markers {
		if !in.Contains(m) {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{}, 4)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		found = append(found, m)
	}
	return found
}

// Count returns how many distinct markers are present.
func (in Input) Count(markers []string) int {
	return len(in.Match(markers))
}

// Match returns the markers of the set that occur in text.
func Match(text string, markers []string) []string {
	return NewInput(text).Match(markers)
}

// Contains reports whether a single marker occurs in text.
func Contains(text, marker string) bool {
	return NewInput(text).Contains(marker)
}
