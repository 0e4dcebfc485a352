package scoring

import (
	"math"

	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/lexical"
)

// DiscourseScorer splits text into truth and deceit shares from marker
// counts, penalised by discourse turns.
type DiscourseScorer struct {
	Markers domain.DiscourseMarkers
}

func (DiscourseScorer) Name() string { return StrategyDiscourse }

// Evaluate ignores def; the scorer carries its own marker lists.
func (s DiscourseScorer) Evaluate(_ *domain.PatternDefinition, in Input) (*domain.Verdict, error) {
	text := lexical.NewInput(in.Text)
	truthHits := text.Match(s.Markers.TruthMarkers)
	deceitHits := text.Match(s.Markers.DeceitMarkers)

	truth, deceit := 50.0, 50.0
	if total := len(truthHits) + len(deceitHits); total > 0 {
		truth = float64(len(truthHits)) / float64(total) * 100
		deceit = float64(len(deceitHits)) / float64(total) * 100
	}

	turns := text.Turns(lexical.VariantDiscourse)
	penalty := float64(len(turns) * 10)
	deceit = math.Min(100, deceit+penalty)
	truth = math.Max(0, truth-penalty)

	if sum := truth + deceit; sum > 0 {
		truth = truth / sum * 100
		deceit = deceit / sum * 100
	}

	confidence := math.Abs(truth - deceit)
	tier := domain.TierNeutral
	if confidence > 20 {
		tier = domain.TierDeceit
		if truth > deceit {
			tier = domain.TierTruth
		}
	}

	matched := make([]string, 0, len(truthHits)+len(deceitHits))
	matched = append(matched, truthHits...)
	matched = append(matched, deceitHits...)

	t := int(math.Round(truth))
	return &domain.Verdict{
		Strategy: StrategyDiscourse,
		Tier:     tier,
		Label:    string(tier),
		Score:    t,
		Count:    len(matched),
		Matched:  matched,
		Guidance: []string{},
		Turns:    turns,
		Discourse: &domain.DiscourseDetail{
			Truth:      t,
			Deceit:     100 - t,
			Confidence: int(math.Round(confidence)),
		},
	}, nil
}

// Quick is the lightweight truth score used when no assistant is available:
// start at 50, +5 per truth indicator, -8 per deceit indicator, clamp to [0,100].
func (s DiscourseScorer) Quick(text string) *domain.Verdict {
	in := lexical.NewInput(text)
	truthHits := in.Match(s.Markers.QuickTruth)
	deceitHits := in.Match(s.Markers.QuickDeceit)

	score := 50 + 5*len(truthHits) - 8*len(deceitHits)
	score = max(0, min(100, score))

	tier := domain.TierDeceit
	if score >= 50 {
		tier = domain.TierTruth
	}
	confidence := score - 50
	if confidence < 0 {
		confidence = -confidence
	}

	matched := make([]string, 0, len(truthHits)+len(deceitHits))
	matched = append(matched, truthHits...)
	matched = append(matched, deceitHits...)

	return &domain.Verdict{
		Strategy: StrategyDiscourse,
		Tier:     tier,
		Label:    string(tier),
		Score:    score,
		Count:    len(matched),
		Matched:  matched,
		Guidance: []string{},
		Turns:    in.Turns(lexical.VariantDetector),
		Discourse: &domain.DiscourseDetail{
			Truth:      score,
			Deceit:     100 - score,
			Confidence: confidence * 2,
		},
	}
}
