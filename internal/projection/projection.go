// Package projection extrapolates a seven-domain score vector forward in
// time with monthly compound growth and back-solves milestone dates.
package projection

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/discern/internal/domain"
)

// Domains are the fixed life areas, in tie-break order.
var Domains = []string{"physical", "financial", "mental", "emotional", "social", "creative", "integration"}

// Offsets are the projection horizons in days.
var Offsets = []int{7, 30, 60, 90, 180, 365}

// DefaultHorizon is used when a request does not set time_horizon.
const DefaultHorizon = 90

// Status is a consciousness tier.
type Status string

const (
	StatusImmune     Status = "MANIPULATION_IMMUNE"
	StatusHigh       Status = "HIGH_CONSCIOUSNESS"
	StatusDeveloping Status = "DEVELOPING"
	StatusVulnerable Status = "VULNERABLE"
)

// StatusFor maps a score to its tier.
func StatusFor(score float64) Status {
	switch {
	case score >= 85:
		return StatusImmune
	case score >= 70:
		return StatusHigh
	case score >= 50:
		return StatusDeveloping
	default:
		return StatusVulnerable
	}
}

var milestones = []struct {
	status Status
	target float64
	desc   string
}{
	{StatusDeveloping, 50, "Exit vulnerable state"},
	{StatusHigh, 70, "Reach high consciousness"},
	{StatusImmune, 85, "Achieve manipulation immunity"},
}

// Request is the input of a projection.
type Request struct {
	CurrentState       any                `json:"current_state,omitempty"`
	Domains            map[string]float64 `json:"domains" validate:"required"`
	PatternRecognition *float64           `json:"pattern_recognition,omitempty"`
	TimeHorizon        *int               `json:"time_horizon,omitempty"`
}

// Point is one projected future state.
type Point struct {
	Days           int     `json:"days"`
	Date           string  `json:"date"`
	ProjectedScore float64 `json:"projected_score"`
	Confidence     int     `json:"confidence"`
	Status         Status  `json:"status"`
}

// Milestone is a status threshold reached within the projection window.
type Milestone struct {
	Milestone     Status `json:"milestone"`
	Description   string `json:"description"`
	EstimatedDays int    `json:"estimated_days"`
}

// CurrentState summarises the input vector.
type CurrentState struct {
	Score           float64 `json:"score"`
	Status          Status  `json:"status"`
	StrongestDomain string  `json:"strongest_domain"`
	WeakestDomain   string  `json:"weakest_domain"`
	Spread          float64 `json:"spread"`
}

// Bottleneck names the weakest domain.
type Bottleneck struct {
	PrimaryBottleneck string  `json:"primary_bottleneck"`
	BottleneckScore   float64 `json:"bottleneck_score"`
	Impact            string  `json:"impact"`
	Recommendation    string  `json:"recommendation"`
}

// GrowthModel documents the growth formula applied.
type GrowthModel struct {
	MonthlyGrowthRate string `json:"monthly_growth_rate"`
	Driver            string `json:"driver"`
	Formula           string `json:"formula"`
}

// Result is a complete projection.
type Result struct {
	CurrentState CurrentState `json:"current_state"`
	Projections  []Point      `json:"projections"`
	Milestones   []Milestone  `json:"milestones"`
	Bottleneck   Bottleneck   `json:"bottleneck_analysis"`
	GrowthModel  GrowthModel  `json:"growth_model"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Engine computes projections. The zero value uses time.Now.
type Engine struct {
	Now func() time.Time
}

// NewEngine creates a projection engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

// Validate checks the request without computing anything.
func Validate(req Request) error {
	if req.Domains == nil {
		return domain.Invalid("domains", "required")
	}
	for k := range req.Domains {
		if !isDomain(k) {
			return domain.Invalid("domains", "unknown domain %q", k)
		}
	}
	for _, name := range Domains {
		v, ok := req.Domains[name]
		if !ok {
			return domain.Invalid("domains", "missing domain %q", name)
		}
		if math.IsNaN(v) || v < 0 || v > 100 {
			return domain.Invalid("domains", "%s must be within [0,100]", name)
		}
	}
	if pr := req.PatternRecognition; pr != nil && (math.IsNaN(*pr) || *pr < 0 || *pr > 100) {
		return domain.Invalid("pattern_recognition", "must be within [0,100]")
	}
	if h := req.TimeHorizon; h != nil && *h <= 0 {
		return domain.Invalid("time_horizon", "must be positive")
	}
	return nil
}

func isDomain(name string) bool {
	for _, d := range Domains {
		if d == name {
			return true
		}
	}
	return false
}

// Project extrapolates the request's domain vector.
func (e *Engine) Project(req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	now := time.Now
	if e != nil && e.Now != nil {
		now = e.Now
	}
	start := now().UTC()

	var sum float64
	weakest, strongest := Domains[0], Domains[0]
	for _, name := range Domains {
		v := req.Domains[name]
		sum += v
		if v < req.Domains[weakest] {
			weakest = name
		}
		if v > req.Domains[strongest] {
			strongest = name
		}
	}
	avg := sum / float64(len(Domains))
	low, high := req.Domains[weakest], req.Domains[strongest]

	pr := avg
	if req.PatternRecognition != nil {
		pr = *req.PatternRecognition
	}
	growth := GrowthRate(pr)

	horizon := DefaultHorizon
	if req.TimeHorizon != nil {
		horizon = *req.TimeHorizon
	}

	res := &Result{
		CurrentState: CurrentState{
			Score:           round1(avg),
			Status:          StatusFor(avg),
			StrongestDomain: strongest,
			WeakestDomain:   weakest,
			Spread:          high - low,
		},
		Projections: []Point{},
		Milestones:  []Milestone{},
		Bottleneck: Bottleneck{
			PrimaryBottleneck: weakest,
			BottleneckScore:   low,
			Impact:            fmt.Sprintf("Improving %s would accelerate timeline by %d%%", weakest, int(math.Round((high-low)/10))),
			Recommendation:    fmt.Sprintf("Focus on %s domain to unlock faster growth", weakest),
		},
		GrowthModel: GrowthModel{
			MonthlyGrowthRate: strconv.FormatFloat(math.Round(growth*1000)/10, 'f', -1, 64) + "%",
			Driver:            "pattern_recognition",
			Formula:           "score × (1 + growth_rate)^months",
		},
		Timestamp: start,
	}

	for _, days := range Offsets {
		if days > horizon*2 {
			continue
		}
		months := float64(days) / 30
		projected := math.Min(100, avg*math.Pow(1+growth, months))
		res.Projections = append(res.Projections, Point{
			Days:           days,
			Date:           start.AddDate(0, 0, days).Format(time.DateOnly),
			ProjectedScore: round1(projected),
			Confidence:     int(math.Round(math.Pow(0.95, months) * 100)),
			Status:         StatusFor(projected),
		})
	}

	for _, m := range milestones {
		if avg >= m.target || !reaches(res.Projections, m.target) {
			continue
		}
		days, ok := EstimateDays(avg, m.target, growth)
		if !ok {
			continue
		}
		res.Milestones = append(res.Milestones, Milestone{
			Milestone:     m.status,
			Description:   m.desc,
			EstimatedDays: days,
		})
	}

	return res, nil
}

// GrowthRate converts a pattern recognition score into a monthly rate, at most 10%.
func GrowthRate(patternRecognition float64) float64 {
	return patternRecognition / 100 * 0.1
}

// EstimateDays back-solves the days needed for current to reach target.
// It returns 0, true when current already meets target and false when
// growth can never reach it.
func EstimateDays(current, target, growth float64) (int, bool) {
	if current >= target {
		return 0, true
	}
	if growth <= 0 || current <= 0 {
		return 0, false
	}
	months := math.Log(target/current) / math.Log(1+growth)
	return int(math.Round(months * 30)), true
}

func reaches(points []Point, target float64) bool {
	for _, p := range points {
		if p.ProjectedScore >= target {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseDomains parses "name=value" pairs such as "physical=40".
func ParseDomains(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, domain.Invalid("domains", "expected name=value, got %q", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, domain.Invalid("domains", "%s: %v", name, err)
		}
		out[strings.ToLower(strings.TrimSpace(name))] = v
	}
	return out, nil
}
