// Package analysis runs detection requests end to end: cache lookup,
// scoring, escalation rules, the audit log and bus notifications.
//
// The cache, repository, bus, rules engine and assistant are all optional.
// With none of them the service degrades to pure scoring. Failures in any
// of them are logged and never fail a request.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/discern/internal/assistant"
	"github.com/opensource-finance/discern/internal/cache"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/projection"
	"github.com/opensource-finance/discern/internal/rules"
	"github.com/opensource-finance/discern/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoRepository is returned by lookups when no audit log is configured.
var ErrNoRepository = errors.New("repository not configured")

// DefaultCacheTTL bounds how long scored results are reused.
const DefaultCacheTTL = 10 * time.Minute

// maxHistory is how many prior chat turns are forwarded to the assistant.
const maxHistory = 10

var tracer = otel.Tracer("discern-analysis")

// Assistant answers chat messages from an upstream conversational service.
type Assistant interface {
	Reply(ctx context.Context, tenantID, message string, history []domain.ChatTurn) (string, error)
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Cache      domain.Cache
	Repository domain.Repository
	Bus        domain.EventBus
	Rules      *rules.Engine
	Assistant  Assistant
	CacheTTL   time.Duration
	Now        func() time.Time
}

// Service is the analysis pipeline shared by the HTTP API, the worker and
// the MCP tools.
type Service struct {
	catalog   *catalog.Catalog
	threat    scoring.ThreatScorer
	discourse scoring.DiscourseScorer
	projector *projection.Engine

	cache     domain.Cache
	repo      domain.Repository
	bus       domain.EventBus
	rules     *rules.Engine
	assistant Assistant
	cacheTTL  time.Duration
	now       func() time.Time
}

// New creates a Service over cat.
func New(cat *catalog.Catalog, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		catalog:   cat,
		threat:    scoring.ThreatScorer{Now: now},
		discourse: scoring.DiscourseScorer{Markers: cat.Discourse()},
		projector: &projection.Engine{Now: now},
		cache:     opts.Cache,
		repo:      opts.Repository,
		bus:       opts.Bus,
		rules:     opts.Rules,
		assistant: opts.Assistant,
		cacheTTL:  ttl,
		now:       now,
	}
}

// Catalog returns the detector catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Rules returns the escalation rules engine, or nil.
func (s *Service) Rules() *rules.Engine { return s.rules }

// Detect runs the multi-category threat scorer over text, evaluates the
// tenant's escalation rules and records the result.
func (s *Service) Detect(ctx context.Context, tenantID, text string) (*domain.ThreatReport, error) {
	ctx, span := s.start(ctx, "analysis.detect", tenantID)
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, fail(span, domain.Invalid("text", "is required"))
	}

	def := s.catalog.Threat()
	key := cacheKey(domain.KindDetect, def.ID, text)

	var report domain.ThreatReport
	if !s.lookup(ctx, tenantID, key, &report) {
		r, err := s.threat.Report(def, text)
		if err != nil {
			return nil, fail(span, err)
		}
		report = *r
		s.store(ctx, tenantID, key, &report)
	}
	report.Timestamp = s.now().UTC()
	span.SetAttributes(
		attribute.Int("discern.score", report.ManipulationScore),
		attribute.String("discern.level", string(report.ThreatLevel)),
	)

	if s.rules != nil {
		alerts, err := s.rules.EvaluateAll(ctx, tenantID, &report)
		if err != nil {
			slog.Warn("escalation rules failed", "tenant_id", tenantID, "error", err)
		}
		report.Alerts = alerts
	}

	report.AnalysisID = s.record(ctx, tenantID, record{
		kind:   domain.KindDetect,
		defID:  def.ID,
		tier:   report.ThreatLevel,
		score:  report.ManipulationScore,
		text:   text,
		report: &report,
		alerts: report.Alerts,
	})

	for _, alert := range report.Alerts {
		s.publish(ctx, tenantID, domain.TopicAlertRaised, alertEvent{
			AnalysisID: report.AnalysisID,
			Alert:      alert,
			Score:      report.ManipulationScore,
			Level:      report.ThreatLevel,
		})
	}

	return &report, nil
}

// Analyze runs one catalog detector. Free-text detectors read in.Text and
// checklist detectors read in.Selected.
func (s *Service) Analyze(ctx context.Context, tenantID, detectorID string, in scoring.Input) (*domain.Verdict, error) {
	ctx, span := s.start(ctx, "analysis.analyze", tenantID)
	defer span.End()
	span.SetAttributes(attribute.String("discern.detector", detectorID))

	def, ok := s.catalog.Get(detectorID)
	if !ok {
		return nil, fail(span, fmt.Errorf("detector %q: %w", detectorID, domain.ErrNotFound))
	}
	if err := checkMode(def, in); err != nil {
		return nil, fail(span, err)
	}
	scorer, err := scoring.ForDefinition(def)
	if err != nil {
		return nil, fail(span, err)
	}

	kind := domain.KindText
	material := in.Text
	if def.Mode() == domain.ModeChecklist {
		kind = domain.KindChecklist
		material = selectionKey(in.Selected)
	}
	key := cacheKey(kind, def.ID, material)

	verdict := new(domain.Verdict)
	if !s.lookup(ctx, tenantID, key, verdict) {
		verdict, err = scorer.Evaluate(def, in)
		if err != nil {
			return nil, fail(span, err)
		}
		s.store(ctx, tenantID, key, verdict)
	}
	span.SetAttributes(attribute.String("discern.tier", string(verdict.Tier)))

	s.record(ctx, tenantID, record{
		kind:   kind,
		defID:  def.ID,
		tier:   verdict.Tier,
		score:  verdict.Score,
		text:   material,
		report: verdict,
	})
	return verdict, nil
}

// Quick splits text into truth and deceit shares.
func (s *Service) Quick(ctx context.Context, tenantID, text string) (*domain.Verdict, error) {
	ctx, span := s.start(ctx, "analysis.quick", tenantID)
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, fail(span, domain.Invalid("text", "is required"))
	}

	key := cacheKey(domain.KindQuick, "", text)
	verdict := new(domain.Verdict)
	if !s.lookup(ctx, tenantID, key, verdict) {
		var err error
		verdict, err = s.discourse.Evaluate(nil, scoring.Input{Text: text})
		if err != nil {
			return nil, fail(span, err)
		}
		s.store(ctx, tenantID, key, verdict)
	}

	s.record(ctx, tenantID, record{
		kind:   domain.KindQuick,
		tier:   verdict.Tier,
		score:  verdict.Score,
		text:   text,
		report: verdict,
	})
	return verdict, nil
}

// Chat answers message through the assistant when one is configured and
// reachable, and otherwise with a local pattern analysis. The reply always
// carries the local truth analysis of message.
func (s *Service) Chat(ctx context.Context, tenantID, message string, history []domain.ChatTurn) (*domain.ChatReply, error) {
	ctx, span := s.start(ctx, "analysis.chat", tenantID)
	defer span.End()

	if strings.TrimSpace(message) == "" {
		return nil, fail(span, domain.Invalid("message", "is required"))
	}

	verdict := s.discourse.Quick(message)
	reply := &domain.ChatReply{Analysis: verdict}

	if s.assistant != nil {
		if len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}
		text, err := s.assistant.Reply(ctx, tenantID, message, history)
		switch {
		case err == nil && strings.TrimSpace(text) != "":
			reply.Response = text
			reply.Mode = domain.ChatModeAssistant
		case err != nil && !errors.Is(err, domain.ErrUpstreamUnavailable):
			slog.Warn("assistant failed, using pattern analysis", "tenant_id", tenantID, "error", err)
		default:
			slog.Debug("assistant unavailable, using pattern analysis", "tenant_id", tenantID)
		}
	}
	if reply.Mode == "" {
		reply.Response = assistant.Fallback(message, verdict)
		reply.Mode = domain.ChatModeFallback
	}
	span.SetAttributes(attribute.String("discern.chat_mode", reply.Mode))

	reply.AnalysisID = s.record(ctx, tenantID, record{
		kind:   domain.KindChat,
		tier:   verdict.Tier,
		score:  verdict.Score,
		text:   message,
		report: reply,
	})
	return reply, nil
}

// Project extrapolates a seven-domain score vector.
func (s *Service) Project(ctx context.Context, req projection.Request) (*projection.Result, error) {
	_, span := tracer.Start(ctx, "analysis.project")
	defer span.End()

	res, err := s.projector.Project(req)
	if err != nil {
		return nil, fail(span, err)
	}
	return res, nil
}

// GetAnalysis returns a stored analysis.
func (s *Service) GetAnalysis(ctx context.Context, tenantID, id string) (*domain.Analysis, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.GetAnalysis(ctx, tenantID, id)
}

// ListAnalyses returns the newest stored analyses of a tenant.
func (s *Service) ListAnalyses(ctx context.Context, tenantID string, kind domain.AnalysisKind, limit int) ([]*domain.Analysis, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.ListAnalyses(ctx, tenantID, kind, limit)
}

// Check pings every configured backend and returns the failures by name.
func (s *Service) Check(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	if s.repo != nil {
		if err := s.repo.Ping(ctx); err != nil {
			failures["repository"] = err
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			failures["cache"] = err
		}
	}
	if s.bus != nil {
		if err := s.bus.Ping(ctx); err != nil {
			failures["bus"] = err
		}
	}
	return failures
}

func (s *Service) start(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("tenant.id", tenantID)))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *Service) lookup(ctx context.Context, tenantID, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := cache.GetJSON(ctx, s.cache, tenantID, key, dst)
	if err != nil {
		slog.Warn("cache lookup failed", "tenant_id", tenantID, "error", err)
		return false
	}
	return hit
}

func (s *Service) store(ctx context.Context, tenantID, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, tenantID, key, v, s.cacheTTL); err != nil {
		slog.Warn("cache store failed", "tenant_id", tenantID, "error", err)
	}
}

type record struct {
	kind   domain.AnalysisKind
	defID  string
	tier   domain.Tier
	score  int
	text   string
	report any
	alerts []domain.Alert
}

// record persists an analysis and announces it on the bus. It returns the
// analysis id, or "" when nothing was stored.
func (s *Service) record(ctx context.Context, tenantID string, r record) string {
	if s.repo == nil && s.bus == nil {
		return ""
	}

	body, err := json.Marshal(r.report)
	if err != nil {
		slog.Error("failed to encode analysis", "kind", r.kind, "error", err)
		return ""
	}

	a := &domain.Analysis{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Kind:         r.kind,
		DefinitionID: r.defID,
		Tier:         r.tier,
		Score:        r.score,
		TextHash:     HashText(r.text),
		Report:       body,
		Alerts:       r.alerts,
		CreatedAt:    s.now().UTC(),
	}

	stored := ""
	if s.repo != nil {
		if err := s.repo.SaveAnalysis(ctx, tenantID, a); err != nil {
			slog.Error("failed to save analysis",
				"tenant_id", tenantID,
				"kind", r.kind,
				"error", err,
			)
		} else {
			stored = a.ID
		}
	}

	s.publish(ctx, tenantID, domain.TopicAnalysisCompleted, a)
	return stored
}

func (s *Service) publish(ctx context.Context, tenantID, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("failed to publish event",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

// alertEvent is the payload of discern.alert.raised.
type alertEvent struct {
	AnalysisID string       `json:"analysis_id,omitempty"`
	Alert      domain.Alert `json:"alert"`
	Score      int          `json:"score"`
	Level      domain.Tier  `json:"level"`
}

// HashText returns the hex SHA-256 of text. Raw text is never stored.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cacheKey(kind domain.AnalysisKind, defID, material string) string {
	return "analysis:" + HashText(string(kind)+"|"+defID+"|"+material)
}

// checkMode rejects input carried in the field of the other input mode.
func checkMode(def *domain.PatternDefinition, in scoring.Input) error {
	switch def.Mode() {
	case domain.ModeChecklist:
		if in.Selected == nil && in.Text != "" {
			return &domain.ValidationError{
				Field:   "selected",
				Message: fmt.Sprintf("detector %q is a checklist; send selected sign indices", def.ID),
				Err:     domain.ErrModeMismatch,
			}
		}
	case domain.ModeFreeText:
		if in.Text == "" && len(in.Selected) > 0 {
			return &domain.ValidationError{
				Field:   "text",
				Message: fmt.Sprintf("detector %q reads free text; send text", def.ID),
				Err:     domain.ErrModeMismatch,
			}
		}
		if strings.TrimSpace(in.Text) == "" {
			return domain.Invalid("text", "is required")
		}
	}
	return nil
}

func selectionKey(selected []int) string {
	parts := make([]string, len(selected))
	for i, n := range selected {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
