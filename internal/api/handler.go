package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/projection"
	"github.com/opensource-finance/discern/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *analysis.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *analysis.Service, version string) *Handler {
	return &Handler{svc: svc, version: version}
}

// DetectRequest is the request body for POST /detect.
// Context is accepted for compatibility and not scored.
type DetectRequest struct {
	Text    string `json:"text" validate:"required"`
	Context string `json:"context,omitempty"`
}

// Detect handles POST /detect requests.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[DetectRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.Detect(r.Context(), GetTenantID(r.Context()), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Project handles POST /project requests.
func (h *Handler) Project(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[projection.Request](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Project(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListDetectors returns the catalog listing.
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	detectors := h.svc.Catalog().Summaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"detectors": detectors,
		"count":     len(detectors),
		"version":   h.svc.Catalog().Version(),
	})
}

// GetDetector returns one full detector definition.
func (h *Handler) GetDetector(w http.ResponseWriter, r *http.Request) {
	def, ok := h.svc.Catalog().Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "detector not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// AnalyzeRequest is the request body for POST /detectors/{id}/analyze.
// Free-text detectors read Text; checklist detectors read Selected.
type AnalyzeRequest struct {
	Text     string `json:"text,omitempty"`
	Selected []int  `json:"selected,omitempty"`
}

// Analyze runs one catalog detector.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[AnalyzeRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	verdict, err := h.svc.Analyze(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), scoring.Input{
		Text:     req.Text,
		Selected: req.Selected,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// QuickRequest is the request body for POST /quick.
type QuickRequest struct {
	Text string `json:"text" validate:"required"`
}

// Quick handles POST /quick requests.
func (h *Handler) Quick(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[QuickRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	verdict, err := h.svc.Quick(r.Context(), GetTenantID(r.Context()), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message string            `json:"message" validate:"required"`
	History []domain.ChatTurn `json:"history,omitempty" validate:"omitempty,dive"`
}

// Chat handles POST /chat requests.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[ChatRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := h.svc.Chat(r.Context(), GetTenantID(r.Context()), req.Message, req.History)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// GetAnalysis retrieves a stored analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.GetAnalysis(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListAnalyses returns the newest stored analyses, optionally filtered by
// ?kind= and bounded by ?limit=.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	kind := domain.AnalysisKind(r.URL.Query().Get("kind"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, domain.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	list, err := h.svc.ListAnalyses(r.Context(), GetTenantID(r.Context()), kind, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": list,
		"count":    len(list),
	})
}

// ListRules returns the escalation rules that apply to the tenant.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.svc.ListRules(GetTenantID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string      `json:"id" validate:"required,max=64"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Expression  string      `json:"expression" validate:"required"`
	Severity    domain.Tier `json:"severity,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	Enabled     *bool       `json:"enabled,omitempty"`
}

// CreateRule compiles a rule, stores it for the tenant and loads it.
// The rule applies immediately; no reload is needed.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, err := bindJSON[CreateRuleRequest](r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rule := &domain.EscalationRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    req.Severity,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if err := h.svc.CreateRule(r.Context(), GetTenantID(r.Context()), rule); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rule created", "id", rule.ID, "tenant_id", rule.TenantID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// ReloadRules reloads the tenant's rules from the repository into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	count, err := h.svc.ReloadRules(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rules reloaded from database", "tenant_id", tenantID, "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"catalog": map[string]int{
			"detectors": h.svc.Catalog().Len(),
		},
	})
}

// Ready pings the configured backends and reports 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	failures := h.svc.Check(r.Context())
	if len(failures) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
		})
		return
	}

	checks := make(map[string]string, len(failures))
	for name, err := range failures {
		slog.Warn("readiness check failed", "component", name, "error", err)
		checks[name] = err.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status": "unavailable",
		"checks": checks,
	})
}

// writeError maps service errors onto HTTP statuses. Internal faults are
// logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, analysis.ErrNoRepository), errors.Is(err, analysis.ErrNoRulesEngine):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
