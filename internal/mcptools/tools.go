package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/projection"
	"github.com/opensource-finance/discern/internal/scoring"
)

// DetectTool handles the detect_manipulation MCP tool.
type DetectTool struct {
	svc    *analysis.Service
	tenant string
}

// NewDetectTool creates a DetectTool.
func NewDetectTool(svc *analysis.Service, tenant string) *DetectTool {
	return &DetectTool{svc: svc, tenant: tenant}
}

// Definition returns the MCP tool definition for detect_manipulation.
func (t *DetectTool) Definition() mcp.Tool {
	return mcp.NewTool("detect_manipulation",
		mcp.WithDescription(
			"Scan text for manipulation patterns (urgency, scarcity, authority, social proof, "+
				"fear, emotional appeal, false dichotomy). Returns a threat report with a "+
				"manipulation score, a LOW/MEDIUM/HIGH level and neutralization protocols.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The text to analyse"),
		),
	)
}

// Handle processes the detect_manipulation tool call.
func (t *DetectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	report, err := t.svc.Detect(ctx, t.tenant, text)
	if err != nil {
		return errorResult("detection", err), nil
	}
	return jsonResult(report)
}

// AnalyzeTool handles the analyze_pattern MCP tool.
type AnalyzeTool struct {
	svc    *analysis.Service
	tenant string
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(svc *analysis.Service, tenant string) *AnalyzeTool {
	return &AnalyzeTool{svc: svc, tenant: tenant}
}

// Definition returns the MCP tool definition for analyze_pattern.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_pattern",
		mcp.WithDescription(
			"Run one catalog detector. Free-text detectors (e.g. gaslighting) take 'text'; "+
				"checklist detectors (love-bombing, stonewalling) take 'selected' sign indices. "+
				"Use list_detectors to discover ids and input modes.",
		),
		mcp.WithString("detector",
			mcp.Required(),
			mcp.Description("Detector id, e.g. gaslighting"),
		),
		mcp.WithString("text",
			mcp.Description("Text for free_text detectors"),
		),
		mcp.WithArray("selected",
			mcp.Description("Zero-based sign indices for checklist detectors"),
			mcp.Items(map[string]any{"type": "integer"}),
		),
	)
}

// Handle processes the analyze_pattern tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("detector", "")
	if id == "" {
		return mcp.NewToolResultError("'detector' is required"), nil
	}
	selected, err := intsArg(req, "selected")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	verdict, err := t.svc.Analyze(ctx, t.tenant, id, scoring.Input{
		Text:     req.GetString("text", ""),
		Selected: selected,
	})
	if err != nil {
		return errorResult("analysis", err), nil
	}
	return jsonResult(verdict)
}

// QuickTool handles the quick_truth_check MCP tool.
type QuickTool struct {
	svc    *analysis.Service
	tenant string
}

// NewQuickTool creates a QuickTool.
func NewQuickTool(svc *analysis.Service, tenant string) *QuickTool {
	return &QuickTool{svc: svc, tenant: tenant}
}

// Definition returns the MCP tool definition for quick_truth_check.
func (t *QuickTool) Definition() mcp.Tool {
	return mcp.NewTool("quick_truth_check",
		mcp.WithDescription(
			"Score text on the truth/deceit axis from its discourse markers. "+
				"Returns truth and deceit percentages, a confidence and the detected turns.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The text to check"),
		),
	)
}

// Handle processes the quick_truth_check tool call.
func (t *QuickTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	verdict, err := t.svc.Quick(ctx, t.tenant, text)
	if err != nil {
		return errorResult("truth check", err), nil
	}
	return jsonResult(verdict)
}

// ProjectTool handles the project_timeline MCP tool.
type ProjectTool struct {
	svc *analysis.Service
}

// NewProjectTool creates a ProjectTool.
func NewProjectTool(svc *analysis.Service) *ProjectTool {
	return &ProjectTool{svc: svc}
}

// Definition returns the MCP tool definition for project_timeline.
func (t *ProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("project_timeline",
		mcp.WithDescription(
			"Project seven domain scores (physical, financial, mental, emotional, social, "+
				"creative, integration; each 0-100) forward in time. Returns projected points, "+
				"milestones and the bottleneck domain.",
		),
		mcp.WithObject("domains",
			mcp.Required(),
			mcp.Description("Map of domain name to score, e.g. {\"physical\": 40, ...}"),
		),
		mcp.WithNumber("pattern_recognition",
			mcp.Description("Pattern recognition score 0-100 (default: mean of the domains)"),
		),
		mcp.WithNumber("time_horizon",
			mcp.Description("Days to project (default: 90)"),
		),
	)
}

// Handle processes the project_timeline tool call.
func (t *ProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["domains"].(map[string]any)
	if !ok || len(raw) == 0 {
		return mcp.NewToolResultError("'domains' is required"), nil
	}
	domains := make(map[string]float64, len(raw))
	for name, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("domain %q must be a number", name)), nil
		}
		domains[name] = f
	}

	pr := projection.Request{Domains: domains}
	if v, ok := floatArg(req, "pattern_recognition"); ok {
		pr.PatternRecognition = &v
	}
	if h := intArg(req, "time_horizon", 0); h > 0 {
		pr.TimeHorizon = &h
	}

	result, err := t.svc.Project(ctx, pr)
	if err != nil {
		return errorResult("projection", err), nil
	}
	return jsonResult(result)
}

// ListTool handles the list_detectors MCP tool.
type ListTool struct {
	svc *analysis.Service
}

// NewListTool creates a ListTool.
func NewListTool(svc *analysis.Service) *ListTool {
	return &ListTool{svc: svc}
}

// Definition returns the MCP tool definition for list_detectors.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("list_detectors",
		mcp.WithDescription("List the catalog detectors with their id, title, input mode and item count."),
	)
}

// Handle processes the list_detectors tool call.
func (t *ListTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.svc.Catalog().Summaries())
}
