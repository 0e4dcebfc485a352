package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/projection"
)

const highThreat = "Act now! Limited time, only today, exclusive last chance before the deadline, everyone is running out."

func newTestService(t *testing.T) *analysis.Service {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	return analysis.New(c, analysis.Options{})
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode(t *testing.T, r *mcp.CallToolResult, dst any) {
	t.Helper()
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), dst); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
}

func TestDefinitions(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		tool     mcp.Tool
		name     string
		required []string
	}{
		{NewDetectTool(svc, "t").Definition(), "detect_manipulation", []string{"text"}},
		{NewAnalyzeTool(svc, "t").Definition(), "analyze_pattern", []string{"detector"}},
		{NewQuickTool(svc, "t").Definition(), "quick_truth_check", []string{"text"}},
		{NewProjectTool(svc).Definition(), "project_timeline", []string{"domains"}},
		{NewListTool(svc).Definition(), "list_detectors", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.name)
			}
			for _, r := range tt.required {
				found := false
				for _, got := range tt.tool.InputSchema.Required {
					if got == r {
						found = true
					}
				}
				if !found {
					t.Errorf("%q should be required", r)
				}
			}
		})
	}
}

func TestDetectTool(t *testing.T) {
	tool := NewDetectTool(newTestService(t), domain.DefaultTenant)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]any{"text": highThreat}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	var report domain.ThreatReport
	decode(t, res, &report)
	if report.ManipulationScore != 80 || report.ThreatLevel != domain.TierHigh {
		t.Errorf("unexpected report: score=%d level=%s", report.ManipulationScore, report.ThreatLevel)
	}

	res, _ = tool.Handle(ctx, makeReq(map[string]any{}))
	if !res.IsError {
		t.Error("expected tool error for missing text")
	}
}

func TestAnalyzeTool(t *testing.T) {
	tool := NewAnalyzeTool(newTestService(t), domain.DefaultTenant)
	ctx := context.Background()

	t.Run("FreeText", func(t *testing.T) {
		res, _ := tool.Handle(ctx, makeReq(map[string]any{
			"detector": "gaslighting",
			"text":     "That never happened, you're imagining it.",
		}))
		var v domain.Verdict
		decode(t, res, &v)
		if v.Count != 1 || v.Tier != domain.TierWarn {
			t.Errorf("unexpected verdict: count=%d tier=%s", v.Count, v.Tier)
		}
	})

	t.Run("Checklist", func(t *testing.T) {
		res, _ := tool.Handle(ctx, makeReq(map[string]any{
			"detector": "love-bombing",
			"selected": []any{float64(0), float64(1)},
		}))
		var v domain.Verdict
		decode(t, res, &v)
		if v.Count != 2 || v.Checklist == nil {
			t.Errorf("unexpected verdict: %+v", v)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		cases := []map[string]any{
			{},
			{"detector": "missing", "text": "x"},
			{"detector": "love-bombing", "selected": []any{"zero"}},
			{"detector": "love-bombing", "selected": []any{float64(99)}},
		}
		for _, args := range cases {
			res, err := tool.Handle(ctx, makeReq(args))
			if err != nil {
				t.Fatalf("Handle returned Go error for %v: %v", args, err)
			}
			if !res.IsError {
				t.Errorf("expected tool error for %v", args)
			}
		}
	})
}

func TestQuickTool(t *testing.T) {
	tool := NewQuickTool(newTestService(t), domain.DefaultTenant)

	res, _ := tool.Handle(context.Background(), makeReq(map[string]any{"text": "I honestly don't know."}))
	var v domain.Verdict
	decode(t, res, &v)
	if v.Discourse == nil || v.Discourse.Truth+v.Discourse.Deceit != 100 {
		t.Errorf("unexpected discourse detail: %+v", v.Discourse)
	}
}

func TestProjectTool(t *testing.T) {
	tool := NewProjectTool(newTestService(t))
	ctx := context.Background()

	domains := map[string]any{}
	for _, d := range projection.Domains {
		domains[d] = float64(40)
	}
	domains["financial"] = float64(10)

	res, _ := tool.Handle(ctx, makeReq(map[string]any{
		"domains":      domains,
		"time_horizon": float64(30),
	}))
	var out projection.Result
	decode(t, res, &out)
	if out.Bottleneck.PrimaryBottleneck != "financial" {
		t.Errorf("expected financial bottleneck, got %q", out.Bottleneck.PrimaryBottleneck)
	}

	res, _ = tool.Handle(ctx, makeReq(map[string]any{"domains": map[string]any{"physical": float64(40)}}))
	if !res.IsError || !strings.Contains(resultText(res), "missing domain") {
		t.Errorf("expected missing domain error, got %q", resultText(res))
	}

	res, _ = tool.Handle(ctx, makeReq(map[string]any{"domains": map[string]any{"physical": "high"}}))
	if !res.IsError {
		t.Error("expected error for non-numeric domain")
	}
}

func TestListTool(t *testing.T) {
	svc := newTestService(t)
	res, _ := NewListTool(svc).Handle(context.Background(), makeReq(nil))

	var list []domain.DetectorSummary
	decode(t, res, &list)
	if len(list) != svc.Catalog().Len() {
		t.Fatalf("expected %d detectors, got %d", svc.Catalog().Len(), len(list))
	}
	if list[0].ID != "gaslighting" || list[0].InputMode != domain.ModeFreeText {
		t.Errorf("unexpected first entry: %+v", list[0])
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer(newTestService(t), domain.DefaultTenant, "test")
	if s == nil {
		t.Fatal("expected server")
	}
}
