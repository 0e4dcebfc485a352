package mcptools

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/opensource-finance/discern/internal/analysis"
)

const instructions = `Discern detects manipulation patterns in text by lexical matching.
Use detect_manipulation for a multi-category threat report, analyze_pattern
for one catalog detector, quick_truth_check for a truth/deceit split and
project_timeline to extrapolate domain scores. Results are heuristics over
surface wording, not judgements about intent.`

// NewServer creates an MCP server with every Discern tool registered.
// Calls are attributed to tenant.
func NewServer(svc *analysis.Service, tenant, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"discern",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	detect := NewDetectTool(svc, tenant)
	s.AddTool(detect.Definition(), detect.Handle)

	analyze := NewAnalyzeTool(svc, tenant)
	s.AddTool(analyze.Definition(), analyze.Handle)

	quick := NewQuickTool(svc, tenant)
	s.AddTool(quick.Definition(), quick.Handle)

	project := NewProjectTool(svc)
	s.AddTool(project.Definition(), project.Handle)

	list := NewListTool(svc)
	s.AddTool(list.Definition(), list.Handle)

	return s
}
