package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/feedback"
	"github.com/evolvekit/kb-evolve/internal/rules"
	"github.com/evolvekit/kb-evolve/internal/selfevolve"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes the evolution engine to AI agents.
type Server struct {
	orchestrator *evolution.Orchestrator
	jobs         *evolution.Store
	ruleStore    *rules.Store
	recorder     *feedback.Recorder
	selfRunner   *selfevolve.Runner
	mcp          *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(orchestrator *evolution.Orchestrator, jobs *evolution.Store, ruleStore *rules.Store, recorder *feedback.Recorder, selfRunner *selfevolve.Runner) *Server {
	s := &Server{
		orchestrator: orchestrator,
		jobs:         jobs,
		ruleStore:    ruleStore,
		recorder:     recorder,
		selfRunner:   selfRunner,
	}

	s.mcp = server.NewMCPServer(
		"kbevolve",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(runEvolutionTool, s.handleRunEvolution)
	s.mcp.AddTool(getApplicableRulesTool, s.handleGetApplicableRules)
	s.mcp.AddTool(recordFeedbackTool, s.handleRecordFeedback)
	s.mcp.AddTool(getEvolutionJobTool, s.handleGetEvolutionJob)
	s.mcp.AddTool(runSelfEvolutionTool, s.handleRunSelfEvolution)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
