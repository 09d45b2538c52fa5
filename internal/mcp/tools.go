package mcp

import "github.com/mark3labs/mcp-go/mcp"

// runEvolutionTool defines the run_evolution MCP tool.
var runEvolutionTool = mcp.NewTool("run_evolution",
	mcp.WithDescription("Run the evolution pipeline. Without a document_id, every document with enough unprocessed bad feedback is evolved; with one, only that document."),
	mcp.WithString("document_id",
		mcp.Description("Evolve only this document"),
	),
	mcp.WithBoolean("force",
		mcp.Description("Run even if the document is below the bad-feedback threshold (requires document_id)"),
	),
)

// getApplicableRulesTool defines the get_applicable_rules MCP tool.
var getApplicableRulesTool = mcp.NewTool("get_applicable_rules",
	mcp.WithDescription("Get the enabled interpretation rules that apply to a query against a document, ordered by score."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("Document the query targets"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("The user query to match trigger patterns against"),
	),
)

// recordFeedbackTool defines the record_feedback MCP tool.
var recordFeedbackTool = mcp.NewTool("record_feedback",
	mcp.WithDescription("Record a good/bad rating for a response generated from a document. Adjusts the scores of any rules that were applied."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("Document the response was generated from"),
	),
	mcp.WithString("rating",
		mcp.Required(),
		mcp.Description("The rating"),
		mcp.Enum("good", "bad"),
	),
	mcp.WithString("message_id",
		mcp.Description("Identifier of the rated message"),
	),
	mcp.WithString("user_query",
		mcp.Description("The query that produced the response"),
	),
	mcp.WithString("response",
		mcp.Description("The response that was rated"),
	),
	mcp.WithString("comment",
		mcp.Description("Why the response was rated this way"),
	),
	mcp.WithString("rule_ids",
		mcp.Description("Comma-separated ids of rules applied to the response"),
	),
)

// getEvolutionJobTool defines the get_evolution_job MCP tool.
var getEvolutionJobTool = mcp.NewTool("get_evolution_job",
	mcp.WithDescription("Inspect an evolution job: its status, evaluated candidates, and winner."),
	mcp.WithString("job_id",
		mcp.Required(),
		mcp.Description("The job id"),
	),
)

// runSelfEvolutionTool defines the run_self_evolution MCP tool.
var runSelfEvolutionTool = mcp.NewTool("run_self_evolution",
	mcp.WithDescription("Probe a document with synthetic questions, diagnose weaknesses, and adopt interpretation rules that measurably help."),
	mcp.WithString("document_id",
		mcp.Required(),
		mcp.Description("Document to probe"),
	),
)
