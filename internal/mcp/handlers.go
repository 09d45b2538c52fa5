package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/feedback"
)

// handleRunEvolution drives the batch pipeline and reports the terminal jobs.
func (s *Server) handleRunEvolution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID := request.GetString("document_id", "")
	force := request.GetBool("force", false)

	var (
		jobs []*evolution.Job
		err  error
	)
	if documentID != "" {
		var job *evolution.Job
		job, err = s.orchestrator.RunDocument(ctx, documentID, force)
		if job != nil {
			jobs = append(jobs, job)
		}
	} else {
		jobs, err = s.orchestrator.RunAll(ctx)
	}
	if err != nil && len(jobs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("evolution run failed: %v", err)), nil
	}
	if len(jobs) == 0 {
		return mcp.NewToolResultText("Nothing to evolve: no document has enough unprocessed bad feedback."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ran %d evolution job(s):\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&sb, "\n- Job %s (document %s): %s", job.ID, job.DocumentID, job.Status)
		switch {
		case job.Status == evolution.StatusFailed:
			fmt.Fprintf(&sb, "\n  Error: %s", job.Error)
		case job.WinnerID != "":
			fmt.Fprintf(&sb, "\n  Winner: %s (%d candidates evaluated)", job.WinnerID, len(job.Candidates))
		default:
			sb.WriteString("\n  No candidate beat the baseline; content kept as-is.")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetApplicableRules matches enabled rules against a query.
func (s *Server) handleGetApplicableRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	applicable, err := s.ruleStore.ApplicableRules(ctx, documentID, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("matching rules failed: %v", err)), nil
	}
	if len(applicable) == 0 {
		return mcp.NewToolResultText("No applicable rules for this query."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d applicable rule(s):\n", len(applicable))
	for _, rule := range applicable {
		fmt.Fprintf(&sb, "\n- [%s] (score %.2f, id %s)\n  %s", rule.RuleType, rule.Score, rule.ID, rule.Content)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleRecordFeedback records a rating and applies ledger adjustments.
func (s *Server) handleRecordFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}
	ratingStr, err := request.RequireString("rating")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: rating"), nil
	}
	rating := feedback.Rating(ratingStr)
	if !rating.Valid() {
		return mcp.NewToolResultError("rating must be good or bad"), nil
	}

	var ruleIDs []string
	for _, id := range strings.Split(request.GetString("rule_ids", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ruleIDs = append(ruleIDs, id)
		}
	}

	saved, err := s.recorder.Record(ctx, feedback.Signal{
		DocumentID: documentID,
		MessageID:  request.GetString("message_id", ""),
		UserQuery:  request.GetString("user_query", ""),
		Response:   request.GetString("response", ""),
		Rating:     rating,
		Comment:    request.GetString("comment", ""),
	}, ruleIDs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recording feedback failed: %v", err)), nil
	}

	msg := fmt.Sprintf("Recorded %s feedback %s for document %s.", saved.Rating, saved.ID, saved.DocumentID)
	if len(ruleIDs) > 0 {
		msg += fmt.Sprintf(" Adjusted %d rule score(s).", len(ruleIDs))
	}
	return mcp.NewToolResultText(msg), nil
}

// handleGetEvolutionJob returns a job record as JSON.
func (s *Server) handleGetEvolutionJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: job_id"), nil
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetching job failed: %v", err)), nil
	}
	if job == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no job with id %q", jobID)), nil
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding job failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleRunSelfEvolution runs the synthetic-question improvement pass.
func (s *Server) handleRunSelfEvolution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: document_id"), nil
	}

	report, err := s.selfRunner.Run(ctx, documentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("self-evolution failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Self-evolution for document %s:\n", documentID)
	fmt.Fprintf(&sb, "- %d synthetic question(s) generated\n", len(report.Questions))
	fmt.Fprintf(&sb, "- %d weakness(es) diagnosed\n", len(report.Weaknesses))
	fmt.Fprintf(&sb, "- %d rule(s) adopted\n", len(report.AdoptedRuleIDs))
	for _, w := range report.Weaknesses {
		fmt.Fprintf(&sb, "\n[%s] %s (score %.2f)", w.Kind, w.Question, w.ScoreWithout)
		if w.AdoptedRuleID != "" {
			fmt.Fprintf(&sb, " -> adopted rule %s", w.AdoptedRuleID)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}
