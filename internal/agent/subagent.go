package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/tools"
)

// Subagent defaults.
const (
	DefaultReviewConfidence = 0.7
	DefaultReviewBudget     = 5 * time.Second

	maxReviewChars   = 900
	maxArtifactChars = 2200
)

const reviewSystemPrompt = "You are a cautious assistant reviewing another agent's tool use. Keep output under 120 words."

// SubagentCoordinator runs a confidence-gated second-opinion pass over a
// tool result. The review is appended to the response; it never feeds
// the adaptive threshold.
type SubagentCoordinator struct {
	client        providers.Client
	minConfidence float64
	budget        time.Duration
	logger        *slog.Logger
}

// NewSubagentCoordinator wires the review client. minConfidence <= 0
// and budget <= 0 fall back to the defaults.
func NewSubagentCoordinator(client providers.Client, minConfidence float64, budget time.Duration, logger *slog.Logger) *SubagentCoordinator {
	if minConfidence <= 0 {
		minConfidence = DefaultReviewConfidence
	}
	if budget <= 0 {
		budget = DefaultReviewBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubagentCoordinator{client: client, minConfidence: minConfidence, budget: budget, logger: logger}
}

// Review returns a short second-opinion note, or "" when the gate does
// not open: the result must be a successful run carrying structured
// data (a reviewable artifact) and the decision confidence must clear
// the minimum.
func (c *SubagentCoordinator) Review(ctx context.Context, userMessage, toolName string, res *tools.Result, confidence float64) string {
	if c == nil || res == nil || !res.Success || len(res.Data) == 0 {
		return ""
	}
	if confidence < c.minConfidence {
		return ""
	}

	reviewCtx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	output := res.Output
	if len(output) > maxArtifactChars {
		output = output[:maxArtifactChars]
	}
	prompt := fmt.Sprintf("User request:\n%s\n\nPrimary tool: %s\nTool output:\n%s\n\nGive:\n1) one risk if any,\n2) one follow-up action.", userMessage, toolName, output)

	note, err := c.client.Chat(reviewCtx, []providers.Message{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: prompt},
	}, providers.ChatOptions{Temperature: 0.2, MaxTokens: 200})
	if err != nil {
		c.logger.Warn("subagent review failed", "tool", toolName, "error", err)
		return ""
	}
	note = strings.TrimSpace(note)
	if len(note) > maxReviewChars {
		note = note[:maxReviewChars]
	}
	return note
}
