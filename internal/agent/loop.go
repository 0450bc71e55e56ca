// Package agent implements the turn engine: per-message orchestration of
// memory recall, skill selection, entropy-gated tool routing, argument
// planning, bounded chaining, consolidation and hook dispatch.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/picoagent/internal/decision"
	"github.com/nextlevelbuilder/picoagent/internal/memory"
	"github.com/nextlevelbuilder/picoagent/internal/providers"
	"github.com/nextlevelbuilder/picoagent/internal/sessions"
	"github.com/nextlevelbuilder/picoagent/internal/skills"
	"github.com/nextlevelbuilder/picoagent/internal/tools"
	"github.com/nextlevelbuilder/picoagent/internal/tracing"
)

// Loop defaults.
const (
	DefaultTopK          = 5
	DefaultHistoryWindow = 12
	DefaultMaxToolChain  = 3
	DefaultChainMargin   = 0.1
	DefaultTurnDeadline  = 120 * time.Second
)

// Config tunes the turn engine.
type Config struct {
	TopK          int
	HistoryWindow int
	MaxToolChain  int
	// ChainMargin is how far below the threshold a chained decision's
	// entropy must stay before another tool runs.
	ChainMargin          float64
	TurnDeadline         time.Duration
	WorkspaceRoot        string
	ConsolidationEnabled bool
}

func (c *Config) normalize() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.MaxToolChain <= 0 {
		c.MaxToolChain = DefaultMaxToolChain
	}
	if c.ChainMargin <= 0 {
		c.ChainMargin = DefaultChainMargin
	}
	if c.TurnDeadline <= 0 {
		c.TurnDeadline = DefaultTurnDeadline
	}
}

// Deps are the collaborators the loop orchestrates. Client, Registry,
// Memory, Sessions and Adaptive are required; the rest are optional.
type Deps struct {
	Client   providers.Client
	Registry *tools.Registry
	Memory   *memory.Store
	Sessions *sessions.Manager
	Adaptive *decision.AdaptiveThreshold

	Skills     *skills.Library
	Hooks      *HookRegistry
	DualMemory *DualMemoryStore
	Subagent   *SubagentCoordinator
	Logger     *slog.Logger
}

// Request is one inbound message to process.
type Request struct {
	SessionKey string
	Channel    string
	ChatID     string
	Content    string
}

// Loop is the turn engine. One turn at a time per session key; turns for
// different sessions may interleave freely.
type Loop struct {
	client    providers.Client
	heuristic *providers.LocalHeuristicClient
	registry  *tools.Registry
	memory    *memory.Store
	sessions  *sessions.Manager
	library   *skills.Library
	scheduler *decision.Scheduler
	adaptive  *decision.AdaptiveThreshold
	hooks     *HookRegistry
	dual      *DualMemoryStore
	subagent  *SubagentCoordinator
	builder   *ContextBuilder
	logger    *slog.Logger
	cfg       Config
}

// NewLoop wires the turn engine.
func NewLoop(deps Deps, cfg Config) (*Loop, error) {
	if deps.Client == nil || deps.Registry == nil || deps.Memory == nil || deps.Sessions == nil || deps.Adaptive == nil {
		return nil, errors.New("agent: client, registry, memory, sessions and adaptive threshold are required")
	}
	cfg.normalize()
	if deps.Hooks == nil {
		deps.Hooks = NewHookRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Loop{
		client:    deps.Client,
		heuristic: providers.NewLocalHeuristicClient(),
		registry:  deps.Registry,
		memory:    deps.Memory,
		sessions:  deps.Sessions,
		library:   deps.Skills,
		scheduler: decision.NewScheduler(),
		adaptive:  deps.Adaptive,
		hooks:     deps.Hooks,
		dual:      deps.DualMemory,
		subagent:  deps.Subagent,
		builder:   NewContextBuilder(deps.Skills, deps.DualMemory),
		logger:    deps.Logger,
		cfg:       cfg,
	}, nil
}

// Hooks exposes the lifecycle registry for external observers.
func (l *Loop) Hooks() *HookRegistry { return l.hooks }

// Turn processes one inbound message and returns the response text. A
// skill pipeline explicitly invoked by the message expands into
// sequential turns whose outputs feed forward.
func (l *Loop) Turn(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", errors.New("empty message")
	}
	if req.SessionKey == "" {
		req.SessionKey = "default"
	}

	if steps := l.pipelineSteps(req.Content); len(steps) > 0 {
		return l.runPipeline(ctx, req, steps)
	}
	return l.turnOnce(ctx, req)
}

// pipelineSteps returns the ordered pipeline of an explicitly mentioned
// primary skill, or nil when the message does not start one.
func (l *Loop) pipelineSteps(text string) []*skills.Skill {
	if l.library == nil {
		return nil
	}
	selections, _ := l.library.SelectForMessage(text)
	if len(selections) == 0 || selections[0].Reason != skills.ReasonExplicit {
		return nil
	}
	primary := selections[0].Skill
	if len(primary.Pipeline) == 0 {
		return nil
	}
	byName := make(map[string]*skills.Skill)
	for _, s := range l.library.List() {
		byName[s.Name] = s
	}
	var steps []*skills.Skill
	for _, name := range primary.Pipeline {
		if s, ok := byName[name]; ok {
			steps = append(steps, s)
		}
	}
	return steps
}

// runPipeline executes pipeline steps as sequential turns. Each step's
// message names the step skill and carries the previous output forward.
func (l *Loop) runPipeline(ctx context.Context, req Request, steps []*skills.Skill) (string, error) {
	out, err := l.turnOnce(ctx, req)
	if err != nil {
		return "", err
	}
	for _, step := range steps {
		stepReq := req
		stepReq.Content = fmt.Sprintf("$%s\n\n%s", step.Name, out)
		out, err = l.turnOnce(ctx, stepReq)
		if err != nil {
			return "", fmt.Errorf("pipeline step %s: %w", step.Name, err)
		}
	}
	return out, nil
}

func (l *Loop) turnOnce(ctx context.Context, req Request) (string, error) {
	unlock := l.sessions.LockSession(req.SessionKey)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.TurnDeadline)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "agent.turn",
		attribute.String("session.id", req.SessionKey),
		attribute.String("channel", req.Channel))
	defer span.End()

	state := l.sessions.GetOrCreate(req.SessionKey)
	turnIndex := state.Len()
	state.Append("user", req.Content)
	if err := l.sessions.Save(); err != nil {
		l.logger.Warn("session save failed", "session", req.SessionKey, "error", err)
	}

	hc := HookContext{
		SessionID:   req.SessionKey,
		Channel:     req.Channel,
		TurnIndex:   turnIndex,
		UserMessage: req.Content,
	}
	l.hooks.Fire(ctx, EventTurnStart, hc)

	memories := l.recall(ctx, req.Content)
	active := l.selectSkills(req)

	system := l.builder.SystemPrompt(memories, active)
	history := recentHistory(state, l.cfg.HistoryWindow)
	msgs := l.builder.Messages(system, history, Runtime{Now: time.Now(), Channel: req.Channel, ChatID: req.ChatID}, req.Content)
	routing := RoutingText(msgs)

	if shouldReplyDirectly(req.Content) {
		return l.finishTurn(ctx, state, req, l.chatReply(ctx, msgs), hc), nil
	}

	docs := l.registry.Docs()
	scores := l.scoreTools(ctx, system, routing, docs)
	tau := l.adaptive.Current()

	d := l.scheduler.Decide(scores, tau)
	if tool := explicitSkillTool(active); tool != "" {
		if _, ok := l.registry.Lookup(tool); ok {
			// Explicit skill mention bypasses the entropy gate.
			d = decision.Decision{ToolName: tool, Confidence: 1, Probabilities: d.Probabilities}
		}
	}
	hc.Scores = scores
	hc.Decision = &d

	if d.Clarify {
		reply := clarifyText(d, tau)
		l.adaptive.Observe(false, true, d.EntropyBits)
		return l.finishTurn(ctx, state, req, reply, hc), nil
	}

	toolName := d.ToolName
	args, ok := l.planArgs(ctx, req.Content, toolName)
	if !ok && toolName == "shell" && tools.LooksLikeShellCommand(req.Content) {
		repaired := map[string]any{"command": strings.TrimSpace(req.Content)}
		if l.registry.Validate(toolName, repaired) == nil {
			args, ok = repaired, true
		}
	}
	if !ok {
		d.Clarify = true
		d.Reason = decision.ReasonArgsInvalid
		hc.Decision = &d
		reply := fmt.Sprintf("I could not derive valid arguments for `%s`. Could you restate the request with the details spelled out?", toolName)
		l.adaptive.Observe(false, true, d.EntropyBits)
		return l.finishTurn(ctx, state, req, reply, hc), nil
	}
	if toolName == "shell" {
		if cmd, _ := args["command"].(string); !tools.LooksLikeShellCommand(cmd) {
			// Prose routed at the shell reads better as a chat answer.
			l.adaptive.Observe(false, true, d.EntropyBits)
			return l.finishTurn(ctx, state, req, l.chatReply(ctx, msgs), hc), nil
		}
	}

	tc := tools.Context{
		WorkspaceRoot: l.cfg.WorkspaceRoot,
		SessionID:     req.SessionKey,
		Channel:       req.Channel,
		ChatID:        req.ChatID,
	}
	res := l.registry.Run(ctx, toolName, args, tc)
	executions := 1
	hc.ToolName, hc.ToolResult = toolName, res
	l.hooks.Fire(ctx, EventToolResult, hc)

	for res.Success && executions < l.cfg.MaxToolChain {
		next, nextRes, ran := l.chainStep(ctx, system, routing, req.Content, docs, toolName, res, tau, tc)
		if !ran {
			break
		}
		executions++
		d, toolName, res = next, next.ToolName, nextRes
		hc.Scores, hc.Decision = next.Probabilities, &d
		hc.ToolName, hc.ToolResult = toolName, res
		l.hooks.Fire(ctx, EventToolResult, hc)
	}

	l.adaptive.Observe(true, res.Success, d.EntropyBits)

	reply := l.synthesize(ctx, req.Content, toolName, res, memories)
	if note := l.subagent.Review(ctx, req.Content, toolName, res, d.Confidence); note != "" {
		reply += "\n\nSubagent review:\n" + note
	}
	return l.finishTurn(ctx, state, req, reply, hc), nil
}

// chainStep re-scores with the last output appended and runs the next
// tool when the chain gate opens: a different tool, decided with the
// configured entropy margin to spare.
func (l *Loop) chainStep(ctx context.Context, system, routing, userMessage string, docs map[string]string, prevTool string, prevRes *tools.Result, tau float64, tc tools.Context) (decision.Decision, *tools.Result, bool) {
	chained := routing + "\n\nTool result: " + prevRes.Output
	scores := l.scoreTools(ctx, system, chained, docs)
	next := l.scheduler.Decide(scores, tau)

	if next.Clarify || next.ToolName == prevTool {
		return next, nil, false
	}
	if next.EntropyBits > tau-l.cfg.ChainMargin {
		return next, nil, false
	}
	planText := userMessage + "\n\nPrevious tool output:\n" + prevRes.Output
	args, ok := l.planArgs(ctx, planText, next.ToolName)
	if !ok {
		return next, nil, false
	}
	return next, l.registry.Run(ctx, next.ToolName, args, tc), true
}

// finishTurn appends the assistant message, stores the turn in vector
// memory, schedules consolidation, persists and fires on_turn_end.
func (l *Loop) finishTurn(ctx context.Context, state *sessions.State, req Request, reply string, hc HookContext) string {
	state.Append("assistant", reply)
	l.rememberTurn(ctx, req, reply)

	if l.dual != nil && l.cfg.ConsolidationEnabled && l.dual.NeedsConsolidation(state) {
		// The flight blocks on the session lock until this turn releases it.
		l.dual.Schedule(context.WithoutCancel(ctx), req.SessionKey)
	}
	if err := l.sessions.Save(); err != nil {
		l.logger.Warn("session save failed", "session", req.SessionKey, "error", err)
	}

	hc.Response = reply
	l.hooks.Fire(ctx, EventTurnEnd, hc)
	return reply
}

func (l *Loop) recall(ctx context.Context, text string) []string {
	vecs, err := l.client.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		l.logger.Warn("embed for recall failed", "error", err)
		return nil
	}
	hits, err := l.memory.Recall(vecs[0], l.cfg.TopK, time.Now())
	if err != nil {
		l.logger.Warn("memory recall failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Record.Text)
	}
	return out
}

func (l *Loop) selectSkills(req Request) []skills.Selection {
	if l.library == nil {
		return nil
	}
	selections, err := l.library.SelectForMessage(req.Content)
	if err != nil {
		l.logger.Warn("skill selection degraded", "error", err)
	}
	if len(selections) > 0 {
		names := make([]string, 0, len(selections))
		for _, sel := range selections {
			names = append(names, sel.Skill.Name)
		}
		if err := l.library.RecordUse(req.SessionKey, time.Now(), names...); err != nil {
			l.logger.Warn("skill telemetry failed", "error", err)
		}
	}
	return selections
}

// explicitSkillTool returns the declared tool of an explicitly mentioned
// primary skill, for the scheduler short-circuit.
func explicitSkillTool(active []skills.Selection) string {
	if len(active) == 0 || active[0].Reason != skills.ReasonExplicit {
		return ""
	}
	return active[0].Skill.Tool
}

func (l *Loop) scoreTools(ctx context.Context, system, routing string, docs map[string]string) map[string]float64 {
	scores, err := l.client.ScoreTools(ctx, system, routing, docs)
	if err != nil {
		l.logger.Warn("provider scoring failed, using heuristic", "error", err)
		scores, _ = l.heuristic.ScoreTools(ctx, system, routing, docs)
	}
	return scores
}

// planArgs asks the provider for arguments and validates them, falling
// back to the deterministic heuristic planner on error or invalid args.
func (l *Loop) planArgs(ctx context.Context, text, toolName string) (map[string]any, bool) {
	doc := ""
	if desc, ok := l.registry.Lookup(toolName); ok {
		doc = desc.Description
	}
	args, err := l.client.PlanToolArgs(ctx, text, toolName, doc)
	if err == nil && l.registry.Validate(toolName, args) == nil {
		return args, true
	}
	if err != nil {
		l.logger.Warn("argument planning failed, using heuristic", "tool", toolName, "error", err)
	}
	args, err = l.heuristic.PlanToolArgs(ctx, text, toolName, doc)
	if err == nil && l.registry.Validate(toolName, args) == nil {
		return args, true
	}
	return nil, false
}

func (l *Loop) synthesize(ctx context.Context, userMessage, toolName string, res *tools.Result, memories []string) string {
	body := res.Output
	if !res.Success {
		body = "error: " + res.Error
	}
	reply, err := l.client.SynthesizeResponse(ctx, userMessage, toolName, body, memories)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			l.logger.Warn("synthesis failed, using fallback text", "error", err)
		}
		return fmt.Sprintf("Tool `%s` result:\n%s", toolName, body)
	}
	return reply
}

func (l *Loop) chatReply(ctx context.Context, msgs []providers.Message) string {
	reply, err := l.client.Chat(ctx, msgs, providers.ChatOptions{Temperature: 0.4, MaxTokens: 600})
	if err != nil || strings.TrimSpace(reply) == "" {
		l.logger.Warn("chat reply failed", "error", err)
		return "Sorry, I could not produce a response right now. Please try again."
	}
	return strings.TrimSpace(reply)
}

const rememberClip = 2000

// rememberTurn stores one record combining the user message and the
// final response. A dimension mismatch (provider change) is logged and
// skipped; the store stays intact.
func (l *Loop) rememberTurn(ctx context.Context, req Request, reply string) {
	clipped := reply
	if len(clipped) > rememberClip {
		clipped = clipped[:rememberClip]
	}
	text := "User: " + req.Content + "\nAssistant: " + clipped
	vecs, err := l.client.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		l.logger.Warn("embed for memory store failed", "error", err)
		return
	}
	tags := map[string]string{"type": "turn"}
	if req.Channel != "" {
		tags["channel"] = req.Channel
	}
	if _, err := l.memory.Store(text, vecs[0], time.Now(), tags); err != nil {
		l.logger.Warn("memory store failed", "error", err)
	}
}

// recentHistory returns the last window messages excluding the current
// user message, which the context builder appends separately.
func recentHistory(state *sessions.State, window int) []sessions.Message {
	msgs := state.History(window + 1)
	if len(msgs) > 0 {
		msgs = msgs[:len(msgs)-1]
	}
	return msgs
}

func clarifyText(d decision.Decision, tau float64) string {
	cands := d.TopCandidates(3)
	if len(cands) == 0 {
		return "I am not sure what you want me to do. Could you rephrase with a concrete action?"
	}
	parts := make([]string, 0, len(cands))
	for _, c := range cands {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", c.Name, c.Probability))
	}
	return fmt.Sprintf(
		"I am not confident enough to choose a tool. Top candidates: %s (entropy=%.2f, threshold=%.2f). Please clarify what action you want.",
		strings.Join(parts, ", "), d.EntropyBits, tau,
	)
}

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"thanks": true, "thank you": true, "good morning": true,
	"good afternoon": true, "good evening": true,
}

var toolIntentTokens = []string{
	"run", "search", "find", "read", "write", "list", "open", "fetch",
	"download", "install", "delete", "create", "schedule", "remind",
}

// shouldReplyDirectly short-circuits greetings and other short small
// talk straight to chat, skipping scoring entirely.
func shouldReplyDirectly(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return false
	}
	if greetings[lowered] {
		return true
	}
	for g := range greetings {
		if strings.HasPrefix(lowered, g+"!") || strings.HasPrefix(lowered, g+",") || strings.HasPrefix(lowered, g+".") {
			return true
		}
	}
	if tools.LooksLikeShellCommand(lowered) {
		return false
	}
	if strings.ContainsAny(lowered, "/\\") {
		return false
	}
	fields := strings.Fields(lowered)
	for _, f := range fields {
		for _, tok := range toolIntentTokens {
			if strings.Trim(f, "?!.,") == tok {
				return false
			}
		}
	}
	return len(fields) <= 3
}
