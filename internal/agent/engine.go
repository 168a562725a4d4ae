package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scout/internal/citation"
	"scout/internal/entity"
	"scout/internal/intent"
	"scout/internal/logging"
	"scout/internal/router"
	"scout/internal/search"
	"scout/internal/tools"
	"scout/internal/types"
)

// Engine orchestrates agent runs over a Services value.
type Engine struct {
	svc        Services
	classifier *intent.Classifier
	router     *router.Router
	log        *zap.Logger
}

// NewEngine builds the orchestrator.
func NewEngine(svc Services) *Engine {
	return &Engine{
		svc:        svc,
		classifier: intent.NewClassifier(svc.Aux),
		router:     router.New(svc.Aux),
		log:        logging.Named("agent"),
	}
}

// Enrich answers one request. Recoverable failures inside the loop are
// downgraded; only model-transport and context errors propagate.
func (e *Engine) Enrich(ctx context.Context, req Request) (*types.EnrichmentResult, error) {
	return e.run(ctx, req)
}

// runState is the per-run mutable context shared by loop phases.
type runState struct {
	req            Request
	caps           Caps
	cls            intent.Classification
	routerOut      types.RouterOutput
	entityRef      *entity.Ref
	trusted        []types.Fact
	defaultSubject *types.Subject
	toolRun        *tools.Run
	messages       []types.ChatMessage
	webResults     []search.Result
	log            *zap.Logger
}

func (e *Engine) run(ctx context.Context, req Request) (*types.EnrichmentResult, error) {
	runID := uuid.NewString()[:8]
	log := e.log.With(zap.String("run", runID), zap.Int("depth", req.depth))
	log.Info("run started",
		zap.String("query", req.Query),
		zap.String("intensity", req.Intensity),
		zap.String("session", req.SessionID))

	st := e.setup(ctx, req, log)

	finalText, candidate, err := e.loop(ctx, st)
	if err != nil {
		return nil, err
	}

	result := e.finalize(ctx, st, finalText, candidate)

	if req.SessionID != "" {
		// Summarise before trimming: the summariser needs the full log
		// to judge whether the window was exceeded.
		if req.Username != "" {
			e.summarize(ctx, req.SessionID, req.Username)
		}
		e.svc.History.Trim(req.SessionID)
	}

	log.Info("run finished",
		zap.Int("variables", len(result.Variables)),
		zap.String("intent", string(result.Intent)))
	return result, nil
}

// setup runs the pre-pass: intent, router, entity resolution, trusted
// facts, tool-run construction and the opening messages.
func (e *Engine) setup(ctx context.Context, req Request, log *zap.Logger) *runState {
	cls := e.classifier.Classify(ctx, req.Query)
	routerOut := e.router.Infer(ctx, req.Query, req.Entity, req.Variables)

	var entityRef *entity.Ref
	var trusted []types.Fact
	if req.Entity != "" {
		ref, err := e.svc.Resolver.TryResolveExisting(ctx, req.Entity)
		if err != nil {
			log.Warn("entity lookup failed", zap.Error(err))
		} else if ref != nil {
			entityRef = ref
			if facts, err := e.svc.Facts.GetFactsForEntity(ctx, ref.ID); err == nil {
				trusted = facts
			}
		}
	}

	caps := ResolveCaps(req.Intensity, e.svc.Config.Research.MaxSteps, e.svc.Config.Research.MaxWebSearches)

	toolRun := tools.NewRun(e.svc.Registry, tools.Deps{
		Backend:  e.svc.Backend,
		Fetcher:  e.svc.Fetcher,
		Resolver: e.svc.Resolver,
		Facts:    e.svc.Facts,
		Aux:      e.svc.Aux,
		Research: e.nestedResearch,
		Now:      e.svc.Now,
	}, tools.RunParams{
		MaxWebSearches:  caps.MaxWebSearches,
		RelevanceTokens: tools.RelevanceTokens(req.Query, req.Entity, cls.Target, req.Variables, routerOut.VocabHints),
		Depth:           req.depth,
	})

	system := buildSystemPrompt(e.svc.Now(), caps, routerOut)
	intro := buildIntroMessage(req, cls, trusted)

	messages := []types.ChatMessage{types.SystemMessage(system)}
	if req.SessionID != "" {
		messages = append(messages, e.svc.History.Get(req.SessionID)...)
	}
	introMsg := types.UserMessage(intro)
	messages = append(messages, introMsg)
	e.appendHistory(req.SessionID, introMsg)

	return &runState{
		req:            req,
		caps:           caps,
		cls:            cls,
		routerOut:      routerOut,
		entityRef:      entityRef,
		trusted:        trusted,
		defaultSubject: e.defaultSubject(entityRef, req.Entity, cls.Target, routerOut),
		toolRun:        toolRun,
		messages:       messages,
		log:            log,
	}
}

// loop is the reason-act loop. It returns the model's final text and,
// when it parsed, the candidate result with subjects and constraints
// already applied.
func (e *Engine) loop(ctx context.Context, st *runState) (string, *candidateResult, error) {
	defs := e.svc.Registry.Definitions()

	var finalText string
	var accepted *candidateResult
	turnsCompleted := 0

	for step := 0; step < st.caps.MaxSteps; step++ {
		resp, err := e.svc.Reasoner.Chat(ctx, st.messages, defs)
		if err != nil {
			st.log.Error("reasoner call failed", zap.Error(err))
			if turnsCompleted == 0 {
				// Nothing to degrade to: the model never answered.
				return "", nil, fmt.Errorf("agent: reasoner unavailable: %w", err)
			}
			return finalText, accepted, nil
		}
		turnsCompleted++

		assistantMsg := types.ChatMessage{
			Role:      types.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		}
		st.messages = append(st.messages, assistantMsg)
		e.appendHistory(st.req.SessionID, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Text
			candidate, ok := parseCandidate(finalText)
			if !ok {
				// The finalizer owns unparseable output.
				return finalText, nil, nil
			}

			applyDefaultSubject(candidate, st.defaultSubject)
			dropForbidden(candidate, st.routerOut.AttrConstraints)

			stepsRemain := step < st.caps.MaxSteps-1
			if missingSubjects(candidate) {
				if stepsRemain {
					e.nudge(st, subjectNudge)
					continue
				}
				return finalText, candidate, nil
			}

			gate := citation.Evaluate(candidate.Variables, st.routerOut.EvidencePolicy)
			if !gate.OK && stepsRemain {
				st.log.Debug("citation gate failed", zap.Strings("issues", gate.Issues))
				e.nudge(st, citation.NudgeMessage(gate))
				continue
			}
			// Accepted, or last step: proceed with the best available
			// answer.
			return finalText, candidate, nil
		}

		// Tool calls execute strictly in order; each result message
		// directly follows the assistant message that requested it.
		for _, call := range resp.ToolCalls {
			payload := st.toolRun.Execute(ctx, call)
			toolMsg := types.ToolResultMessage(call.ID, payload)
			st.messages = append(st.messages, toolMsg)
			e.appendHistory(st.req.SessionID, toolMsg)

			if call.Name == "web_search" {
				harvestWebResults(payload, st)
			}
		}

		if msg := buildOutcomesMessage(st.toolRun.Outcomes()); msg != "" {
			e.nudge(st, msg)
		}
	}

	// Budget exhausted while the model still wanted tools: force a
	// final answer.
	e.nudge(st, stopToolsNudge)
	resp, err := e.svc.Reasoner.Chat(ctx, st.messages, nil)
	if err != nil {
		st.log.Error("forced final call failed", zap.Error(err))
		return finalText, accepted, nil
	}
	finalMsg := types.AssistantMessage(resp.Text)
	st.messages = append(st.messages, finalMsg)
	e.appendHistory(st.req.SessionID, finalMsg)

	finalText = resp.Text
	if candidate, ok := parseCandidate(finalText); ok {
		applyDefaultSubject(candidate, st.defaultSubject)
		dropForbidden(candidate, st.routerOut.AttrConstraints)
		accepted = candidate
	}
	return finalText, accepted, nil
}

// nudge appends a corrective user message to the dialogue and history.
func (e *Engine) nudge(st *runState, text string) {
	msg := types.UserMessage(text)
	st.messages = append(st.messages, msg)
	e.appendHistory(st.req.SessionID, msg)
}

func (e *Engine) appendHistory(sessionID string, msg types.ChatMessage) {
	if sessionID != "" {
		e.svc.History.Append(sessionID, msg)
	}
}

// defaultSubject picks the subject injected into variables the model
// leaves unattributed.
func (e *Engine) defaultSubject(ref *entity.Ref, entityHint, target string, routerOut types.RouterOutput) *types.Subject {
	entityType := routerOut.EntityType
	if entityType == "" {
		entityType = "other"
	}
	switch {
	case ref != nil:
		return &types.Subject{Name: ref.Name, Type: ref.Type, CanonicalID: ref.ID}
	case entityHint != "":
		return &types.Subject{Name: entityHint, Type: entityType}
	case target != "":
		return &types.Subject{Name: target, Type: entityType}
	}
	return nil
}

// nestedResearch is wired into knowledge_query: a depth-bounded inner
// run that researches and persists one missing fact.
func (e *Engine) nestedResearch(ctx context.Context, query, entityName, variableName string, depth int) error {
	_, err := e.run(ctx, Request{
		Query:     query,
		Entity:    entityName,
		Variables: []types.VariableDef{{Name: variableName}},
		Intensity: "low",
		depth:     depth + 1,
	})
	return err
}

// candidateResult is the parsed form of the model's final JSON.
type candidateResult struct {
	Intent    string                `json:"intent"`
	Variables []types.MagicVariable `json:"variables"`
	Notes     string                `json:"notes"`
}

// parseCandidate leniently parses the model's final text, tolerating
// code fences.
func parseCandidate(text string) (*candidateResult, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if !strings.HasPrefix(cleaned, "{") {
		return nil, false
	}
	var candidate candidateResult
	if err := json.Unmarshal([]byte(cleaned), &candidate); err != nil {
		return nil, false
	}
	return &candidate, true
}

func applyDefaultSubject(candidate *candidateResult, subject *types.Subject) {
	if subject == nil {
		return
	}
	for i := range candidate.Variables {
		v := &candidate.Variables[i]
		if v.Subject == nil || v.Subject.Name == "" {
			clone := *subject
			v.Subject = &clone
		}
	}
}

// dropForbidden silently removes variables the router forbade.
func dropForbidden(candidate *candidateResult, constraints map[string]types.AttrConstraint) {
	if len(constraints) == 0 {
		return
	}
	kept := candidate.Variables[:0]
	for _, v := range candidate.Variables {
		if constraints[v.Name] == types.AttrForbidden {
			continue
		}
		kept = append(kept, v)
	}
	candidate.Variables = kept
}

func missingSubjects(candidate *candidateResult) bool {
	for _, v := range candidate.Variables {
		if v.Subject == nil || v.Subject.Name == "" {
			return true
		}
	}
	return false
}

// harvestWebResults keeps successfully returned search results for the
// context-fallback variable.
func harvestWebResults(payload string, st *runState) {
	var results []search.Result
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return
	}
	st.webResults = append(st.webResults, results...)
}

// summarizeWebResults renders the harvested results as a short context
// blob.
func summarizeWebResults(results []search.Result, limit int) string {
	if len(results) == 0 {
		return ""
	}
	if len(results) > limit {
		results = results[:limit]
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		if r.Title != "" {
			fmt.Fprintf(&sb, "%s (%s): ", r.Title, r.URL)
		} else {
			fmt.Fprintf(&sb, "%s: ", r.URL)
		}
		snippet := r.Snippet
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		sb.WriteString(snippet)
	}
	return sb.String()
}
