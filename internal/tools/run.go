package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"scout/internal/entity"
	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/search"
	"scout/internal/types"
)

// ResearchFunc runs a nested agent to fetch and persist a missing fact.
// Implemented by the agent package; depth is the nesting level of the
// caller's run.
type ResearchFunc func(ctx context.Context, query, entityName, variableName string, depth int) error

// Directory is the entity-lookup capability tools need.
type Directory interface {
	TryResolveExisting(ctx context.Context, name string) (*entity.Ref, error)
	SearchByName(ctx context.Context, query string, limit int) ([]entity.Ref, error)
}

// FactSource is the fact-read capability tools need.
type FactSource interface {
	GetFact(ctx context.Context, entityID, name string) (*types.Fact, error)
	GetFactsForEntity(ctx context.Context, entityID string) ([]types.Fact, error)
	FindSimilarFactNames(ctx context.Context, entityID, base string, limit int) ([]string, error)
}

// Deps carries the external capabilities tools need.
type Deps struct {
	Backend  search.Backend
	Fetcher  *search.Fetcher
	Resolver Directory
	Facts    FactSource
	Aux      llm.Reasoner
	Research ResearchFunc
	Now      func() time.Time
}

// Outcome records how one tool call went, for the loop's feedback
// message to the model.
type Outcome struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Quality int    `json:"quality,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Run is the per-agent-invocation tool state: fingerprints, cache,
// budgets and outcome history. It is not shared across runs.
type Run struct {
	registry *Registry
	deps     Deps
	log      *zap.Logger

	maxWebSearches int
	webSearches    int

	// relevance is the token set a proposed web query must overlap.
	relevance map[string]bool

	depth int

	fingerprints map[string]bool
	cache        map[string]string
	outcomes     []Outcome
}

// RunParams configures a new Run.
type RunParams struct {
	MaxWebSearches  int
	RelevanceTokens []string
	Depth           int
}

// NewRun builds the per-run tool state.
func NewRun(registry *Registry, deps Deps, params RunParams) *Run {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	relevance := make(map[string]bool, len(params.RelevanceTokens))
	for _, tok := range params.RelevanceTokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			relevance[tok] = true
		}
	}
	return &Run{
		registry:       registry,
		deps:           deps,
		log:            logging.Named("tools"),
		maxWebSearches: params.MaxWebSearches,
		relevance:      relevance,
		depth:          params.Depth,
		fingerprints:   make(map[string]bool),
		cache:          make(map[string]string),
	}
}

// Depth returns the nesting level of this run.
func (r *Run) Depth() int { return r.depth }

// Outcomes returns the recorded outcomes in call order.
func (r *Run) Outcomes() []Outcome {
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Fingerprint computes the dedup key for a call: the tool name plus the
// canonical (sorted-keys) JSON of its arguments.
func Fingerprint(name string, args map[string]any) string {
	canonical, err := json.Marshal(args)
	if err != nil {
		return name + ":unmarshalable"
	}
	return name + ":" + string(canonical)
}

// Execute dispatches one model-requested tool call and returns the
// payload to hand back as the tool-result message. Execute returns no
// error: every failure, including a cancelled context, is encoded in the
// returned payload.
func (r *Run) Execute(ctx context.Context, call types.ToolCall) string {
	tool := r.registry.Get(call.Name)
	if tool == nil {
		r.record(Outcome{Tool: call.Name, OK: false, Detail: "unknown tool"})
		return errorPayload("SCHEMA_VALIDATION_ERROR", fmt.Sprintf("unknown tool %q", call.Name))
	}

	var args map[string]any
	if err := json.Unmarshal(call.Args, &args); err != nil {
		r.record(Outcome{Tool: call.Name, OK: false, Detail: "arguments not valid JSON"})
		return errorPayload("SCHEMA_VALIDATION_ERROR", "arguments are not a JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}

	if err := tool.validateArgs(args); err != nil {
		r.record(Outcome{Tool: call.Name, OK: false, Detail: err.Error()})
		return errorPayload("SCHEMA_VALIDATION_ERROR", err.Error())
	}

	fp := Fingerprint(call.Name, args)
	if r.fingerprints[fp] {
		if tool.CacheOnRepeat {
			if cached, ok := r.cache[fp]; ok {
				r.log.Debug("tool call served from cache", zap.String("tool", call.Name))
				return cached
			}
		}
		r.log.Debug("duplicate tool call blocked", zap.String("tool", call.Name))
		return `{"error":"Duplicate tool call blocked"}`
	}

	if tool.CountsAgainstWebBudget {
		if r.maxWebSearches > 0 && r.webSearches >= r.maxWebSearches {
			r.record(Outcome{Tool: call.Name, OK: false, Detail: "web search limit reached"})
			return `{"error":"Web search limit reached"}`
		}
		r.webSearches++
	}

	r.fingerprints[fp] = true

	result, err := r.executeSafely(ctx, tool, args)
	if err != nil {
		r.record(Outcome{Tool: call.Name, OK: false, Detail: err.Error()})
		return "TOOL_EXECUTION_ERROR: " + err.Error()
	}

	r.cache[fp] = result
	return result
}

// executeSafely runs the tool, converting panics into errors so a bad
// tool cannot take down the request.
func (r *Run) executeSafely(ctx context.Context, tool *Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	start := r.deps.Now()
	result, err = tool.Execute(ctx, r, args)
	r.log.Debug("tool executed",
		zap.String("tool", tool.Name),
		zap.Duration("took", r.deps.Now().Sub(start)),
		zap.Bool("ok", err == nil))
	return result, err
}

func (r *Run) record(o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

// queryIsRelevant applies the web-search guard: at least two informative
// tokens, no placeholder queries, and overlap with the run's relevance
// vocabulary.
func (r *Run) queryIsRelevant(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if isPlaceholderQuery(normalized) {
		return false
	}

	informative := informativeTokens(normalized)
	if len(informative) < 2 {
		return false
	}

	if len(r.relevance) == 0 {
		return true
	}
	for _, tok := range informative {
		if r.relevance[tok] {
			return true
		}
	}
	return false
}

var placeholderQueries = map[string]bool{
	"input": true, "query": true, "search": true, "pipeline": true,
	"title": true, "url": true, "link": true,
}

func isPlaceholderQuery(q string) bool {
	return placeholderQueries[strings.Trim(q, "{}")]
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "is": true, "are": true, "was": true,
	"to": true, "at": true, "by": true, "with": true, "what": true, "who": true,
	"when": true, "where": true, "how": true, "does": true, "do": true,
}

// informativeTokens returns lowercase tokens longer than two characters
// that are not stopwords.
func informativeTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// RelevanceTokens builds the guard vocabulary from the query, entity,
// intent target, expected variable names and router boost hints.
func RelevanceTokens(query, entityName, target string, expected []types.VariableDef, hints types.VocabHints) []string {
	var all []string
	all = append(all, informativeTokens(query)...)
	all = append(all, informativeTokens(entityName)...)
	all = append(all, informativeTokens(target)...)
	for _, def := range expected {
		all = append(all, informativeTokens(strings.ReplaceAll(def.Name, "_", " "))...)
	}
	for _, hint := range hints.Boost {
		all = append(all, informativeTokens(hint)...)
	}
	return all
}

func errorPayload(code, detail string) string {
	payload, err := json.Marshal(map[string]string{"error": code, "detail": detail})
	if err != nil {
		return `{"error":"` + code + `"}`
	}
	return string(payload)
}
