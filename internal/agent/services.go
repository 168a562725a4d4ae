// Package agent implements the research orchestrator: the bounded
// reason-act loop that composes intent classification, the inference
// router, the tool runtime, the citation gate, finalisation and session
// memory.
package agent

import (
	"context"
	"time"

	"scout/internal/config"
	"scout/internal/entity"
	"scout/internal/llm"
	"scout/internal/memory"
	"scout/internal/search"
	"scout/internal/tools"
	"scout/internal/types"
)

// EntityResolver is the canonical-entity capability the engine needs.
// *entity.Resolver satisfies it.
type EntityResolver interface {
	Resolve(ctx context.Context, name, entityType string) (string, error)
	TryResolveExisting(ctx context.Context, name string) (*entity.Ref, error)
	SearchByName(ctx context.Context, query string, limit int) ([]entity.Ref, error)
}

// FactStore is the fact persistence capability the engine needs.
// *facts.Store satisfies it.
type FactStore interface {
	StoreFact(ctx context.Context, v types.MagicVariable, observedAt *time.Time) error
	GetFact(ctx context.Context, entityID, name string) (*types.Fact, error)
	GetFactsForEntity(ctx context.Context, entityID string) ([]types.Fact, error)
	FindSimilarFactNames(ctx context.Context, entityID, base string, limit int) ([]string, error)
}

// MemoryWriter is the long-term memory capability the summariser needs.
// *memory.LongTerm satisfies it.
type MemoryWriter interface {
	Add(ctx context.Context, username, text string, tags []string) error
}

// Services carries every capability an agent run needs. It replaces
// ambient globals: one value is constructed at startup and threaded
// through the engine and its tools.
type Services struct {
	Resolver EntityResolver
	Facts    FactStore
	History  *memory.History
	LongTerm MemoryWriter
	Registry *tools.Registry
	Backend  search.Backend
	Fetcher  *search.Fetcher

	// Reasoner drives the main loop; Aux serves the router, intent
	// classifier, summariser and plausibility evaluation.
	Reasoner llm.Reasoner
	Aux      llm.Reasoner

	Config config.Config
	Now    func() time.Time
}

// Request is one validated enrichment request.
type Request struct {
	Query     string
	Variables []types.VariableDef
	SessionID string
	Username  string
	Entity    string
	Intensity string

	// depth is non-zero for nested knowledge_query research runs.
	depth int
}
