package agent

import (
	"context"

	"go.uber.org/zap"

	"scout/internal/citation"
	"scout/internal/types"
)

// finalize validates the model's final answer, resolves subjects,
// normalises sources, overlays trusted facts and persists stable ones.
// It always returns a usable result.
func (e *Engine) finalize(ctx context.Context, st *runState, finalText string, candidate *candidateResult) *types.EnrichmentResult {
	if candidate == nil {
		parsed, ok := parseCandidate(finalText)
		if !ok {
			st.log.Warn("final answer is not valid JSON; returning empty result")
			return &types.EnrichmentResult{
				Intent:    st.cls.Intent,
				Variables: []types.MagicVariable{},
				Notes:     "the model did not produce a parseable answer",
			}
		}
		applyDefaultSubject(parsed, st.defaultSubject)
		dropForbidden(parsed, st.routerOut.AttrConstraints)
		candidate = parsed
	}

	result := &types.EnrichmentResult{
		Intent:    st.cls.Intent,
		Variables: []types.MagicVariable{},
		Notes:     candidate.Notes,
	}
	if intentFromModel := types.Intent(candidate.Intent); validIntent(intentFromModel) {
		result.Intent = intentFromModel
	}

	now := e.svc.Now().UTC()

	for _, v := range candidate.Variables {
		if v.Name == "" {
			continue
		}
		if v.Subject == nil || v.Subject.Name == "" {
			continue
		}

		if !types.ValidDType(string(v.DType)) {
			v.DType = types.InferDType(v.Value)
		}

		// Resolve (creating when needed) so every persisted variable
		// carries a canonical id.
		if v.Subject.CanonicalID == "" {
			id, err := e.svc.Resolver.Resolve(ctx, v.Subject.Name, v.Subject.Type)
			if err != nil {
				st.log.Warn("subject resolution failed",
					zap.String("subject", v.Subject.Name), zap.Error(err))
			} else {
				v.Subject.CanonicalID = id
			}
		}

		v.Confidence = clampConfidence(v.Confidence)
		v.Sources = citation.SortSources(v.Sources)
		if v.ObservedAt == nil {
			v.ObservedAt = &now
		}

		result.Variables = append(result.Variables, v)
	}

	if len(result.Variables) == 0 && st.defaultSubject != nil {
		if contextVar := e.contextFallback(ctx, st); contextVar != nil {
			contextVar.ObservedAt = &now
			result.Variables = append(result.Variables, *contextVar)
		}
	}

	e.overlayTrustedFacts(st, result)
	e.persistVariables(ctx, st, result)
	return result
}

// contextFallback synthesises a single text variable from the gathered
// web results when the model produced no variables.
func (e *Engine) contextFallback(ctx context.Context, st *runState) *types.MagicVariable {
	summary := summarizeWebResults(st.webResults, 5)
	if summary == "" {
		return nil
	}

	subject := *st.defaultSubject
	if subject.CanonicalID == "" {
		if id, err := e.svc.Resolver.Resolve(ctx, subject.Name, subject.Type); err == nil {
			subject.CanonicalID = id
		}
	}

	sources := make([]types.Source, 0, len(st.webResults))
	for _, r := range st.webResults {
		sources = append(sources, types.Source{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}

	return &types.MagicVariable{
		Subject:    &subject,
		Name:       "context",
		DType:      types.DTypeText,
		Value:      summary,
		Confidence: 0.5,
		Sources:    citation.SortSources(sources),
	}
}

func validIntent(i types.Intent) bool {
	switch i {
	case types.IntentBoolean, types.IntentSpecific, types.IntentContextual:
		return true
	}
	return false
}

func clampConfidence(c float64) float64 {
	if c <= 0 {
		return 0.5
	}
	if c > 1 {
		return 1
	}
	return c
}

// overlayTrustedFacts replaces researched values with trusted ones of
// equal or higher confidence, prepending the trusted source.
func (e *Engine) overlayTrustedFacts(st *runState, result *types.EnrichmentResult) {
	if st.entityRef == nil || len(st.trusted) == 0 {
		return
	}

	trustedByName := make(map[string]types.Fact, len(st.trusted))
	for _, fact := range st.trusted {
		trustedByName[fact.Name] = fact
	}

	for i := range result.Variables {
		v := &result.Variables[i]
		if v.Subject == nil || v.Subject.CanonicalID != st.entityRef.ID {
			continue
		}
		fact, ok := trustedByName[v.Name]
		if !ok {
			continue
		}
		confidence := 0.5
		if fact.Confidence != nil {
			confidence = *fact.Confidence
		}
		if confidence < v.Confidence {
			continue
		}

		v.Value = fact.Value
		v.Confidence = confidence
		if types.ValidDType(string(fact.DType)) {
			v.DType = fact.DType
		}

		trustedSource := types.Source{Title: "Trusted fact", URL: "about:trusted-fact"}
		if len(fact.Sources) > 0 {
			trustedSource = fact.Sources[0]
		}
		v.Sources = prependSource(v.Sources, trustedSource)

		st.log.Debug("trusted fact overlaid",
			zap.String("variable", v.Name),
			zap.Float64("confidence", confidence))
	}
}

// prependSource puts src first, keeping the rest deduplicated by URL.
func prependSource(sources []types.Source, src types.Source) []types.Source {
	out := []types.Source{src}
	for _, s := range sources {
		if s.URL != src.URL {
			out = append(out, s)
		}
	}
	return out
}

// persistVariables stores every resolved, non-context variable.
// Persistence is best-effort: failures are logged, never surfaced.
func (e *Engine) persistVariables(ctx context.Context, st *runState, result *types.EnrichmentResult) {
	for _, v := range result.Variables {
		if v.Name == "context" {
			continue
		}
		if v.Subject == nil || v.Subject.CanonicalID == "" {
			continue
		}
		if err := e.svc.Facts.StoreFact(ctx, v, v.ObservedAt); err != nil {
			st.log.Warn("fact persistence failed",
				zap.String("variable", v.Name), zap.Error(err))
		}
	}
}
