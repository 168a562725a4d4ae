package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/types"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Chat(_ context.Context, _ []types.ChatMessage, _ []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.LLMToolResponse{Text: f.response}, nil
}

func (f *fakeModel) Complete(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

var expected = []types.VariableDef{
	{Name: "ceo_name", Type: "string"},
	{Name: "founding_date", Type: "date"},
}

func TestInferParsesAndNormalizes(t *testing.T) {
	r := New(&fakeModel{response: `{
		"entity_type": "Company",
		"attr_constraints": {"ceo_name": "required", "stock_price": "forbidden"},
		"vocab_hints": {"boost": ["artisan", 42, "ai"], "penalize": ["recipe"]},
		"evidence_policy": {"min_corroboration": 9, "require_authority": true}
	}`})

	out := r.Infer(context.Background(), "Who is the CEO of Artisan AI?", "Artisan AI", expected)

	assert.Equal(t, "company", out.EntityType)
	assert.Equal(t, types.AttrRequired, out.AttrConstraints["ceo_name"])
	assert.Equal(t, types.AttrForbidden, out.AttrConstraints["stock_price"])
	// founding_date was not mentioned and must be completed to allowed.
	assert.Equal(t, types.AttrAllowed, out.AttrConstraints["founding_date"])
	// Non-string hints are dropped, not coerced.
	assert.Equal(t, []string{"artisan", "ai"}, out.VocabHints.Boost)
	assert.Equal(t, []string{"recipe"}, out.VocabHints.Penalize)
	// min_corroboration clamps to [1,5].
	assert.Equal(t, 5, out.EvidencePolicy.MinCorroboration)
	assert.True(t, out.EvidencePolicy.RequireAuthority)
}

func TestInferClampsLowCorroboration(t *testing.T) {
	r := New(&fakeModel{response: `{"evidence_policy": {"min_corroboration": 0}}`})
	out := r.Infer(context.Background(), "q", "", nil)
	assert.Equal(t, 1, out.EvidencePolicy.MinCorroboration)
}

func TestInferNeutralFallbackOnGarbage(t *testing.T) {
	r := New(&fakeModel{response: "not json at all"})
	out := r.Infer(context.Background(), "q", "", expected)

	require.Len(t, out.AttrConstraints, 2)
	assert.Equal(t, types.AttrAllowed, out.AttrConstraints["ceo_name"])
	assert.Equal(t, types.AttrAllowed, out.AttrConstraints["founding_date"])
	assert.Equal(t, 1, out.EvidencePolicy.MinCorroboration)
	assert.False(t, out.EvidencePolicy.RequireAuthority)
}

func TestInferNeutralFallbackOnModelError(t *testing.T) {
	r := New(&fakeModel{err: errors.New("unavailable")})
	out := r.Infer(context.Background(), "q", "", expected)
	assert.Equal(t, types.AttrAllowed, out.AttrConstraints["ceo_name"])
}

func TestInferUnknownConstraintBecomesAllowed(t *testing.T) {
	r := New(&fakeModel{response: `{"attr_constraints": {"ceo_name": "maybe"}}`})
	out := r.Infer(context.Background(), "q", "", nil)
	assert.Equal(t, types.AttrAllowed, out.AttrConstraints["ceo_name"])
}
