package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/agent"
	"scout/internal/facts"
	"scout/internal/types"
)

type fakeEnricher struct {
	result  *types.EnrichmentResult
	err     error
	lastReq agent.Request
}

func (f *fakeEnricher) Enrich(_ context.Context, req agent.Request) (*types.EnrichmentResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTrusted struct {
	applied []facts.TrustedFactInput
	err     error
}

func (f *fakeTrusted) SetTrustedFact(_ context.Context, in facts.TrustedFactInput) error {
	f.applied = append(f.applied, in)
	return f.err
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(&fakeEnricher{}, &fakeTrusted{})
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestEnrichHappyPath(t *testing.T) {
	enricher := &fakeEnricher{result: &types.EnrichmentResult{
		Intent:    types.IntentBoolean,
		Variables: []types.MagicVariable{},
	}}
	s := New(enricher, &fakeTrusted{})

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich",
		`{"query": "Is OpenAI profitable?", "sessionId": "s1", "researchIntensity": "high"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"intent":"boolean"`)
	assert.Equal(t, "high", enricher.lastReq.Intensity)
	assert.Equal(t, "s1", enricher.lastReq.SessionID)
}

func TestEnrichDefaultsIntensityToMedium(t *testing.T) {
	enricher := &fakeEnricher{result: &types.EnrichmentResult{Variables: []types.MagicVariable{}}}
	s := New(enricher, &fakeTrusted{})

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich", `{"query": "Who founded Stripe?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "medium", enricher.lastReq.Intensity)
}

func TestEnrichValidation(t *testing.T) {
	s := New(&fakeEnricher{}, &fakeTrusted{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"short query", `{"query": "x"}`, "at least 2 characters"},
		{"bad intensity", `{"query": "valid query", "researchIntensity": "extreme"}`, "researchIntensity"},
		{"bad variable type", `{"query": "valid query", "variables": [{"name": "x", "type": "decimal"}]}`, "not a valid type"},
		{"unnamed variable", `{"query": "valid query", "variables": [{"type": "string"}]}`, "name is required"},
		{"correction without field", `{"query": "valid query", "corrections": [{"entity": "X", "value": 1}]}`, "field is required"},
		{"not json", `{{`, "invalid request body"},
		{"unknown field", `{"query": "valid query", "bogus": true}`, "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestEnrichAppliesCorrectionsBeforeRun(t *testing.T) {
	enricher := &fakeEnricher{result: &types.EnrichmentResult{Variables: []types.MagicVariable{}}}
	trusted := &fakeTrusted{}
	s := New(enricher, trusted)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich", `{
		"query": "Who is the CEO of Artisan AI?",
		"corrections": [{"entity": "Artisan AI", "field": "ceo_name",
			"value": "Jaspar Carmichael-Jack", "source": "https://artisan.co/about"}]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, trusted.applied, 1)
	assert.Equal(t, "ceo_name", trusted.applied[0].Field)
}

func TestEnrichCorrectionFailureDoesNotFailRequest(t *testing.T) {
	enricher := &fakeEnricher{result: &types.EnrichmentResult{Variables: []types.MagicVariable{}}}
	trusted := &fakeTrusted{err: facts.ErrEntityUnresolved}
	s := New(enricher, trusted)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich", `{
		"query": "Who is the CEO of Artisan AI?",
		"corrections": [{"entity": "Nobody Known", "field": "ceo_name", "value": "X"}]
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrichInternalError(t *testing.T) {
	s := New(&fakeEnricher{err: errors.New("reasoner unavailable")}, &fakeTrusted{})
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/enrich", `{"query": "valid query"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
}
