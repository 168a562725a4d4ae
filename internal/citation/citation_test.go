package citation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/types"
)

func TestAuthorityScore(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"https://www.sec.gov/cgi-bin/browse-edgar", 100},
		{"https://www.wikidata.org/wiki/Q42", 90},
		{"https://en.wikipedia.org/wiki/OpenAI", 85},
		{"https://www.census.gov/data", 80},
		{"https://web.mit.edu/research", 75},
		{"https://www.bloomberg.com/news/article", 74},
		{"https://www.reuters.com/business", 73},
		{"https://www.ft.com/content/abc", 72},
		{"https://www.nytimes.com/2024/01/01/tech", 72},
		{"https://www.wsj.com/articles/xyz", 71},
		{"https://www.example.com/page", 65},
		{"https://www.medium.com/@someone/post", 50},
		{"https://blog.example.io/post", 50},
		{"not a url", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, AuthorityScore(tt.url))
		})
	}
}

func TestSortSourcesDedupAndOrder(t *testing.T) {
	sources := []types.Source{
		{URL: "https://blog.example.io/post"},
		{URL: "https://www.sec.gov/filing"},
		{URL: "https://blog.example.io/post"}, // duplicate
		{URL: "https://en.wikipedia.org/wiki/X"},
	}

	got := SortSources(sources)

	require.Len(t, got, 3)
	assert.Equal(t, "https://www.sec.gov/filing", got[0].URL)
	assert.Equal(t, "https://en.wikipedia.org/wiki/X", got[1].URL)
	assert.Equal(t, "https://blog.example.io/post", got[2].URL)
}

func TestSortSourcesIsFixedPoint(t *testing.T) {
	sources := []types.Source{
		{URL: "https://www.reuters.com/a"},
		{URL: "https://example.org/b"},
		{URL: "https://www.sec.gov/c"},
		{URL: "https://www.reuters.com/a"},
	}

	once := SortSources(sources)
	twice := SortSources(once)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("reapplying SortSources changed the result (-once +twice):\n%s", diff)
	}
}

func TestEvaluateMinCorroboration(t *testing.T) {
	vars := []types.MagicVariable{{
		Name:    "summary",
		DType:   types.DTypeText,
		Sources: []types.Source{{URL: "https://example.com/a"}},
	}}

	got := Evaluate(vars, types.EvidencePolicy{MinCorroboration: 2})
	assert.False(t, got.OK)
	require.Len(t, got.Issues, 1)
	assert.Contains(t, got.Issues[0], "at least 2")
}

func TestEvaluateDateNeedsTwoSourcesEvenAtFloorOne(t *testing.T) {
	vars := []types.MagicVariable{{
		Name:    "founding_date",
		DType:   types.DTypeDate,
		Sources: []types.Source{{URL: "https://example.com/a"}},
	}}

	got := Evaluate(vars, types.EvidencePolicy{MinCorroboration: 1})
	assert.False(t, got.OK)
	require.Len(t, got.Issues, 1)
	assert.Contains(t, got.Issues[0], ">= 2 agreeing sources")
}

func TestEvaluateFoundingDateNamePattern(t *testing.T) {
	// A text variable normally needs one source, but a founding-date
	// name triggers double sourcing.
	vars := []types.MagicVariable{{
		Name:    "company_founded_date",
		DType:   types.DTypeText,
		Sources: []types.Source{{URL: "https://example.com/a"}},
	}}

	got := Evaluate(vars, types.EvidencePolicy{MinCorroboration: 1})
	assert.False(t, got.OK)
}

func TestEvaluateRequireAuthority(t *testing.T) {
	lowAuthority := []types.Source{
		{URL: "https://blog.example.io/a"},
		{URL: "https://blog.other.io/b"},
	}
	vars := []types.MagicVariable{{Name: "ceo_name", DType: types.DTypeString, Sources: lowAuthority}}

	got := Evaluate(vars, types.EvidencePolicy{MinCorroboration: 1, RequireAuthority: true})
	assert.False(t, got.OK)
	require.Len(t, got.Issues, 1)
	assert.Contains(t, got.Issues[0], "authority")

	withAuthority := append(lowAuthority, types.Source{URL: "https://www.reuters.com/c"})
	vars[0].Sources = withAuthority
	got = Evaluate(vars, types.EvidencePolicy{MinCorroboration: 1, RequireAuthority: true})
	assert.True(t, got.OK)
}

func TestEvaluatePassesBooleanWithOneSource(t *testing.T) {
	vars := []types.MagicVariable{{
		Name:    "is_profitable",
		DType:   types.DTypeBoolean,
		Sources: []types.Source{{URL: "https://www.reuters.com/a"}},
	}}

	got := Evaluate(vars, types.EvidencePolicy{MinCorroboration: 1})
	assert.True(t, got.OK)
	assert.Empty(t, got.Issues)
}

func TestNudgeMessageListsIssues(t *testing.T) {
	result := GateResult{OK: false, Issues: []string{"x: too few sources"}}
	msg := NudgeMessage(result)
	assert.Contains(t, msg, "x: too few sources")
	assert.Contains(t, msg, "final JSON")
}
