// Package citation scores source authority and enforces the
// corroboration policy on candidate final answers.
package citation

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"scout/internal/types"
)

// blogPlatforms never get the generic www bonus.
var blogPlatforms = []string{
	"medium.com", "blogspot.com", "wordpress.com", "substack.com",
	"tumblr.com", "blogger.com",
}

// AuthorityScore maps a source URL's host to an integer in [0, 100].
func AuthorityScore(rawURL string) int {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return 0
	}
	host := strings.ToLower(parsed.Host)
	bare := strings.TrimPrefix(host, "www.")

	switch {
	case bare == "sec.gov" || strings.HasSuffix(bare, ".sec.gov"):
		return 100
	case bare == "wikidata.org" || strings.HasSuffix(bare, ".wikidata.org"):
		return 90
	case bare == "wikipedia.org" || strings.HasSuffix(bare, ".wikipedia.org"):
		return 85
	case strings.HasSuffix(bare, ".gov"):
		return 80
	case strings.HasSuffix(bare, ".edu"):
		return 75
	case bare == "bloomberg.com" || strings.HasSuffix(bare, ".bloomberg.com"):
		return 74
	case bare == "reuters.com" || strings.HasSuffix(bare, ".reuters.com"):
		return 73
	case bare == "ft.com" || strings.HasSuffix(bare, ".ft.com"):
		return 72
	case bare == "nytimes.com" || strings.HasSuffix(bare, ".nytimes.com"):
		return 72
	case bare == "wsj.com" || strings.HasSuffix(bare, ".wsj.com"):
		return 71
	}

	if strings.HasPrefix(host, "www.") && !isBlogPlatform(bare) {
		return 65
	}
	return 50
}

func isBlogPlatform(host string) bool {
	for _, p := range blogPlatforms {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// SortSources deduplicates sources by URL and orders them by descending
// authority score. The sort is stable, so reapplication is a fixed point.
func SortSources(sources []types.Source) []types.Source {
	seen := make(map[string]bool, len(sources))
	out := make([]types.Source, 0, len(sources))
	for _, s := range sources {
		key := strings.TrimSpace(s.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return AuthorityScore(out[i].URL) > AuthorityScore(out[j].URL)
	})
	return out
}

// GateResult is the outcome of evaluating a candidate answer.
type GateResult struct {
	OK     bool
	Issues []string
}

// needsDoubleSourcing reports whether a variable's type or name demands
// at least two agreeing sources regardless of the policy floor.
func needsDoubleSourcing(v types.MagicVariable) bool {
	switch v.DType {
	case types.DTypeDate, types.DTypeNumber, types.DTypeString:
		return true
	}
	name := strings.ToLower(v.Name)
	return strings.Contains(name, "found") && strings.Contains(name, "date")
}

// Evaluate checks every variable against the evidence policy.
func Evaluate(variables []types.MagicVariable, policy types.EvidencePolicy) GateResult {
	result := GateResult{OK: true}

	minRequired := policy.MinCorroboration
	if minRequired < 1 {
		minRequired = 1
	}

	for _, v := range variables {
		n := len(v.Sources)

		if n < minRequired {
			result.OK = false
			result.Issues = append(result.Issues, fmt.Sprintf(
				"%s: %d source(s), policy requires at least %d", v.Name, n, minRequired))
			continue
		}

		if needsDoubleSourcing(v) && n < 2 {
			result.OK = false
			result.Issues = append(result.Issues, fmt.Sprintf(
				"%s: values of type %s need >= 2 agreeing sources, got %d", v.Name, v.DType, n))
			continue
		}

		if policy.RequireAuthority && !hasAuthoritativeSource(v.Sources) {
			result.OK = false
			result.Issues = append(result.Issues, fmt.Sprintf(
				"%s: no source with authority >= 70", v.Name))
		}
	}
	return result
}

func hasAuthoritativeSource(sources []types.Source) bool {
	for _, s := range sources {
		if AuthorityScore(s.URL) >= 70 {
			return true
		}
	}
	return false
}

// NudgeMessage renders gate issues as an instruction the model can act
// on: run more searches, then re-emit the final JSON.
func NudgeMessage(result GateResult) string {
	var sb strings.Builder
	sb.WriteString("Your answer does not meet the citation policy:\n")
	for _, issue := range result.Issues {
		sb.WriteString("- ")
		sb.WriteString(issue)
		sb.WriteByte('\n')
	}
	sb.WriteString("Run additional web searches to gather the missing corroboration, then emit the final JSON again.")
	return sb.String()
}
