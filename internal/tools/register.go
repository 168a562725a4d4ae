package tools

// DefaultRegistry returns the registry with the four research tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(WebSearchTool())
	r.MustRegister(LatestFinderTool())
	r.MustRegister(KnowledgeQueryTool())
	r.MustRegister(EvaluatePlausibilityTool())
	return r
}
