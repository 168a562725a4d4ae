package agent

// Caps bound one agent run.
type Caps struct {
	MaxSteps       int
	MaxWebSearches int
}

// intensityCaps are the base budgets per research intensity.
var intensityCaps = map[string]Caps{
	"low":    {MaxSteps: 3, MaxWebSearches: 2},
	"medium": {MaxSteps: 6, MaxWebSearches: 4},
	"high":   {MaxSteps: 10, MaxWebSearches: 8},
}

// ResolveCaps composes the intensity bucket with the environment caps;
// the tighter value wins in each dimension.
func ResolveCaps(intensity string, envMaxSteps, envMaxWeb int) Caps {
	caps, ok := intensityCaps[intensity]
	if !ok {
		caps = intensityCaps["medium"]
	}
	if envMaxSteps > 0 && envMaxSteps < caps.MaxSteps {
		caps.MaxSteps = envMaxSteps
	}
	if envMaxWeb > 0 && envMaxWeb < caps.MaxWebSearches {
		caps.MaxWebSearches = envMaxWeb
	}
	return caps
}
