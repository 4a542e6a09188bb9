package domain

// NavigationLinks are provider-generated deep links for external navigation apps.
type NavigationLinks struct {
	WebURL        string
	TurnByTurnURL string
}

// OptimizationResult summarizes one optimization pass over a route.
// Distance is rounded to 0.1 km and duration to the nearest minute.
type OptimizationResult struct {
	RouteID          string
	TotalDistanceKm  float64
	TotalDurationMin int
	Stops            []Stop
	Links            NavigationLinks
	// Override ids that did not belong to the route and were not applied.
	SkippedOverrides []string
}
