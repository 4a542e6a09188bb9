package dto

// OptimizeRequest maps stop ids to a priority tier name
// ("urgent", "high", "normal" or "low").
type OptimizeRequest struct {
	Priorities map[string]string `json:"priorities"`
}

type NavigationLinks struct {
	WebURL        string `json:"web_url"`
	TurnByTurnURL string `json:"turn_by_turn_url,omitempty"`
}

type OptimizeResponse struct {
	RouteID          string          `json:"route_id"`
	TotalDistanceKm  float64         `json:"total_distance_km"`
	TotalDurationMin int             `json:"total_duration_min"`
	Stops            []StopResponse  `json:"stops"`
	NavigationLinks  NavigationLinks `json:"navigation_links"`
	SkippedOverrides []string        `json:"skipped_overrides,omitempty"`
}

type SplitRequest struct {
	Strategy         string         `json:"strategy"`
	GroupCount       int            `json:"group_count"`
	DriverIDs        []string       `json:"driver_ids"`
	VehicleIDs       []string       `json:"vehicle_ids"`
	ManualAssignment map[string]int `json:"manual_assignment"`
	SkipOptimize     bool           `json:"skip_optimize"`
}

type SplitGroupResponse struct {
	Index               int      `json:"index"`
	RouteID             string   `json:"route_id"`
	StopCount           int      `json:"stop_count"`
	TotalWeightKg       float64  `json:"total_weight_kg"`
	EstimatedDistanceKm *float64 `json:"estimated_distance_km,omitempty"`
}

type SplitResponse struct {
	SourceRouteID      string               `json:"source_route_id"`
	Strategy           string               `json:"strategy"`
	NewRouteIDs        []string             `json:"new_route_ids"`
	Groups             []SplitGroupResponse `json:"groups"`
	ExcludedStops      []string             `json:"excluded_stops,omitempty"`
	SkippedAssignments []string             `json:"skipped_assignments,omitempty"`
	Warnings           []string             `json:"warnings,omitempty"`
}

type MergeRequest struct {
	RouteIDs  []string `json:"route_ids"`
	DriverID  string   `json:"driver_id"`
	VehicleID string   `json:"vehicle_id"`
	// Date is formatted as YYYY-MM-DD.
	Date string `json:"date"`
}

type MergeResponse struct {
	RouteID        string   `json:"route_id"`
	SourceRouteIDs []string `json:"source_route_ids"`
	StopCount      int      `json:"stop_count"`
}
