package ports

import (
	"context"
	"fleet-route-engine/internal/domain"
)

// Request for one itinerary from origin through waypoints to destination.
// With OptimizeWaypoints the provider may visit waypoints in any order and
// reports it in WaypointOrder. Without it the waypoints are visited as given
// and callers ignore WaypointOrder.
type DirectionsRequest struct {
	Origin            string
	Destination       string
	Waypoints         []string
	OptimizeWaypoints bool
}

// One leg of an itinerary. Leg i ends at the i-th visited waypoint; the final
// leg returns to the destination.
type Leg struct {
	DistanceMeters  int
	DurationSeconds int
	Start           domain.Coordinates
}

type DirectionsResponse struct {
	Legs []Leg
	// WaypointOrder[i] is the index into the request's Waypoints of the i-th visited waypoint.
	WaypointOrder []int
}

// Contract for an external service that orders waypoints for shortest travel.
type RoutingProvider interface {
	Directions(ctx context.Context, req DirectionsRequest) (DirectionsResponse, error)
	// Build deep links for the itinerary described by req and its response.
	NavigationLinks(req DirectionsRequest, resp DirectionsResponse) domain.NavigationLinks
}
