package routing

import (
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"net/url"
	"strings"
)

// navigationLinks builds a Google Maps directions link over the visiting
// order and a Waze link keyed by the first leg's start coordinates.
func navigationLinks(req ports.DirectionsRequest, resp ports.DirectionsResponse) domain.NavigationLinks {
	waypoints := req.Waypoints
	if len(resp.WaypointOrder) == len(req.Waypoints) {
		waypoints = make([]string, 0, len(req.Waypoints))
		for _, idx := range resp.WaypointOrder {
			waypoints = append(waypoints, req.Waypoints[idx])
		}
	}

	// Maps URLs separate waypoints with "|" and cannot escape it.
	parts := make([]string, 0, len(waypoints))
	for _, w := range waypoints {
		parts = append(parts, normalize(strings.ReplaceAll(w, "|", " ")))
	}

	q := url.Values{}
	q.Set("api", "1")
	q.Set("origin", req.Origin)
	q.Set("destination", req.Destination)
	if len(parts) > 0 {
		q.Set("waypoints", strings.Join(parts, "|"))
	}
	q.Set("travelmode", "driving")

	links := domain.NavigationLinks{WebURL: "https://www.google.com/maps/dir/?" + q.Encode()}
	if len(resp.Legs) > 0 {
		links.TurnByTurnURL = "https://waze.com/ul?ll=" + resp.Legs[0].Start.LatLngString() + "&navigate=yes"
	}
	return links
}
