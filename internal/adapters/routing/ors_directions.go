package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"fmt"
	"math"
	"net/http"
)

type directionsResponse struct {
	Routes []struct {
		Segments []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"segments"`
	} `json:"routes"`
}

// directions routes the waypoints in the given order through
// /v2/directions/{profile}. The waypoint order is the identity.
func (o *ORSProvider) directions(
	ctx context.Context,
	start, end domain.Coordinates,
	waypoints []domain.Coordinates,
) (ports.DirectionsResponse, error) {
	points := make([]domain.Coordinates, 0, len(waypoints)+2)
	points = append(points, start)
	points = append(points, waypoints...)
	points = append(points, end)

	body := struct {
		Coordinates [][]float64 `json:"coordinates"`
	}{Coordinates: make([][]float64, 0, len(points))}
	for _, p := range points {
		body.Coordinates = append(body.Coordinates, p.CoordsToList())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("marshal directions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s/json", o.baseURL, o.profile)
	req, err := o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("directions request: %w", err)
	}

	var decoded directionsResponse
	if err := doJSON(o.session, req, &decoded); err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("directions request failed: %w", err)
	}

	if len(decoded.Routes) == 0 {
		return ports.DirectionsResponse{}, &StatusError{Status: "ZERO_RESULTS", Message: "no route returned"}
	}

	segments := decoded.Routes[0].Segments
	if len(segments) != len(points)-1 {
		return ports.DirectionsResponse{}, fmt.Errorf("expected %d segments, got %d", len(points)-1, len(segments))
	}

	out := ports.DirectionsResponse{
		Legs:          make([]ports.Leg, 0, len(segments)),
		WaypointOrder: make([]int, 0, len(waypoints)),
	}
	for i, seg := range segments {
		out.Legs = append(out.Legs, ports.Leg{
			DistanceMeters:  int(math.Round(seg.Distance)),
			DurationSeconds: int(math.Round(seg.Duration)),
			Start:           points[i],
		})
	}
	for i := range waypoints {
		out.WaypointOrder = append(out.WaypointOrder, i)
	}

	return out, nil
}
