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

type optimizationJob struct {
	ID       int       `json:"id"`
	Location []float64 `json:"location"`
}

type optimizationVehicle struct {
	ID      int       `json:"id"`
	Profile string    `json:"profile"`
	Start   []float64 `json:"start"`
	End     []float64 `json:"end"`
}

type optimizationRequest struct {
	Jobs     []optimizationJob     `json:"jobs"`
	Vehicles []optimizationVehicle `json:"vehicles"`
	Options  struct {
		G bool `json:"g"`
	} `json:"options"`
}

type optimizationStep struct {
	Type     string    `json:"type"`
	ID       *int      `json:"id"`
	Job      *int      `json:"job"`
	Location []float64 `json:"location"`
	Duration float64   `json:"duration"`
	Distance float64   `json:"distance"`
}

type optimizationResponse struct {
	Code       int    `json:"code"`
	Error      string `json:"error"`
	Unassigned []struct {
		ID int `json:"id"`
	} `json:"unassigned"`
	Routes []struct {
		Steps []optimizationStep `json:"steps"`
	} `json:"routes"`
}

// optimize posts a single-vehicle problem to /optimization. Job ids are the
// waypoint indexes, so the job order of the returned steps is the waypoint
// order. Step durations and distances are cumulative; legs are their
// differences.
func (o *ORSProvider) optimize(
	ctx context.Context,
	start, end domain.Coordinates,
	waypoints []domain.Coordinates,
) (ports.DirectionsResponse, error) {
	body := optimizationRequest{
		Vehicles: []optimizationVehicle{{
			ID:      1,
			Profile: o.profile,
			Start:   start.CoordsToList(),
			End:     end.CoordsToList(),
		}},
	}
	body.Options.G = true
	for i, c := range waypoints {
		body.Jobs = append(body.Jobs, optimizationJob{ID: i, Location: c.CoordsToList()})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("marshal optimization request: %w", err)
	}

	req, err := o.newRequest(ctx, http.MethodPost, o.baseURL+"/optimization", bytes.NewReader(payload))
	if err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("optimization request: %w", err)
	}

	var decoded optimizationResponse
	if err := doJSON(o.session, req, &decoded); err != nil {
		return ports.DirectionsResponse{}, fmt.Errorf("optimization request failed: %w", err)
	}

	if decoded.Code != 0 {
		return ports.DirectionsResponse{}, &StatusError{Status: fmt.Sprintf("CODE_%d", decoded.Code), Message: decoded.Error}
	}
	if len(decoded.Unassigned) > 0 {
		return ports.DirectionsResponse{}, &StatusError{
			Status:  "UNASSIGNED",
			Message: fmt.Sprintf("%d waypoints could not be routed", len(decoded.Unassigned)),
		}
	}
	if len(decoded.Routes) != 1 {
		return ports.DirectionsResponse{}, &StatusError{Status: "ZERO_RESULTS", Message: fmt.Sprintf("expected 1 route, got %d", len(decoded.Routes))}
	}

	steps := decoded.Routes[0].Steps
	out := ports.DirectionsResponse{
		Legs:          make([]ports.Leg, 0, len(waypoints)+1),
		WaypointOrder: make([]int, 0, len(waypoints)),
	}
	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if len(prev.Location) != 2 {
			return ports.DirectionsResponse{}, fmt.Errorf("step %d: invalid location", i-1)
		}

		// ORS returns float metrics; round to nearest integer for domain consistency.
		out.Legs = append(out.Legs, ports.Leg{
			DistanceMeters:  int(math.Round(cur.Distance - prev.Distance)),
			DurationSeconds: int(math.Round(cur.Duration - prev.Duration)),
			Start:           domain.Coordinates{Lon: prev.Location[0], Lat: prev.Location[1]},
		})

		if cur.Type == "job" {
			id := cur.ID
			if id == nil {
				id = cur.Job
			}
			if id == nil {
				return ports.DirectionsResponse{}, fmt.Errorf("step %d: job step without id", i)
			}
			out.WaypointOrder = append(out.WaypointOrder, *id)
		}
	}

	if len(out.WaypointOrder) != len(waypoints) {
		return ports.DirectionsResponse{}, fmt.Errorf(
			"optimization visited %d of %d waypoints", len(out.WaypointOrder), len(waypoints),
		)
	}

	return out, nil
}
