package routing

import (
	"context"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
	"sync"
)

// StubProvider is an in-process RoutingProvider for local runs and tests.
// By default it keeps the waypoint order and reports LegMeters/LegSeconds for
// every leg.
type StubProvider struct {
	// Respond replaces the default answer when set.
	Respond func(req ports.DirectionsRequest) (ports.DirectionsResponse, error)

	LegMeters  int
	LegSeconds int

	mu    sync.Mutex
	calls []ports.DirectionsRequest
}

func NewStubProvider() *StubProvider {
	return &StubProvider{LegMeters: 1000, LegSeconds: 120}
}

func (p *StubProvider) Directions(_ context.Context, req ports.DirectionsRequest) (ports.DirectionsResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	respond := p.Respond
	p.mu.Unlock()

	if respond != nil {
		return respond(req)
	}

	resp := ports.DirectionsResponse{
		Legs:          make([]ports.Leg, 0, len(req.Waypoints)+1),
		WaypointOrder: make([]int, 0, len(req.Waypoints)),
	}
	for i := range req.Waypoints {
		resp.WaypointOrder = append(resp.WaypointOrder, i)
	}
	for i := 0; i <= len(req.Waypoints); i++ {
		resp.Legs = append(resp.Legs, ports.Leg{
			DistanceMeters:  p.LegMeters,
			DurationSeconds: p.LegSeconds,
			Start:           domain.Coordinates{Lat: float64(i), Lon: float64(-i)},
		})
	}
	return resp, nil
}

func (p *StubProvider) NavigationLinks(req ports.DirectionsRequest, resp ports.DirectionsResponse) domain.NavigationLinks {
	return navigationLinks(req, resp)
}

// Calls returns the requests received so far.
func (p *StubProvider) Calls() []ports.DirectionsRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.DirectionsRequest(nil), p.calls...)
}

// FixedResponse answers every request with the given order and per-leg
// metrics. Leg i uses meters[i] and seconds[i].
func FixedResponse(order []int, meters, seconds []int) func(ports.DirectionsRequest) (ports.DirectionsResponse, error) {
	return func(ports.DirectionsRequest) (ports.DirectionsResponse, error) {
		resp := ports.DirectionsResponse{WaypointOrder: append([]int(nil), order...)}
		for i := range meters {
			leg := ports.Leg{DistanceMeters: meters[i], Start: domain.Coordinates{Lat: 40, Lon: -74}}
			if i < len(seconds) {
				leg.DurationSeconds = seconds[i]
			}
			resp.Legs = append(resp.Legs, leg)
		}
		return resp, nil
	}
}
