package services

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fleet-route-engine/internal/ports"
	"fmt"
	"math"
	"sort"
	"strings"
)

// OptimizeRequest asks for a new visiting order of one route.
// PriorityOverrides maps stop ids to the tier they should have from now on.
type OptimizeRequest struct {
	RouteID           string
	PriorityOverrides map[string]domain.PriorityTier
}

// RouteOptimizer orders a route's stops through the routing provider, biased
// by priority tier, and persists the order.
type RouteOptimizer struct {
	d Deps
}

func NewRouteOptimizer(d Deps) *RouteOptimizer {
	return &RouteOptimizer{d: d}
}

// Optimize reorders the route's pending stops.
//
// Priority overrides are persisted before the provider is called and stay
// applied if optimization later fails. Override ids that do not belong to the
// route are skipped and listed in the result. Completed stops keep their
// relative order ahead of the pending ones.
func (o *RouteOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (_ *domain.OptimizationResult, err error) {
	const op = "optimize"
	defer obs.Time(ctx, "engine.Optimize")(&err)

	if strings.TrimSpace(req.RouteID) == "" {
		return nil, validationError(op, "route id is required")
	}
	for id, tier := range req.PriorityOverrides {
		if !tier.Valid() {
			return nil, validationError(op, "stop %s: invalid priority tier %d", id, int(tier))
		}
	}

	unlock, err := o.d.lock(ctx, op, req.RouteID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return o.optimize(ctx, op, req)
}

// optimize runs without taking the route lease; the caller holds it.
func (o *RouteOptimizer) optimize(ctx context.Context, op string, req OptimizeRequest) (*domain.OptimizationResult, error) {
	if strings.TrimSpace(o.d.BaseLocation) == "" {
		return nil, validationError(op, "base location is not configured")
	}

	if _, err := o.d.loadActiveRoute(ctx, op, req.RouteID); err != nil {
		return nil, err
	}

	stops, err := o.d.listStops(ctx, op, req.RouteID)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, validationError(op, "route %s has no stops", req.RouteID)
	}

	skipped, err := o.applyOverrides(ctx, op, stops, req.PriorityOverrides)
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		obs.Warn(ctx, op, "route=%s skipped_overrides=%s", req.RouteID, strings.Join(skipped, ","))
	}

	done := make([]domain.Stop, 0, len(stops))
	pending := make([]domain.Stop, 0, len(stops))
	for _, s := range stops {
		if s.Completed {
			done = append(done, s)
		} else {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return nil, validationError(op, "route %s has no stops to optimize", req.RouteID)
	}

	it, err := o.d.itinerary(ctx, BucketByPriority(pending), true)
	if err != nil {
		return nil, providerError(op, err)
	}

	final, err := o.d.renumber(ctx, op, req.RouteID, append(done, it.stops...))
	if err != nil {
		return nil, err
	}

	km, minutes := summarizeLegs(it.resp.Legs)
	return &domain.OptimizationResult{
		RouteID:          req.RouteID,
		TotalDistanceKm:  km,
		TotalDurationMin: minutes,
		Stops:            final,
		Links:            o.d.Provider.NavigationLinks(it.req, it.resp),
		SkippedOverrides: skipped,
	}, nil
}

// applyOverrides persists the tier of every override that names a stop of the
// route and updates stops in place. It returns the ids that matched nothing.
func (o *RouteOptimizer) applyOverrides(
	ctx context.Context,
	op string,
	stops []domain.Stop,
	overrides map[string]domain.PriorityTier,
) ([]string, error) {
	if len(overrides) == 0 {
		return nil, nil
	}

	byID := make(map[string]int, len(stops))
	for i, s := range stops {
		byID[s.ID] = i
	}

	var skipped []string
	targets := make([]int, 0, len(overrides))
	for id := range overrides {
		i, ok := byID[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		targets = append(targets, i)
	}
	sort.Strings(skipped)
	sort.Ints(targets)

	err := runBatch(ctx, "apply priority overrides", len(targets), o.d.writeLimit(), func(ctx context.Context, k int) error {
		s := stops[targets[k]]
		return o.d.Store.UpdateStopPriority(ctx, s.ID, overrides[s.ID])
	})
	if err != nil {
		return skipped, persistenceError(op, "apply priority overrides", err)
	}

	for _, i := range targets {
		stops[i].Priority = overrides[stops[i].ID]
	}
	return skipped, nil
}

// itinerary is one provider answer mapped back onto stops.
type itinerary struct {
	stops []domain.Stop
	req   ports.DirectionsRequest
	resp  ports.DirectionsResponse
}

// itinerary asks the provider for a depot -> stops -> depot trip. With
// optimize the stops come back in the provider's visiting order; without it
// the trip is measured in the given order.
func (d Deps) itinerary(ctx context.Context, stops []domain.Stop, optimize bool) (itinerary, error) {
	req := ports.DirectionsRequest{
		Origin:            d.BaseLocation,
		Destination:       d.BaseLocation,
		Waypoints:         domain.StopAddresses(stops),
		OptimizeWaypoints: optimize,
	}

	resp, err := d.Provider.Directions(ctx, req)
	if err != nil {
		return itinerary{}, err
	}

	if !optimize {
		ordered := append([]domain.Stop(nil), stops...)
		return itinerary{stops: ordered, req: req, resp: resp}, nil
	}

	ordered, err := applyWaypointOrder(stops, resp.WaypointOrder)
	if err != nil {
		return itinerary{}, err
	}

	return itinerary{stops: ordered, req: req, resp: resp}, nil
}

// applyWaypointOrder resolves a provider permutation (output position -> input
// index) back to stops.
func applyWaypointOrder(stops []domain.Stop, order []int) ([]domain.Stop, error) {
	if len(order) == 0 && len(stops) <= 1 {
		out := make([]domain.Stop, len(stops))
		copy(out, stops)
		return out, nil
	}
	if len(order) != len(stops) {
		return nil, fmt.Errorf("waypoint order has %d entries for %d waypoints", len(order), len(stops))
	}

	seen := make([]bool, len(stops))
	out := make([]domain.Stop, 0, len(stops))
	for _, idx := range order {
		if idx < 0 || idx >= len(stops) {
			return nil, fmt.Errorf("waypoint order index %d out of range", idx)
		}
		if seen[idx] {
			return nil, errors.New("waypoint order is not a permutation")
		}
		seen[idx] = true
		out = append(out, stops[idx])
	}
	return out, nil
}

// summarizeLegs sums legs into km rounded to 0.1 and minutes rounded to the
// nearest whole minute.
func summarizeLegs(legs []ports.Leg) (float64, int) {
	meters, seconds := 0, 0
	for _, l := range legs {
		meters += l.DistanceMeters
		seconds += l.DurationSeconds
	}

	km := math.Round(float64(meters)/100) / 10
	minutes := int(math.Round(float64(seconds) / 60))
	return km, minutes
}
