package services

import (
	"context"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MergeRequest struct {
	RouteIDs  []string
	DriverID  string
	VehicleID string
	Date      time.Time
}

type MergeResult struct {
	RouteID        string
	SourceRouteIDs []string
	StopCount      int
}

// RouteMerger concatenates the stops of several routes into one new route.
type RouteMerger struct {
	d Deps
}

func NewRouteMerger(d Deps) *RouteMerger {
	return &RouteMerger{d: d}
}

// Merge creates a pending route for the given driver, vehicle and date, moves
// every stop of the source routes onto it and marks the sources merged.
// Stops are concatenated route by route in request order, each route's stops
// by position, and renumbered 1..N.
func (m *RouteMerger) Merge(ctx context.Context, req MergeRequest) (_ *MergeResult, err error) {
	const op = "merge"
	defer obs.Time(ctx, "engine.Merge")(&err)

	if err := validateMerge(op, req); err != nil {
		return nil, err
	}

	unlock, err := m.lockAll(ctx, op, req.RouteIDs)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var stops []domain.Stop
	for _, id := range req.RouteIDs {
		if _, err := m.d.loadActiveRoute(ctx, op, id); err != nil {
			return nil, err
		}
		rs, err := m.d.listStops(ctx, op, id)
		if err != nil {
			return nil, err
		}
		stops = append(stops, rs...)
	}

	wctx := context.WithoutCancel(ctx)
	driverID, vehicleID := req.DriverID, req.VehicleID
	merged := &domain.Route{
		ID:        uuid.NewString(),
		DriverID:  &driverID,
		VehicleID: &vehicleID,
		Date:      req.Date,
		Status:    domain.RouteStatusPending,
	}
	if err := m.d.Store.CreateRoute(wctx, merged); err != nil {
		return nil, persistenceError(op, "create merged route", err)
	}

	// The new route starts empty, so positions 1..N cannot collide.
	err = runBatch(wctx, "move merged stops", len(stops), m.d.writeLimit(), func(ctx context.Context, i int) error {
		return m.d.Store.MoveStop(ctx, stops[i].ID, merged.ID, i+1)
	})
	if err != nil {
		return nil, persistenceError(op, fmt.Sprintf("move stops to route %s", merged.ID), err)
	}

	err = runBatch(wctx, "mark routes merged", len(req.RouteIDs), m.d.writeLimit(), func(ctx context.Context, i int) error {
		return m.d.Store.UpdateRouteStatus(ctx, req.RouteIDs[i], domain.RouteStatusMerged)
	})
	if err != nil {
		return nil, persistenceError(op, fmt.Sprintf("mark source routes merged into %s", merged.ID), err)
	}

	return &MergeResult{
		RouteID:        merged.ID,
		SourceRouteIDs: append([]string(nil), req.RouteIDs...),
		StopCount:      len(stops),
	}, nil
}

func validateMerge(op string, req MergeRequest) error {
	if len(req.RouteIDs) < 2 {
		return validationError(op, "at least 2 routes are required, got %d", len(req.RouteIDs))
	}
	seen := make(map[string]struct{}, len(req.RouteIDs))
	for _, id := range req.RouteIDs {
		if strings.TrimSpace(id) == "" {
			return validationError(op, "route ids must be non-empty")
		}
		if _, dup := seen[id]; dup {
			return validationError(op, "route %s listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	if strings.TrimSpace(req.DriverID) == "" || strings.TrimSpace(req.VehicleID) == "" {
		return validationError(op, "driver id and vehicle id are required")
	}
	if req.Date.IsZero() {
		return validationError(op, "date is required")
	}
	return nil
}

// lockAll leases every route in sorted id order so concurrent merges over
// overlapping routes cannot deadlock.
func (m *RouteMerger) lockAll(ctx context.Context, op string, routeIDs []string) (func(), error) {
	sorted := append([]string(nil), routeIDs...)
	sort.Strings(sorted)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, id := range sorted {
		unlock, err := m.d.lock(ctx, op, id)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
