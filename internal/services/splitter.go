package services

import (
	"context"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/platform/obs"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type SplitRequest struct {
	RouteID    string
	Strategy   domain.SplitStrategy
	GroupCount int
	// One driver and one vehicle per group, matched by group index.
	DriverIDs  []string
	VehicleIDs []string
	// Stop id -> group index, used by the manual strategy only.
	ManualAssignment map[string]int
	// SkipOptimize partitions the current order without re-optimizing first.
	// The distance strategy then measures that order as stored.
	SkipOptimize bool
}

type SplitResult struct {
	SourceRouteID string
	// Strategy that produced the groups, after any fallback.
	Strategy    domain.SplitStrategy
	NewRouteIDs []string
	Groups      []domain.SplitGroup
	// Stops left out of every group (manual strategy).
	ExcludedStops []string
	// Manual assignment ids that named no stop of the route.
	SkippedAssignments []string
	Warnings           []string
}

// RouteSplitter partitions a route into several new routes, one per
// driver/vehicle pair, and retires the source route.
type RouteSplitter struct {
	d   Deps
	opt *RouteOptimizer
}

func NewRouteSplitter(d Deps, opt *RouteOptimizer) *RouteSplitter {
	return &RouteSplitter{d: d, opt: opt}
}

// Split partitions the route's stops with the requested strategy and creates
// one route per non-empty group.
//
// Groups are committed one at a time and earlier groups are not rolled back
// when a later one fails; the failure is a PartialSplitError naming what was
// created.
func (s *RouteSplitter) Split(ctx context.Context, req SplitRequest) (_ *SplitResult, err error) {
	const op = "split"
	defer obs.Time(ctx, "engine.Split")(&err)

	if err := validateSplit(op, req); err != nil {
		return nil, err
	}

	unlock, err := s.d.lock(ctx, op, req.RouteID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	source, err := s.d.loadActiveRoute(ctx, op, req.RouteID)
	if err != nil {
		return nil, err
	}

	res := &SplitResult{SourceRouteID: req.RouteID}

	if !req.SkipOptimize && s.opt != nil {
		if _, oerr := s.opt.optimize(ctx, op, OptimizeRequest{RouteID: req.RouteID}); oerr != nil {
			obs.Warn(ctx, op, "route=%s pre-split optimize failed, using current order: %v", req.RouteID, oerr)
			res.Warnings = append(res.Warnings, fmt.Sprintf("optimize before split failed: %v", oerr))
		}
	}

	stops, err := s.d.listStops(ctx, op, req.RouteID)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, validationError(op, "route %s has no stops", req.RouteID)
	}

	p, err := partitionerFor(req.Strategy, s.d)
	if err != nil {
		return nil, validationError(op, "%v", err)
	}
	parts, err := p.partition(ctx, splitInput{
		stops:      stops,
		groupCount: req.GroupCount,
		manual:     req.ManualAssignment,
		keepOrder:  req.SkipOptimize,
	})
	if err != nil {
		return nil, &Error{Kind: KindProvider, Op: op, Message: "partition stops", Err: err}
	}

	res.Strategy = parts.applied
	res.ExcludedStops = parts.excluded
	res.SkippedAssignments = parts.skipped
	res.Warnings = append(res.Warnings, parts.warnings...)
	for _, w := range parts.warnings {
		obs.Warn(ctx, op, "route=%s %s", req.RouteID, w)
	}

	for gi, group := range parts.groups {
		if len(group) == 0 {
			continue
		}
		g := domain.NewSplitGroup(gi, group)
		if parts.distanceKm != nil && parts.distanceKm[gi] > 0 {
			g.EstimatedDistanceKm = parts.distanceKm[gi]
			g.HasEstimatedDistance = true
		}
		res.Groups = append(res.Groups, g)
	}
	if len(res.Groups) == 0 {
		return nil, validationError(op, "no valid groups")
	}

	for _, g := range res.Groups {
		newID, gerr := s.materialize(ctx, source, g, req.DriverIDs[g.Index], req.VehicleIDs[g.Index])
		if gerr != nil {
			perr := &PartialSplitError{
				SourceRouteID: req.RouteID,
				CreatedRoutes: res.NewRouteIDs,
				FailedGroup:   g.Index,
				Err:           gerr,
			}
			return nil, persistenceError(op, "materialize split groups", perr)
		}
		res.NewRouteIDs = append(res.NewRouteIDs, newID)
	}

	if err := s.d.Store.UpdateRouteStatus(context.WithoutCancel(ctx), req.RouteID, domain.RouteStatusSplit); err != nil {
		perr := &PartialSplitError{SourceRouteID: req.RouteID, CreatedRoutes: res.NewRouteIDs, FailedGroup: -1, Err: err}
		return nil, persistenceError(op, "mark source route split", perr)
	}

	return res, nil
}

func validateSplit(op string, req SplitRequest) error {
	if strings.TrimSpace(req.RouteID) == "" {
		return validationError(op, "route id is required")
	}
	if _, err := domain.ParseSplitStrategy(string(req.Strategy)); err != nil {
		return validationError(op, "%v", err)
	}
	if req.GroupCount < domain.MinSplitGroups || req.GroupCount > domain.MaxSplitGroups {
		return validationError(op, "group count must be between %d and %d, got %d",
			domain.MinSplitGroups, domain.MaxSplitGroups, req.GroupCount)
	}
	if len(req.DriverIDs) < req.GroupCount {
		return validationError(op, "need %d drivers, got %d", req.GroupCount, len(req.DriverIDs))
	}
	if len(req.VehicleIDs) < req.GroupCount {
		return validationError(op, "need %d vehicles, got %d", req.GroupCount, len(req.VehicleIDs))
	}
	for i := 0; i < req.GroupCount; i++ {
		if strings.TrimSpace(req.DriverIDs[i]) == "" || strings.TrimSpace(req.VehicleIDs[i]) == "" {
			return validationError(op, "driver and vehicle ids for group %d must be non-empty", i)
		}
	}
	if req.Strategy == domain.SplitManual && len(req.ManualAssignment) == 0 {
		return validationError(op, "manual strategy requires a manual assignment")
	}
	return nil
}

// materialize commits one group: create the route, insert copies of its
// stops at positions 1..k, then delete the originals. A failed insert batch
// is cleaned up so the half-built route ends with no stops and status split.
func (s *RouteSplitter) materialize(
	ctx context.Context,
	source *domain.Route,
	g domain.SplitGroup,
	driverID, vehicleID string,
) (string, error) {
	wctx := context.WithoutCancel(ctx)

	route := &domain.Route{
		ID:        uuid.NewString(),
		DriverID:  &driverID,
		VehicleID: &vehicleID,
		Date:      source.Date,
		Status:    domain.RouteStatusPending,
	}
	if err := s.d.Store.CreateRoute(wctx, route); err != nil {
		return "", fmt.Errorf("group %d: create route: %w", g.Index, err)
	}

	copies := make([]domain.Stop, len(g.Stops))
	for i, st := range g.Stops {
		c := st
		c.ID = uuid.NewString()
		c.RouteID = route.ID
		c.SequencePosition = i + 1
		copies[i] = c
	}

	limit := s.d.writeLimit()
	err := runBatch(wctx, "insert split stops", len(copies), limit, func(ctx context.Context, i int) error {
		return s.d.Store.InsertStop(ctx, &copies[i])
	})
	if err != nil {
		s.discard(wctx, route.ID, copies)
		return "", fmt.Errorf("group %d: insert stops into route %s: %w", g.Index, route.ID, err)
	}

	err = runBatch(wctx, "delete split originals", len(g.Stops), limit, func(ctx context.Context, i int) error {
		return s.d.Store.DeleteStop(ctx, g.Stops[i].ID)
	})
	if err != nil {
		return "", fmt.Errorf("group %d: delete originals after creating route %s: %w", g.Index, route.ID, err)
	}

	return route.ID, nil
}

// discard removes a half-built group route. Failures are logged only; the
// caller already reports the group as failed.
func (s *RouteSplitter) discard(ctx context.Context, routeID string, copies []domain.Stop) {
	err := runBatch(ctx, "discard split stops", len(copies), s.d.writeLimit(), func(ctx context.Context, i int) error {
		return s.d.Store.DeleteStop(ctx, copies[i].ID)
	})
	if err != nil {
		obs.Warn(ctx, "split", "route=%s cleanup of inserted stops incomplete: %v", routeID, err)
	}
	if err := s.d.Store.UpdateRouteStatus(ctx, routeID, domain.RouteStatusSplit); err != nil {
		obs.Warn(ctx, "split", "route=%s cleanup status update failed: %v", routeID, err)
	}
}
