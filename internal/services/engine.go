package services

import (
	"context"
	"errors"
	"fleet-route-engine/internal/domain"
	"fleet-route-engine/internal/ports"
)

// Deps are the collaborators shared by the optimizer, splitter and merger.
type Deps struct {
	Store    ports.Store
	Provider ports.RoutingProvider
	// Locker serializes operations per route. When nil, callers must
	// serialize optimize/split/merge calls per route themselves.
	Locker ports.RouteLocker
	// BaseLocation is the depot address used as origin and destination of
	// every provider request.
	BaseLocation string
	// WriteConcurrency caps in-flight writes per batch.
	WriteConcurrency int
}

// Engine exposes the three public operations of the route engine.
type Engine struct {
	Optimizer *RouteOptimizer
	Splitter  *RouteSplitter
	Merger    *RouteMerger
}

func NewEngine(d Deps) *Engine {
	opt := NewRouteOptimizer(d)
	return &Engine{
		Optimizer: opt,
		Splitter:  NewRouteSplitter(d, opt),
		Merger:    NewRouteMerger(d),
	}
}

func (d Deps) writeLimit() int {
	if d.WriteConcurrency < 1 {
		return defaultWriteConcurrency
	}
	return d.WriteConcurrency
}

// lock takes the lease for routeID. A nil Locker yields a no-op release.
func (d Deps) lock(ctx context.Context, op, routeID string) (func(), error) {
	if d.Locker == nil {
		return func() {}, nil
	}
	unlock, err := d.Locker.Lock(ctx, routeID)
	if err != nil {
		if errors.Is(err, ports.ErrRouteBusy) {
			return nil, &Error{Kind: KindConflict, Op: op, Message: "route " + routeID + " is busy", Err: err}
		}
		return nil, persistenceError(op, "acquire route lease", err)
	}
	return unlock, nil
}

// loadActiveRoute fetches a route that still owns its stops.
func (d Deps) loadActiveRoute(ctx context.Context, op, routeID string) (*domain.Route, error) {
	route, err := d.Store.GetRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Op: op, Message: "route " + routeID + " not found", Err: err}
		}
		return nil, persistenceError(op, "load route", err)
	}
	if route.Status.Terminal() {
		return nil, validationError(op, "route %s is %s and no longer owns stops", routeID, route.Status)
	}
	return route, nil
}

func (d Deps) listStops(ctx context.Context, op, routeID string) ([]domain.Stop, error) {
	stops, err := d.Store.ListStops(ctx, routeID)
	if err != nil {
		return nil, persistenceError(op, "list stops", err)
	}
	return stops, nil
}
